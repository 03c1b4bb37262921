package domain

import "time"

// Status is the closed set of repair-request workflow states. The stored
// value is the Thai label the admin dashboard and sheets export expect.
type Status string

const (
	StatusPending             Status = "รอดำเนินการ"
	StatusApprovedAwaitingTec Status = "อนุมัติแล้วรอช่าง"
	StatusRejectedByExecutive Status = "ไม่อนุมัติโดยผู้บริหาร"
	StatusInProgress          Status = "กำลังดำเนินการ"
	StatusCompleted           Status = "เสร็จสิ้น"
	StatusCancelled           Status = "ยกเลิก"
)

// AllStatuses lists every valid status, in workflow order.
var AllStatuses = []Status{
	StatusPending,
	StatusApprovedAwaitingTec,
	StatusRejectedByExecutive,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejectedByExecutive
}

// ExecutiveOnly reports whether setting s requires organizational
// approval authority.
func (s Status) ExecutiveOnly() bool {
	return s == StatusApprovedAwaitingTec || s == StatusRejectedByExecutive
}

// Role is an already-authenticated operator role. The service never issues
// credentials; roles arrive from the upstream authenticator.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleExecutive  Role = "executive"
	RoleTechnician Role = "technician"
	RoleOperator   Role = "operator"
)

// CanApprove reports whether the role may set executive-only statuses.
func (r Role) CanApprove() bool {
	return r == RoleAdmin || r == RoleExecutive
}

// Actor identifies the operator performing a lifecycle action.
type Actor struct {
	ID   string
	Role Role
}

// RepairRequest is the durable unit of work. Created once during intake
// with StatusPending, mutated only through lifecycle transitions, never
// deleted (StatusCancelled is the soft delete).
type RepairRequest struct {
	ID              string
	ReporterID      string // chat user id of the reporter
	ReporterName    string
	Phone           string
	Address         string
	PoleID          string
	Latitude        string
	Longitude       string
	Problem         string
	PhotoRef        string
	Status          Status
	TechnicianNotes string
	ApprovedBy      string
	ApprovalTime    time.Time
	ApprovalDisplay string // client-supplied display hint, never authoritative
	SignatureRef    string
	DateReported    time.Time
}

// StatusUpdate carries the mutable slice of a transition. Approval fields
// are only populated by the lifecycle engine for executive actions.
type StatusUpdate struct {
	NewStatus       Status
	TechnicianNotes string
	ApprovedBy      string
	ApprovalTime    time.Time
	ApprovalDisplay string
	SignatureRef    string
}
