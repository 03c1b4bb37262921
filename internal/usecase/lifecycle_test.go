package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"repair-agent/internal/domain"
)

type fakeRequestStore struct {
	byID      map[string]domain.RepairRequest
	getErr    error
	updateErr error
	updates   []domain.StatusUpdate
	updateIDs []string
}

func (f *fakeRequestStore) GetRequest(_ context.Context, id string) (domain.RepairRequest, bool, error) {
	if f.getErr != nil {
		return domain.RepairRequest{}, false, f.getErr
	}
	req, ok := f.byID[id]
	return req, ok, nil
}

func (f *fakeRequestStore) UpdateRequestStatus(_ context.Context, id string, upd domain.StatusUpdate) (domain.RepairRequest, bool, error) {
	if f.updateErr != nil {
		return domain.RepairRequest{}, false, f.updateErr
	}
	req, ok := f.byID[id]
	if !ok {
		return domain.RepairRequest{}, false, nil
	}
	f.updates = append(f.updates, upd)
	f.updateIDs = append(f.updateIDs, id)

	req.Status = upd.NewStatus
	if upd.TechnicianNotes != "" {
		req.TechnicianNotes = upd.TechnicianNotes
	}
	if upd.ApprovedBy != "" {
		req.ApprovedBy = upd.ApprovedBy
		req.ApprovalTime = upd.ApprovalTime
		req.ApprovalDisplay = upd.ApprovalDisplay
		req.SignatureRef = upd.SignatureRef
	}
	f.byID[id] = req
	return req, true, nil
}

type recordingNotifier struct {
	records  []domain.RepairRequest
	statuses []domain.Status
}

func (r *recordingNotifier) Notify(_ context.Context, rec domain.RepairRequest, newStatus domain.Status, _ string) {
	r.records = append(r.records, rec)
	r.statuses = append(r.statuses, newStatus)
}

func newLifecycleFixture(t *testing.T, reqs ...domain.RepairRequest) (*LifecycleEngine, *fakeRequestStore, *recordingNotifier) {
	t.Helper()
	store := &fakeRequestStore{byID: map[string]domain.RepairRequest{}}
	for _, r := range reqs {
		store.byID[r.ID] = r
	}
	notifier := &recordingNotifier{}
	engine, err := NewLifecycleEngine(store, notifier, zerolog.Nop())
	require.NoError(t, err)
	return engine, store, notifier
}

func pendingRequest(id string) domain.RepairRequest {
	return domain.RepairRequest{
		ID:         id,
		ReporterID: "u1",
		Problem:    "ไฟดับ",
		Status:     domain.StatusPending,
	}
}

func TestTransition_NonApprovalStatusByTechnician(t *testing.T) {
	engine, store, notifier := newLifecycleFixture(t, pendingRequest("RQ1"))

	updated, err := engine.Transition(context.Background(), TransitionInput{
		RequestID: "RQ1",
		Actor:     domain.Actor{ID: "tech-7", Role: domain.RoleTechnician},
		NewStatus: domain.StatusInProgress,
		Notes:     "เปลี่ยนหลอดแล้ว รอทดสอบ",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, updated.Status)
	require.Equal(t, "เปลี่ยนหลอดแล้ว รอทดสอบ", updated.TechnicianNotes)
	require.Empty(t, updated.ApprovedBy)

	require.Len(t, store.updates, 1)
	require.Len(t, notifier.records, 1)
	require.Equal(t, domain.StatusInProgress, notifier.statuses[0])
}

func TestTransition_ApprovalForbiddenForNonApprovers(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleTechnician, domain.RoleOperator, domain.Role("")} {
		t.Run(string(role), func(t *testing.T) {
			engine, store, notifier := newLifecycleFixture(t, pendingRequest("RQ1"))

			_, err := engine.Transition(context.Background(), TransitionInput{
				RequestID: "RQ1",
				Actor:     domain.Actor{ID: "x", Role: role},
				NewStatus: domain.StatusApprovedAwaitingTec,
			})
			require.Equal(t, ErrorForbidden, CodeOf(err))
			require.Empty(t, store.updates)
			require.Empty(t, notifier.records)
			require.Equal(t, domain.StatusPending, store.byID["RQ1"].Status)
		})
	}
}

func TestTransition_ExecutiveApprovalStampsServerSideFields(t *testing.T) {
	engine, store, _ := newLifecycleFixture(t, pendingRequest("RQ1"))
	fixed := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	updated, err := engine.Transition(context.Background(), TransitionInput{
		RequestID:       "RQ1",
		Actor:           domain.Actor{ID: "exec-1", Role: domain.RoleExecutive},
		NewStatus:       domain.StatusApprovedAwaitingTec,
		SignatureRef:    "s3://signatures/exec-1.png",
		ClientTimestamp: "29/08/2026 17:30",
	})
	require.NoError(t, err)
	require.Equal(t, "exec-1", updated.ApprovedBy)
	require.Equal(t, fixed, updated.ApprovalTime)
	require.Equal(t, "29/08/2026 17:30", updated.ApprovalDisplay)
	require.Equal(t, "s3://signatures/exec-1.png", updated.SignatureRef)

	require.Len(t, store.updates, 1)
	require.Equal(t, fixed, store.updates[0].ApprovalTime)
}

func TestTransition_AdminRejectionStampsApprover(t *testing.T) {
	engine, _, notifier := newLifecycleFixture(t, pendingRequest("RQ1"))

	updated, err := engine.Transition(context.Background(), TransitionInput{
		RequestID: "RQ1",
		Actor:     domain.Actor{ID: "admin-2", Role: domain.RoleAdmin},
		NewStatus: domain.StatusRejectedByExecutive,
		Notes:     "พื้นที่นอกเขตรับผิดชอบ",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejectedByExecutive, updated.Status)
	require.Equal(t, "admin-2", updated.ApprovedBy)
	require.Len(t, notifier.records, 1)
}

func TestTransition_TerminalStatusConflicts(t *testing.T) {
	for _, terminal := range []domain.Status{domain.StatusCompleted, domain.StatusCancelled, domain.StatusRejectedByExecutive} {
		t.Run(string(terminal), func(t *testing.T) {
			req := pendingRequest("RQ1")
			req.Status = terminal
			engine, store, _ := newLifecycleFixture(t, req)

			_, err := engine.Transition(context.Background(), TransitionInput{
				RequestID: "RQ1",
				Actor:     domain.Actor{ID: "admin-2", Role: domain.RoleAdmin},
				NewStatus: domain.StatusInProgress,
			})
			require.Equal(t, ErrorConflict, CodeOf(err))
			require.Empty(t, store.updates)
		})
	}
}

func TestTransition_ValidationAndLookupErrors(t *testing.T) {
	engine, store, _ := newLifecycleFixture(t, pendingRequest("RQ1"))
	admin := domain.Actor{ID: "admin-2", Role: domain.RoleAdmin}

	_, err := engine.Transition(context.Background(), TransitionInput{Actor: admin, NewStatus: domain.StatusInProgress})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	_, err = engine.Transition(context.Background(), TransitionInput{RequestID: "RQ1", Actor: admin, NewStatus: "ไม่ใช่สถานะ"})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	_, err = engine.Transition(context.Background(), TransitionInput{RequestID: "RQ-missing", Actor: admin, NewStatus: domain.StatusInProgress})
	require.Equal(t, ErrorNotFound, CodeOf(err))

	store.getErr = errors.New("dynamo down")
	_, err = engine.Transition(context.Background(), TransitionInput{RequestID: "RQ1", Actor: admin, NewStatus: domain.StatusInProgress})
	require.Equal(t, ErrorDependency, CodeOf(err))
}

func TestBatchTransition_PartialFailure(t *testing.T) {
	engine, store, notifier := newLifecycleFixture(t,
		pendingRequest("RQ1"), pendingRequest("RQ2"), pendingRequest("RQ3"), pendingRequest("RQ4"))

	result, err := engine.BatchTransition(context.Background(),
		[]string{"RQ1", "RQ2", "RQ-missing", "RQ3", "RQ4"},
		TransitionInput{
			Actor:     domain.Actor{ID: "exec-1", Role: domain.RoleExecutive},
			NewStatus: domain.StatusApprovedAwaitingTec,
		})
	require.NoError(t, err)
	require.Equal(t, 4, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 5)

	require.False(t, result.Results[2].OK)
	require.Equal(t, "RQ-missing", result.Results[2].RequestID)
	require.Equal(t, ErrorNotFound, result.Results[2].Code)

	require.Equal(t, []string{"RQ1", "RQ2", "RQ3", "RQ4"}, store.updateIDs)
	require.Len(t, notifier.records, 4)
	require.Contains(t, result.SummaryMessage(), "อนุมัติสำเร็จ 4 รายการ")
	require.Contains(t, result.SummaryMessage(), "ล้มเหลว 1 รายการ")
}

func TestBatchTransition_EmptyListRejected(t *testing.T) {
	engine, _, _ := newLifecycleFixture(t)
	_, err := engine.BatchTransition(context.Background(), nil, TransitionInput{
		Actor:     domain.Actor{ID: "exec-1", Role: domain.RoleExecutive},
		NewStatus: domain.StatusApprovedAwaitingTec,
	})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
}

func TestBatchTransition_ForbiddenFailsEveryItemWithoutWrites(t *testing.T) {
	engine, store, _ := newLifecycleFixture(t, pendingRequest("RQ1"), pendingRequest("RQ2"))

	result, err := engine.BatchTransition(context.Background(), []string{"RQ1", "RQ2"}, TransitionInput{
		Actor:     domain.Actor{ID: "tech-7", Role: domain.RoleTechnician},
		NewStatus: domain.StatusApprovedAwaitingTec,
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Succeeded)
	require.Equal(t, 2, result.Failed)
	require.Empty(t, store.updates)
}
