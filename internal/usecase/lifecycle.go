package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"repair-agent/internal/domain"
	"repair-agent/internal/metrics"
)

// RequestStore covers the repository operations the lifecycle engine uses.
// Each transition is one read-then-write sequence; the repository's own
// ordering bounds consistency, so concurrent transitions on the same id
// are last-write-wins.
type RequestStore interface {
	GetRequest(ctx context.Context, id string) (domain.RepairRequest, bool, error)
	UpdateRequestStatus(ctx context.Context, id string, upd domain.StatusUpdate) (domain.RepairRequest, bool, error)
}

// Notifier is the best-effort post-transition fan-out. Implementations
// must never fail the caller; delivery problems are their own concern.
type Notifier interface {
	Notify(ctx context.Context, rec domain.RepairRequest, newStatus domain.Status, notes string)
}

// TransitionInput carries one requested status change.
type TransitionInput struct {
	RequestID       string
	Actor           domain.Actor
	NewStatus       domain.Status
	Notes           string
	SignatureRef    string
	ClientTimestamp string // display hint only, never authoritative
}

// LifecycleEngine validates and applies status transitions on stored
// requests. Phase 1 (the status write) must succeed for the operation to
// succeed; phase 2 (notification) is fire-and-forget.
type LifecycleEngine struct {
	requests RequestStore
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewLifecycleEngine(requests RequestStore, notifier Notifier, logger zerolog.Logger) (*LifecycleEngine, error) {
	if requests == nil {
		return nil, errors.New("usecase: request store must not be nil")
	}
	return &LifecycleEngine{
		requests: requests,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}, nil
}

// Transition applies one status change and returns the updated record.
func (l *LifecycleEngine) Transition(ctx context.Context, in TransitionInput) (domain.RepairRequest, error) {
	updated, err := l.transition(ctx, in)
	metrics.StatusTransitionsTotal.WithLabelValues(transitionOutcome(err)).Inc()
	if err != nil {
		return domain.RepairRequest{}, err
	}

	if l.notifier != nil {
		l.notifier.Notify(ctx, updated, in.NewStatus, in.Notes)
	}
	return updated, nil
}

func (l *LifecycleEngine) transition(ctx context.Context, in TransitionInput) (domain.RepairRequest, error) {
	if strings.TrimSpace(in.RequestID) == "" {
		return domain.RepairRequest{}, newError(ErrorInvalidInput, "missing_request_id", nil)
	}
	if !in.NewStatus.Valid() {
		return domain.RepairRequest{}, newError(ErrorInvalidInput, "unknown_status", nil)
	}
	if in.NewStatus.ExecutiveOnly() && !in.Actor.Role.CanApprove() {
		return domain.RepairRequest{}, newError(ErrorForbidden, "role_cannot_approve", nil)
	}

	current, ok, err := l.requests.GetRequest(ctx, in.RequestID)
	if err != nil {
		return domain.RepairRequest{}, newError(ErrorDependency, "request_read_failed", err)
	}
	if !ok {
		return domain.RepairRequest{}, newError(ErrorNotFound, "unknown_request_id", nil)
	}
	if current.Status.Terminal() {
		return domain.RepairRequest{}, newError(ErrorConflict, "request_already_terminal", nil)
	}

	upd := domain.StatusUpdate{
		NewStatus:       in.NewStatus,
		TechnicianNotes: in.Notes,
	}
	if in.NewStatus.ExecutiveOnly() {
		upd.ApprovedBy = in.Actor.ID
		upd.ApprovalTime = l.now().UTC()
		upd.ApprovalDisplay = in.ClientTimestamp
		upd.SignatureRef = in.SignatureRef
		if in.NewStatus == domain.StatusApprovedAwaitingTec && in.SignatureRef == "" {
			l.log.Warn().
				Str("request_id", in.RequestID).
				Str("approved_by", in.Actor.ID).
				Msg("executive approval without signature reference")
		}
	}

	updated, ok, err := l.requests.UpdateRequestStatus(ctx, in.RequestID, upd)
	if err != nil {
		return domain.RepairRequest{}, newError(ErrorDependency, "request_write_failed", err)
	}
	if !ok {
		// Deleted between read and write; surface as not-found.
		return domain.RepairRequest{}, newError(ErrorNotFound, "request_vanished", nil)
	}
	return updated, nil
}

// BatchItemResult reports the outcome for one id in a batch decision.
type BatchItemResult struct {
	RequestID string    `json:"requestId"`
	OK        bool      `json:"ok"`
	Code      ErrorCode `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// BatchResult aggregates per-id outcomes of a batch decision.
type BatchResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// SummaryMessage renders the operator-facing Thai summary.
func (r BatchResult) SummaryMessage() string {
	s := fmt.Sprintf("อนุมัติสำเร็จ %d รายการ", r.Succeeded)
	if r.Failed > 0 {
		s += fmt.Sprintf(", ล้มเหลว %d รายการ", r.Failed)
	}
	return s
}

// BatchTransition applies the shared decision to each id independently.
// One id failing never aborts the rest: an operator approving fifty
// requests must not lose forty-nine successes to one bad record.
func (l *LifecycleEngine) BatchTransition(ctx context.Context, ids []string, shared TransitionInput) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, newError(ErrorInvalidInput, "empty_request_id_list", nil)
	}

	out := BatchResult{Results: make([]BatchItemResult, 0, len(ids))}
	for _, id := range ids {
		in := shared
		in.RequestID = id
		if _, err := l.Transition(ctx, in); err != nil {
			out.Failed++
			out.Results = append(out.Results, BatchItemResult{
				RequestID: id,
				Code:      CodeOf(err),
				Message:   err.Error(),
			})
			continue
		}
		out.Succeeded++
		out.Results = append(out.Results, BatchItemResult{RequestID: id, OK: true})
	}
	return out, nil
}

func transitionOutcome(err error) string {
	if err == nil {
		return "success"
	}
	switch CodeOf(err) {
	case ErrorNotFound:
		return "not_found"
	case ErrorForbidden:
		return "forbidden"
	case ErrorConflict:
		return "conflict"
	case ErrorInvalidInput:
		return "invalid"
	default:
		return "error"
	}
}
