package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"repair-agent/internal/domain"
	"repair-agent/internal/metrics"
)

// UserMessenger is the unsolicited-push slice of the chat transport. The
// reporter is not necessarily in an active conversational turn when a
// transition lands, so fan-out never uses reply tokens.
type UserMessenger interface {
	Push(ctx context.Context, userID string, msgs []domain.OutboundMessage) error
}

// Fanout dispatches a status change to the reporter's chat session and to
// the operational side-channel. Both sends are attempted independently;
// either may fail without affecting the other or the caller. The
// user-facing truth is the persisted status, not notification delivery.
type Fanout struct {
	msgr UserMessenger
	ops  OpsNotifier
	log  zerolog.Logger
}

func NewFanout(msgr UserMessenger, ops OpsNotifier, logger zerolog.Logger) *Fanout {
	return &Fanout{msgr: msgr, ops: ops, log: logger}
}

// Notify implements Notifier. Failures are logged and counted, never
// returned.
func (f *Fanout) Notify(ctx context.Context, rec domain.RepairRequest, newStatus domain.Status, notes string) {
	if f.msgr != nil && rec.ReporterID != "" {
		if err := f.msgr.Push(ctx, rec.ReporterID, domain.NewText(statusUpdateMessage(rec, newStatus, notes))); err != nil {
			metrics.NotificationSendsTotal.WithLabelValues("chat", "failure").Inc()
			f.log.Error().Err(err).Str("request_id", rec.ID).Msg("status push to reporter failed")
		} else {
			metrics.NotificationSendsTotal.WithLabelValues("chat", "success").Inc()
		}
	}

	if f.ops != nil {
		if err := f.ops.Send(ctx, opsStatusSummary(rec, newStatus, notes)); err != nil {
			metrics.NotificationSendsTotal.WithLabelValues("ops", "failure").Inc()
			f.log.Error().Err(err).Str("request_id", rec.ID).Msg("ops channel notification failed")
		} else {
			metrics.NotificationSendsTotal.WithLabelValues("ops", "success").Inc()
		}
	}
}
