package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"repair-agent/internal/domain"
)

func TestFanout_NotifiesBothChannels(t *testing.T) {
	msgr := &fakeMessenger{}
	ops := &fakeOps{}
	f := NewFanout(msgr, ops, zerolog.Nop())

	rec := domain.RepairRequest{ID: "RQ1", ReporterID: "u1", ReporterName: "สมชาย"}
	f.Notify(context.Background(), rec, domain.StatusInProgress, "เริ่มงานแล้ว")

	require.Equal(t, []string{"u1"}, msgr.pushTo)
	require.Contains(t, msgr.pushes[0], "สถานะใหม่: "+string(domain.StatusInProgress))
	require.Contains(t, msgr.pushes[0], "เริ่มงานแล้ว")
	require.Len(t, ops.sent, 1)
	require.Contains(t, ops.sent[0], "RQ1")
}

func TestFanout_ChatFailureDoesNotBlockOps(t *testing.T) {
	msgr := &fakeMessenger{pushErr: errors.New("line down")}
	ops := &fakeOps{}
	f := NewFanout(msgr, ops, zerolog.Nop())

	f.Notify(context.Background(), domain.RepairRequest{ID: "RQ1", ReporterID: "u1"}, domain.StatusCompleted, "")
	require.Len(t, ops.sent, 1)
}

func TestFanout_SkipsChatWhenReporterUnknown(t *testing.T) {
	msgr := &fakeMessenger{}
	ops := &fakeOps{}
	f := NewFanout(msgr, ops, zerolog.Nop())

	f.Notify(context.Background(), domain.RepairRequest{ID: "RQ1"}, domain.StatusCompleted, "")
	require.Empty(t, msgr.pushes)
	require.Len(t, ops.sent, 1)
}

func TestFanout_ToleratesNilChannels(t *testing.T) {
	f := NewFanout(nil, nil, zerolog.Nop())
	require.NotPanics(t, func() {
		f.Notify(context.Background(), domain.RepairRequest{ID: "RQ1", ReporterID: "u1"}, domain.StatusCompleted, "")
	})
}
