package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"แจ้งซ่อม", CommandReportIssue},
		{"แจ้งปัญหา", CommandReportIssue},
		{"report_issue", CommandReportIssue},
		{"ติดตามสถานะ", CommandTrackStatus},
		{"เช็คสถานะ", CommandTrackStatus},
		{"เลขที่คำขอ", CommandTrackByID},
		{"track_by_id", CommandTrackByID},
		{"เบอร์โทรศัพท์", CommandTrackByPhone},
		{"ยืนยัน", CommandConfirm},
		{"แก้ไข", CommandEdit},
		{"ยกเลิก", CommandCancel},
		{"CANCEL", CommandCancel},
		{"เมนู", CommandMenu},
		{"  ยกเลิก  ", CommandCancel},
		{"0812345678", CommandNone},
		{"สวัสดีครับ", CommandNone},
		{"", CommandNone},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyIntent(tc.in), "input %q", tc.in)
	}
}
