package usecase

import "strings"

// Command is the closed set of conversational intents. Raw text and
// postback payloads are normalized here so the state machine never
// compares string literals.
type Command string

const (
	CommandNone         Command = "none"
	CommandReportIssue  Command = "report_issue"
	CommandTrackStatus  Command = "track_status"
	CommandTrackByID    Command = "track_by_id"
	CommandTrackByPhone Command = "track_by_phone"
	CommandConfirm      Command = "confirm"
	CommandEdit         Command = "edit"
	CommandCancel       Command = "cancel"
	CommandMenu         Command = "menu"
)

// keywordCommands maps the bot's Thai command vocabulary onto commands.
// Postback payloads use the command token itself (e.g. "track_by_id"), so
// both arrive through the same table.
var keywordCommands = map[string]Command{
	"แจ้งซ่อม":       CommandReportIssue,
	"แจ้งปัญหา":      CommandReportIssue,
	"report_issue":   CommandReportIssue,
	"ติดตามสถานะ":    CommandTrackStatus,
	"ติดตาม":         CommandTrackStatus,
	"เช็คสถานะ":      CommandTrackStatus,
	"track_status":   CommandTrackStatus,
	"เลขที่คำขอ":     CommandTrackByID,
	"track_by_id":    CommandTrackByID,
	"เบอร์โทรศัพท์":  CommandTrackByPhone,
	"track_by_phone": CommandTrackByPhone,
	"ยืนยัน":         CommandConfirm,
	"confirm":        CommandConfirm,
	"แก้ไข":          CommandEdit,
	"edit":           CommandEdit,
	"ยกเลิก":         CommandCancel,
	"cancel":         CommandCancel,
	"เมนู":           CommandMenu,
	"menu":           CommandMenu,
}

// ClassifyIntent maps raw input to a Command. Unmatched input returns
// CommandNone; the state machine then treats the text as field input or
// re-prompts, depending on the current state.
func ClassifyIntent(text string) Command {
	if cmd, ok := keywordCommands[strings.TrimSpace(strings.ToLower(text))]; ok {
		return cmd
	}
	return CommandNone
}
