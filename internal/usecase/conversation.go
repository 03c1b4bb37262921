package usecase

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"repair-agent/internal/domain"
	"repair-agent/internal/metrics"
	"repair-agent/internal/session"
)

// Draft field keys shared by the chat flow and the external forms.
const (
	draftFullName = "fullName"
	draftPhone    = "phone"
	draftAddress  = "address"
)

var phonePattern = regexp.MustCompile(`^[0-9]{9,10}$`)

// Messenger sends outbound chat messages. Reply is bound to the triggering
// event's reply token; Push is unsolicited.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, msgs []domain.OutboundMessage) error
	Push(ctx context.Context, userID string, msgs []domain.OutboundMessage) error
}

// RequestIntake covers the repository operations the conversation flows use.
type RequestIntake interface {
	CreateRequest(ctx context.Context, req domain.RepairRequest) (domain.RepairRequest, error)
	GetRequest(ctx context.Context, id string) (domain.RepairRequest, bool, error)
	FindRequestsByPhone(ctx context.Context, phone string) ([]domain.RepairRequest, error)
}

// ProfileStore reads and writes confirmed reporter profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, bool, error)
	PutProfile(ctx context.Context, profile domain.UserProfile) error
}

// OpsNotifier forwards a plain-text summary to the operational side-channel.
type OpsNotifier interface {
	Send(ctx context.Context, text string) error
}

// FormLinks builds the external form URLs dispatched into the chat.
type FormLinks struct {
	BaseURL string
}

func (f FormLinks) PersonalInfo(userID string) string {
	return strings.TrimRight(f.BaseURL, "/") + "/form?userId=" + url.QueryEscape(userID)
}

func (f FormLinks) RepairForm(userID string) string {
	return strings.TrimRight(f.BaseURL, "/") + "/repair-form.html?userId=" + url.QueryEscape(userID)
}

// ConversationEngine drives the per-user intake and tracking flows over
// the chat channel. Each inbound event is one conversational turn,
// serialized per user by the session store's keyed lock.
type ConversationEngine struct {
	sessions *session.Store
	requests RequestIntake
	profiles ProfileStore
	msgr     Messenger
	ops      OpsNotifier
	links    FormLinks
	log      zerolog.Logger
}

func NewConversationEngine(sessions *session.Store, requests RequestIntake, profiles ProfileStore, msgr Messenger, ops OpsNotifier, links FormLinks, logger zerolog.Logger) (*ConversationEngine, error) {
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if requests == nil {
		return nil, errors.New("usecase: request intake must not be nil")
	}
	if profiles == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	if msgr == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if strings.TrimSpace(links.BaseURL) == "" {
		return nil, errors.New("usecase: form base URL must not be empty")
	}
	return &ConversationEngine{
		sessions: sessions,
		requests: requests,
		profiles: profiles,
		msgr:     msgr,
		ops:      ops,
		links:    links,
		log:      logger,
	}, nil
}

// HandleEvent consumes one normalized inbound chat event.
func (e *ConversationEngine) HandleEvent(ctx context.Context, ev domain.InboundEvent) error {
	if strings.TrimSpace(ev.UserID) == "" {
		return newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	release := e.sessions.Acquire(ev.UserID)
	defer release()

	switch ev.Type {
	case domain.EventFollow:
		e.sessions.Clear(ev.UserID)
		return e.reply(ctx, ev, welcomeMessage())
	case domain.EventMessage, domain.EventPostback:
		return e.dispatch(ctx, ev)
	default:
		return newError(ErrorInvalidInput, "unknown_event_type", nil)
	}
}

func (e *ConversationEngine) dispatch(ctx context.Context, ev domain.InboundEvent) error {
	cmd := ClassifyIntent(ev.Text)
	if cmd != CommandNone {
		metrics.ConversationCommandsTotal.WithLabelValues(string(cmd)).Inc()
	}

	// Cancel pre-empts all state-specific handling.
	if cmd == CommandCancel {
		e.sessions.Clear(ev.UserID)
		return e.reply(ctx, ev, cancelAckMessage())
	}

	switch e.sessions.State(ev.UserID) {
	case session.StateNone:
		return e.handleIdle(ctx, ev, cmd)
	case session.StateAwaitingFormCompletion:
		// Data arrives through the external form, not the chat.
		return e.reply(ctx, ev, personalFormMessage(e.links.PersonalInfo(ev.UserID)))
	case session.StateAwaitingUserDataConfirmation:
		return e.handleConfirmation(ctx, ev, cmd)
	case session.StateAwaitingTrackingMethod:
		return e.handleTrackingMethod(ctx, ev, cmd)
	case session.StateAwaitingRequestID:
		return e.handleRequestIDLookup(ctx, ev)
	case session.StateAwaitingPhoneNumber:
		return e.handlePhoneLookup(ctx, ev)
	default:
		e.sessions.Clear(ev.UserID)
		return e.reply(ctx, ev, menuMessage())
	}
}

func (e *ConversationEngine) handleIdle(ctx context.Context, ev domain.InboundEvent, cmd Command) error {
	switch cmd {
	case CommandReportIssue:
		return e.startIntake(ctx, ev)
	case CommandTrackStatus:
		e.sessions.SetState(ev.UserID, session.StateAwaitingTrackingMethod)
		return e.reply(ctx, ev, trackingMethodMessage())
	default:
		// Safe fallback: anything unrecognized in the idle state re-shows
		// the menu instead of guessing.
		return e.reply(ctx, ev, menuMessage())
	}
}

func (e *ConversationEngine) startIntake(ctx context.Context, ev domain.InboundEvent) error {
	profile, ok, err := e.profiles.GetProfile(ctx, ev.UserID)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", ev.UserID).Msg("profile lookup failed")
		return e.reply(ctx, ev, genericFailureMessage())
	}
	if ok && profile.Complete() {
		// Short-circuit past data collection straight to confirmation.
		e.sessions.MergeDraft(ev.UserID, map[string]string{
			draftFullName: profile.FullName,
			draftPhone:    profile.Phone,
			draftAddress:  profile.Address,
		})
		e.sessions.SetState(ev.UserID, session.StateAwaitingUserDataConfirmation)
		return e.reply(ctx, ev, profileConfirmationMessage(profile.FullName, profile.Phone, profile.Address))
	}
	e.sessions.SetState(ev.UserID, session.StateAwaitingFormCompletion)
	return e.reply(ctx, ev, personalFormMessage(e.links.PersonalInfo(ev.UserID)))
}

func (e *ConversationEngine) handleConfirmation(ctx context.Context, ev domain.InboundEvent, cmd Command) error {
	draft := e.sessions.Draft(ev.UserID)
	switch cmd {
	case CommandConfirm:
		profile := domain.UserProfile{
			UserID:      ev.UserID,
			FullName:    draft[draftFullName],
			Phone:       draft[draftPhone],
			Address:     draft[draftAddress],
			ConfirmedAt: nowFunc(),
		}
		if !profile.Complete() {
			// Incomplete draft cannot be confirmed; send the user back to
			// the form rather than persisting a partial profile.
			e.sessions.SetState(ev.UserID, session.StateAwaitingFormCompletion)
			return e.reply(ctx, ev, personalFormMessage(e.links.PersonalInfo(ev.UserID)))
		}
		if err := e.profiles.PutProfile(ctx, profile); err != nil {
			e.log.Error().Err(err).Str("user_id", ev.UserID).Msg("profile persist failed")
			e.sessions.Clear(ev.UserID)
			return e.reply(ctx, ev, genericFailureMessage())
		}
		e.sessions.Clear(ev.UserID)
		return e.reply(ctx, ev, repairFormMessage(e.links.RepairForm(ev.UserID)))
	case CommandEdit:
		e.sessions.SetState(ev.UserID, session.StateAwaitingFormCompletion)
		return e.reply(ctx, ev, personalFormMessage(e.links.PersonalInfo(ev.UserID)))
	default:
		return e.reply(ctx, ev, profileConfirmationMessage(draft[draftFullName], draft[draftPhone], draft[draftAddress]))
	}
}

func (e *ConversationEngine) handleTrackingMethod(ctx context.Context, ev domain.InboundEvent, cmd Command) error {
	switch cmd {
	case CommandTrackByID:
		e.sessions.SetState(ev.UserID, session.StateAwaitingRequestID)
		return e.reply(ctx, ev, askRequestIDMessage())
	case CommandTrackByPhone:
		e.sessions.SetState(ev.UserID, session.StateAwaitingPhoneNumber)
		return e.reply(ctx, ev, askPhoneMessage())
	default:
		return e.reply(ctx, ev, trackingMethodMessage())
	}
}

// handleRequestIDLookup resolves a request by id. The session always
// returns to NONE, success or not, so a down repository cannot trap the
// user in a retry loop.
func (e *ConversationEngine) handleRequestIDLookup(ctx context.Context, ev domain.InboundEvent) error {
	token := strings.TrimSpace(ev.Text)
	e.sessions.Clear(ev.UserID)

	req, ok, err := e.requests.GetRequest(ctx, token)
	if err != nil {
		e.log.Error().Err(err).Str("request_id", token).Msg("request lookup failed")
		return e.reply(ctx, ev, genericFailureMessage())
	}
	if !ok {
		return e.reply(ctx, ev, requestNotFoundMessage(token))
	}
	return e.reply(ctx, ev, requestStatusMessage(req))
}

func (e *ConversationEngine) handlePhoneLookup(ctx context.Context, ev domain.InboundEvent) error {
	token := strings.TrimSpace(ev.Text)
	if !phonePattern.MatchString(token) {
		// Recoverable validation failure: stay in state and re-prompt.
		return e.reply(ctx, ev, phoneRetryMessage())
	}
	e.sessions.Clear(ev.UserID)

	reqs, err := e.requests.FindRequestsByPhone(ctx, token)
	if err != nil {
		e.log.Error().Err(err).Msg("phone lookup failed")
		return e.reply(ctx, ev, genericFailureMessage())
	}
	switch len(reqs) {
	case 0:
		return e.reply(ctx, ev, requestNotFoundMessage(token))
	case 1:
		return e.reply(ctx, ev, requestStatusMessage(reqs[0]))
	default:
		return e.reply(ctx, ev, requestListMessage(reqs))
	}
}

// ProfileSubmission is the flat record posted by the personal-info form.
type ProfileSubmission struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// HandleProfileSubmission resumes the intake flow with externally supplied
// draft fields, as if a conversational step had completed. The user is
// pushed a confirmation prompt out of turn.
func (e *ConversationEngine) HandleProfileSubmission(ctx context.Context, sub ProfileSubmission) error {
	if strings.TrimSpace(sub.UserID) == "" {
		return newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if sub.FullName == "" || sub.Address == "" {
		return newError(ErrorInvalidInput, "missing_required_fields", nil)
	}
	if !phonePattern.MatchString(sub.Phone) {
		return newError(ErrorInvalidInput, "bad_phone_shape", nil)
	}

	release := e.sessions.Acquire(sub.UserID)
	defer release()

	e.sessions.MergeDraft(sub.UserID, map[string]string{
		draftFullName: sub.FullName,
		draftPhone:    sub.Phone,
		draftAddress:  sub.Address,
	})
	e.sessions.SetState(sub.UserID, session.StateAwaitingUserDataConfirmation)

	if err := e.msgr.Push(ctx, sub.UserID, domain.NewText(profileConfirmationMessage(sub.FullName, sub.Phone, sub.Address))); err != nil {
		// The state is already advanced; the user can still confirm by
		// typing even if the prompt never arrived.
		e.log.Error().Err(err).Str("user_id", sub.UserID).Msg("confirmation push failed")
	}
	return nil
}

// RepairSubmission is the flat record posted by the repair-report form.
type RepairSubmission struct {
	UserID    string `json:"userId"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	PoleID    string `json:"poleId"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Problem   string `json:"problem"`
	PhotoRef  string `json:"photoRef"`
}

// HandleRepairSubmission persists a new repair request from the external
// repair form, filling personal fields from the confirmed profile when the
// form omits them, and confirms the assigned id back to the reporter.
func (e *ConversationEngine) HandleRepairSubmission(ctx context.Context, sub RepairSubmission) (domain.RepairRequest, error) {
	if strings.TrimSpace(sub.UserID) == "" {
		return domain.RepairRequest{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if strings.TrimSpace(sub.Problem) == "" {
		return domain.RepairRequest{}, newError(ErrorInvalidInput, "missing_problem", nil)
	}
	if sub.PoleID == "" && (sub.Latitude == "" || sub.Longitude == "") {
		return domain.RepairRequest{}, newError(ErrorInvalidInput, "missing_location", nil)
	}

	if sub.FullName == "" || sub.Phone == "" {
		profile, ok, err := e.profiles.GetProfile(ctx, sub.UserID)
		if err != nil {
			return domain.RepairRequest{}, newError(ErrorDependency, "profile_lookup_failed", err)
		}
		if ok {
			if sub.FullName == "" {
				sub.FullName = profile.FullName
			}
			if sub.Phone == "" {
				sub.Phone = profile.Phone
			}
			if sub.Address == "" {
				sub.Address = profile.Address
			}
		}
	}
	if sub.Phone != "" && !phonePattern.MatchString(sub.Phone) {
		return domain.RepairRequest{}, newError(ErrorInvalidInput, "bad_phone_shape", nil)
	}

	created, err := e.requests.CreateRequest(ctx, domain.RepairRequest{
		ReporterID:   sub.UserID,
		ReporterName: sub.FullName,
		Phone:        sub.Phone,
		Address:      sub.Address,
		PoleID:       sub.PoleID,
		Latitude:     sub.Latitude,
		Longitude:    sub.Longitude,
		Problem:      sub.Problem,
		PhotoRef:     sub.PhotoRef,
		Status:       domain.StatusPending,
		DateReported: nowFunc(),
	})
	if err != nil {
		return domain.RepairRequest{}, newError(ErrorDependency, "request_create_failed", err)
	}
	metrics.IntakeRequestsTotal.Inc()

	if err := e.msgr.Push(ctx, sub.UserID, domain.NewText(intakeReceiptMessage(created.ID))); err != nil {
		e.log.Error().Err(err).Str("request_id", created.ID).Msg("intake receipt push failed")
	}
	if e.ops != nil {
		if err := e.ops.Send(ctx, opsNewRequestSummary(created)); err != nil {
			e.log.Error().Err(err).Str("request_id", created.ID).Msg("ops intake notification failed")
		}
	}
	return created, nil
}

func (e *ConversationEngine) reply(ctx context.Context, ev domain.InboundEvent, text string) error {
	if err := e.msgr.Reply(ctx, ev.ReplyToken, domain.NewText(text)); err != nil {
		e.log.Error().Err(err).Str("user_id", ev.UserID).Msg("reply failed")
		return newError(ErrorDependency, "reply_failed", err)
	}
	return nil
}

var nowFunc = time.Now
