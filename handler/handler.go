package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"repair-agent/internal/domain"
	"repair-agent/internal/integrations/linemsg"
	"repair-agent/internal/usecase"
)

// Conversation is the conversational surface the handler drives.
type Conversation interface {
	HandleEvent(ctx context.Context, ev domain.InboundEvent) error
	HandleProfileSubmission(ctx context.Context, sub usecase.ProfileSubmission) error
	HandleRepairSubmission(ctx context.Context, sub usecase.RepairSubmission) (domain.RepairRequest, error)
}

// Lifecycle is the administrative transition surface.
type Lifecycle interface {
	Transition(ctx context.Context, in usecase.TransitionInput) (domain.RepairRequest, error)
	BatchTransition(ctx context.Context, ids []string, shared usecase.TransitionInput) (usecase.BatchResult, error)
}

// Secrets supplies the webhook signing secret.
type Secrets interface {
	ChannelSecret(ctx context.Context) (string, error)
}

// Handler routes API Gateway proxy events onto the usecases for the
// Lambda deployment. The long-running deployment uses internal/api
// instead; both expose the same routes.
type Handler struct {
	conv      Conversation
	lifecycle Lifecycle
	secrets   Secrets
	log       zerolog.Logger
}

func NewHandler(conv Conversation, lifecycle Lifecycle, secrets Secrets, logger zerolog.Logger) (*Handler, error) {
	if conv == nil {
		return nil, errors.New("handler: conversation must not be nil")
	}
	if lifecycle == nil {
		return nil, errors.New("handler: lifecycle must not be nil")
	}
	if secrets == nil {
		return nil, errors.New("handler: secrets must not be nil")
	}
	return &Handler{conv: conv, lifecycle: lifecycle, secrets: secrets, log: logger}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimRight(req.Path, "/")
	switch {
	case req.HTTPMethod == http.MethodPost && path == "/webhook":
		return h.handleWebhook(ctx, req), nil
	case req.HTTPMethod == http.MethodPost && path == "/api/form-submit":
		return h.handleProfileForm(ctx, req), nil
	case req.HTTPMethod == http.MethodPost && path == "/api/repair-form-submit":
		return h.handleRepairForm(ctx, req), nil
	case req.HTTPMethod == http.MethodPut && isStatusPath(path):
		return h.handleUpdateStatus(ctx, req, statusPathID(path)), nil
	case req.HTTPMethod == http.MethodPost && path == "/api/admin/repair-requests/batch-approval":
		return h.handleBatchApproval(ctx, req), nil
	default:
		return errorResponse(http.StatusNotFound, "unknown route"), nil
	}
}

const (
	statusPathPrefix = "/api/admin/repair-requests/"
	statusPathSuffix = "/status"
)

func isStatusPath(path string) bool {
	return strings.HasPrefix(path, statusPathPrefix) && strings.HasSuffix(path, statusPathSuffix) &&
		statusPathID(path) != "" && !strings.Contains(statusPathID(path), "/")
}

func statusPathID(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, statusPathPrefix), statusPathSuffix)
}

func (h *Handler) handleWebhook(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body := []byte(req.Body)

	secret, err := h.secrets.ChannelSecret(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("channel secret unavailable")
		return errorResponse(http.StatusInternalServerError, "internal error")
	}
	if !linemsg.SignatureValid(secret, body, header(req, "X-Line-Signature")) {
		return errorResponse(http.StatusForbidden, "invalid signature")
	}

	evs, err := linemsg.ParseWebhookEvents(body)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "malformed payload")
	}
	for _, ev := range evs {
		if err := h.conv.HandleEvent(ctx, ev); err != nil {
			h.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("webhook event failed")
		}
	}
	return jsonResponse(http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) handleProfileForm(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var sub usecase.ProfileSubmission
	if err := json.Unmarshal([]byte(req.Body), &sub); err != nil {
		return errorResponse(http.StatusBadRequest, "malformed body")
	}
	if err := h.conv.HandleProfileSubmission(ctx, sub); err != nil {
		return usecaseErrorResponse(err)
	}
	return jsonResponse(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "บันทึกข้อมูลส่วนตัวเรียบร้อยแล้ว กรุณายืนยันข้อมูลในแชท",
	})
}

func (h *Handler) handleRepairForm(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var sub usecase.RepairSubmission
	if err := json.Unmarshal([]byte(req.Body), &sub); err != nil {
		return errorResponse(http.StatusBadRequest, "malformed body")
	}
	created, err := h.conv.HandleRepairSubmission(ctx, sub)
	if err != nil {
		return usecaseErrorResponse(err)
	}
	return jsonResponse(http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "รับเรื่องแจ้งซ่อมเรียบร้อยแล้ว",
		"requestId": created.ID,
	})
}

func (h *Handler) handleUpdateStatus(ctx context.Context, req events.APIGatewayProxyRequest, id string) events.APIGatewayProxyResponse {
	actor, ok := actorFrom(req)
	if !ok {
		return errorResponse(http.StatusUnauthorized, "missing actor identity")
	}

	var body struct {
		NewStatus               string `json:"newStatus"`
		TechnicianNotes         string `json:"technicianNotes"`
		SignatureURL            string `json:"signatureUrl"`
		ApprovalTimestampClient string `json:"approvalTimestampClient"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, "malformed body")
	}

	updated, err := h.lifecycle.Transition(ctx, usecase.TransitionInput{
		RequestID:       id,
		Actor:           actor,
		NewStatus:       domain.Status(body.NewStatus),
		Notes:           body.TechnicianNotes,
		SignatureRef:    body.SignatureURL,
		ClientTimestamp: body.ApprovalTimestampClient,
	})
	if err != nil {
		return usecaseErrorResponse(err)
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"status":    "success",
		"requestId": updated.ID,
		"newStatus": string(updated.Status),
	})
}

func (h *Handler) handleBatchApproval(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	actor, ok := actorFrom(req)
	if !ok {
		return errorResponse(http.StatusUnauthorized, "missing actor identity")
	}

	var body struct {
		RequestIDs   []string `json:"requestIds"`
		Decision     string   `json:"decision"`
		Notes        string   `json:"notes"`
		SignatureURL string   `json:"signatureUrl"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, "malformed body")
	}

	result, err := h.lifecycle.BatchTransition(ctx, body.RequestIDs, usecase.TransitionInput{
		Actor:        actor,
		NewStatus:    domain.Status(body.Decision),
		Notes:        body.Notes,
		SignatureRef: body.SignatureURL,
	})
	if err != nil {
		return usecaseErrorResponse(err)
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"status":  "success",
		"message": result.SummaryMessage(),
		"results": result.Results,
		"summary": map[string]int{"success": result.Succeeded, "failed": result.Failed},
	})
}

// actorFrom lifts the upstream-authenticated operator identity out of the
// proxy event headers.
func actorFrom(req events.APIGatewayProxyRequest) (domain.Actor, bool) {
	id := header(req, "X-Actor-Id")
	role := header(req, "X-Actor-Role")
	if id == "" || role == "" {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: id, Role: domain.Role(role)}, true
}

// header does a case-insensitive lookup; API Gateway does not normalize
// header casing in proxy events.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(v)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       string(body),
	}
}

func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"status": "error", "message": message})
}

func usecaseErrorResponse(err error) events.APIGatewayProxyResponse {
	switch usecase.CodeOf(err) {
	case usecase.ErrorInvalidInput:
		return errorResponse(http.StatusBadRequest, err.Error())
	case usecase.ErrorNotFound:
		return errorResponse(http.StatusNotFound, "request not found")
	case usecase.ErrorForbidden:
		return errorResponse(http.StatusForbidden, "insufficient role for this transition")
	case usecase.ErrorConflict:
		return errorResponse(http.StatusConflict, "request is in a terminal status")
	default:
		return errorResponse(http.StatusInternalServerError, "internal error")
	}
}
