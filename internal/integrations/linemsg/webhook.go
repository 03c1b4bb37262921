package linemsg

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"repair-agent/internal/domain"
)

// webhookEnvelope is the subset of the LINE webhook delivery this service
// consumes.
type webhookEnvelope struct {
	Events []struct {
		Type       string `json:"type"`
		ReplyToken string `json:"replyToken"`
		Source     struct {
			UserID string `json:"userId"`
		} `json:"source"`
		Message struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"message"`
		Postback struct {
			Data string `json:"data"`
		} `json:"postback"`
	} `json:"events"`
}

// SignatureValid checks the HMAC-SHA256 body signature LINE attaches to
// every webhook delivery.
func SignatureValid(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhookEvents normalizes a webhook delivery into inbound events.
// Event kinds and message types outside the conversational surface
// (stickers, images, unfollow) are dropped.
func ParseWebhookEvents(body []byte) ([]domain.InboundEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("linemsg: parse webhook: %w", err)
	}

	events := make([]domain.InboundEvent, 0, len(envelope.Events))
	for _, raw := range envelope.Events {
		ev := domain.InboundEvent{
			Type:       domain.EventType(raw.Type),
			UserID:     raw.Source.UserID,
			ReplyToken: raw.ReplyToken,
		}
		switch ev.Type {
		case domain.EventMessage:
			if raw.Message.Type != "text" {
				continue
			}
			ev.Text = raw.Message.Text
		case domain.EventPostback:
			ev.Text = raw.Postback.Data
		case domain.EventFollow:
		default:
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
