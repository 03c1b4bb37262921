package api

import (
	"io"
	"net/http"

	"repair-agent/internal/integrations/linemsg"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	secret, err := s.secrets.ChannelSecret(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("channel secret unavailable")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !linemsg.SignatureValid(secret, body, r.Header.Get("X-Line-Signature")) {
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	events, err := linemsg.ParseWebhookEvents(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	// Always acknowledge once the payload is accepted: the platform
	// retries on non-2xx, and session state may already have advanced.
	for _, ev := range events {
		if err := s.conv.HandleEvent(r.Context(), ev); err != nil {
			s.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("webhook event failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
