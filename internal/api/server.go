package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"repair-agent/internal/domain"
	"repair-agent/internal/usecase"
)

// SecretProvider supplies the webhook signing secret.
type SecretProvider interface {
	ChannelSecret(ctx context.Context) (string, error)
}

// RequestDirectory is the read-only repository slice the admin surface uses.
type RequestDirectory interface {
	GetRequest(ctx context.Context, id string) (domain.RepairRequest, bool, error)
	ListRequests(ctx context.Context) ([]domain.RepairRequest, error)
}

// Server owns the HTTP surface: the chat webhook, the external form intake
// endpoints, and the administrative transition API. Authentication is
// terminated upstream; admin requests carry the already-authenticated
// actor in X-Actor-Id / X-Actor-Role headers.
type Server struct {
	conv      *usecase.ConversationEngine
	lifecycle *usecase.LifecycleEngine
	directory RequestDirectory
	secrets   SecretProvider
	log       zerolog.Logger
	started   time.Time
}

func NewServer(conv *usecase.ConversationEngine, lifecycle *usecase.LifecycleEngine, directory RequestDirectory, secrets SecretProvider, logger zerolog.Logger) (*Server, error) {
	if conv == nil {
		return nil, errors.New("api: conversation engine must not be nil")
	}
	if lifecycle == nil {
		return nil, errors.New("api: lifecycle engine must not be nil")
	}
	if directory == nil {
		return nil, errors.New("api: request directory must not be nil")
	}
	if secrets == nil {
		return nil, errors.New("api: secret provider must not be nil")
	}
	return &Server{
		conv:      conv,
		lifecycle: lifecycle,
		directory: directory,
		secrets:   secrets,
		log:       logger,
		started:   time.Now(),
	}, nil
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))
		r.Post("/webhook", s.handleWebhook)
		r.Post("/api/form-submit", s.handleProfileForm)
		r.Post("/api/repair-form-submit", s.handleRepairForm)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Use(s.requireActor)
		r.Get("/repair-requests/{id}", s.handleGetRequest)
		r.Put("/repair-requests/{id}/status", s.handleUpdateStatus)
		r.Post("/repair-requests/batch-approval", s.handleBatchApproval)
		r.Get("/dashboard-summary", s.handleDashboardSummary)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"uptimeSeconds": int(time.Since(s.started).Seconds()),
		"startedAt":     s.started.UTC().Format(time.RFC3339),
	})
}

type actorCtxKey struct{}

// requireActor lifts the upstream-authenticated operator identity out of
// the headers. Token verification is not this service's job.
func (s *Server) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Actor-Id")
		role := r.Header.Get("X-Actor-Role")
		if id == "" || role == "" {
			writeError(w, http.StatusUnauthorized, "missing actor identity")
			return
		}
		actor := domain.Actor{ID: id, Role: domain.Role(role)}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorCtxKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorCtxKey{}).(domain.Actor)
	return actor
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

// writeUsecaseError maps the usecase error taxonomy onto HTTP statuses
// without leaking internal detail for dependency failures.
func writeUsecaseError(w http.ResponseWriter, err error) {
	switch usecase.CodeOf(err) {
	case usecase.ErrorInvalidInput:
		writeError(w, http.StatusBadRequest, err.Error())
	case usecase.ErrorNotFound:
		writeError(w, http.StatusNotFound, "request not found")
	case usecase.ErrorForbidden:
		writeError(w, http.StatusForbidden, "insufficient role for this transition")
	case usecase.ErrorConflict:
		writeError(w, http.StatusConflict, "request is in a terminal status")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
