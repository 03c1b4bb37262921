package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"repair-agent/internal/domain"
	"repair-agent/internal/usecase"
)

type statusUpdateRequest struct {
	NewStatus               string `json:"newStatus"`
	TechnicianNotes         string `json:"technicianNotes"`
	SignatureURL            string `json:"signatureUrl"`
	ApprovalTimestampClient string `json:"approvalTimestampClient"`
}

type batchApprovalRequest struct {
	RequestIDs   []string `json:"requestIds"`
	Decision     string   `json:"decision"`
	Notes        string   `json:"notes"`
	SignatureURL string   `json:"signatureUrl"`
}

type requestView struct {
	RequestID       string `json:"requestId"`
	ReporterName    string `json:"reporterName"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	PoleID          string `json:"poleId,omitempty"`
	Latitude        string `json:"latitude,omitempty"`
	Longitude       string `json:"longitude,omitempty"`
	Problem         string `json:"problem"`
	PhotoRef        string `json:"photoRef,omitempty"`
	Status          string `json:"status"`
	TechnicianNotes string `json:"technicianNotes,omitempty"`
	ApprovedBy      string `json:"approvedBy,omitempty"`
	ApprovalTime    string `json:"approvalTime,omitempty"`
	SignatureRef    string `json:"signatureRef,omitempty"`
	DateReported    string `json:"dateReported"`
}

func toRequestView(req domain.RepairRequest) requestView {
	v := requestView{
		RequestID:       req.ID,
		ReporterName:    req.ReporterName,
		Phone:           req.Phone,
		Address:         req.Address,
		PoleID:          req.PoleID,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		Problem:         req.Problem,
		PhotoRef:        req.PhotoRef,
		Status:          string(req.Status),
		TechnicianNotes: req.TechnicianNotes,
		ApprovedBy:      req.ApprovedBy,
		SignatureRef:    req.SignatureRef,
	}
	if !req.ApprovalTime.IsZero() {
		v.ApprovalTime = req.ApprovalTime.UTC().Format(time.RFC3339)
	}
	if !req.DateReported.IsZero() {
		v.DateReported = req.DateReported.UTC().Format(time.RFC3339)
	}
	return v
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok, err := s.directory.GetRequest(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", id).Msg("request read failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": toRequestView(req)})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	updated, err := s.lifecycle.Transition(r.Context(), usecase.TransitionInput{
		RequestID:       chi.URLParam(r, "id"),
		Actor:           actorFrom(r.Context()),
		NewStatus:       domain.Status(body.NewStatus),
		Notes:           body.TechnicianNotes,
		SignatureRef:    body.SignatureURL,
		ClientTimestamp: body.ApprovalTimestampClient,
	})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": toRequestView(updated)})
}

func (s *Server) handleBatchApproval(w http.ResponseWriter, r *http.Request) {
	var body batchApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	result, err := s.lifecycle.BatchTransition(r.Context(), body.RequestIDs, usecase.TransitionInput{
		Actor:        actorFrom(r.Context()),
		NewStatus:    domain.Status(body.Decision),
		Notes:        body.Notes,
		SignatureRef: body.SignatureURL,
	})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": result.SummaryMessage(),
		"results": result.Results,
		"summary": map[string]int{"success": result.Succeeded, "failed": result.Failed},
	})
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.directory.ListRequests(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("request list failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	counts := make(map[string]int, len(domain.AllStatuses))
	for _, st := range domain.AllStatuses {
		counts[string(st)] = 0
	}
	for _, req := range reqs {
		counts[string(req.Status)]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"summary": map[string]any{
			"total":    len(reqs),
			"byStatus": counts,
		},
	})
}
