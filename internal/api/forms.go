package api

import (
	"encoding/json"
	"net/http"

	"repair-agent/internal/usecase"
)

// handleProfileForm accepts the personal-info form submission and resumes
// the intake flow as if a conversational step had completed.
func (s *Server) handleProfileForm(w http.ResponseWriter, r *http.Request) {
	var sub usecase.ProfileSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.conv.HandleProfileSubmission(r.Context(), sub); err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "บันทึกข้อมูลส่วนตัวเรียบร้อยแล้ว กรุณายืนยันข้อมูลในแชท",
	})
}

// handleRepairForm accepts the repair-report form submission, creating the
// durable request.
func (s *Server) handleRepairForm(w http.ResponseWriter, r *http.Request) {
	var sub usecase.RepairSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	created, err := s.conv.HandleRepairSubmission(r.Context(), sub)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "รับเรื่องแจ้งซ่อมเรียบร้อยแล้ว",
		"requestId": created.ID,
	})
}
