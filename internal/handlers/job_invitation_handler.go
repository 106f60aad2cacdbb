package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"staffhub/internal/models"
	"staffhub/internal/service"
	"staffhub/internal/validation"
)

// JobInvitationHandler serves shift invitation and capacity routes
type JobInvitationHandler struct {
	invitations *service.JobInvitationService
	capacity    *service.CapacityChecker
}

func NewJobInvitationHandler(invitations *service.JobInvitationService, capacity *service.CapacityChecker) *JobInvitationHandler {
	return &JobInvitationHandler{
		invitations: invitations,
		capacity:    capacity,
	}
}

type jobInvitationResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	JobID     int64     `json:"job_id"`
	ShiftIDs  []int64   `json:"shift_ids"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Accept redeems a shift invitation, assigning every offered shift or none
func (h *JobInvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.invitations.AcceptJobInvitation(r.Context(), token)
	if err != nil {
		respondWithServiceError(w, err, "Error accepting job invitation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"invitation_id":   result.InvitationID,
		"shifts_assigned": result.ShiftsAssigned,
	})
}

// Create offers shifts of a job to a worker
func (h *JobInvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   int64   `json:"user_id" validate:"required,gt=0"`
		JobID    int64   `json:"job_id" validate:"required,gt=0"`
		ShiftIDs []int64 `json:"shift_ids" validate:"dive,gt=0"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithServiceError(w, err, "")
		return
	}

	inv, err := h.invitations.CreateJobInvitation(r.Context(), GetUserFromContext(r.Context()), req.UserID, req.JobID, req.ShiftIDs)
	if err != nil {
		respondWithServiceError(w, err, "Error creating job invitation")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":         true,
		"invitation": toJobInvitationResponse(inv),
	})
}

// Revoke withdraws a pending shift invitation
func (h *JobInvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.invitations.RevokeJobInvitation(r.Context(), GetUserFromContext(r.Context()), id); err != nil {
		respondWithServiceError(w, err, "Error revoking job invitation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Capacity reports remaining slots for ?ids=1,2,3
func (h *JobInvitationHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil || len(ids) == 0 {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "ids must be a comma separated list of shift IDs", "", nil)
		return
	}

	remaining, err := h.capacity.CheckCapacity(r.Context(), ids)
	if err != nil {
		respondWithServiceError(w, err, "Error checking shift capacity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "remaining": remaining})
}

type assignmentResponse struct {
	UserID     int64     `json:"user_id"`
	AssignedBy *int64    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Roster lists who currently holds a shift
func (h *JobInvitationHandler) Roster(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	assignments, err := h.invitations.ShiftRoster(r.Context(), GetUserFromContext(r.Context()), id)
	if err != nil {
		respondWithServiceError(w, err, "Error loading shift roster")
		return
	}

	roster := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		roster = append(roster, assignmentResponse{UserID: a.UserID, AssignedBy: a.AssignedBy, AssignedAt: a.AssignedAt})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "shift_id": id, "assignments": roster})
}

func toJobInvitationResponse(inv *models.JobInvitation) jobInvitationResponse {
	return jobInvitationResponse{
		ID:        inv.ID,
		UserID:    inv.UserID,
		JobID:     inv.JobID,
		ShiftIDs:  inv.ShiftIDs,
		Status:    inv.Status,
		ExpiresAt: inv.ExpiresAt,
	}
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
