package handlers

import (
	"net/http"
	"strconv"
	"time"

	"staffhub/internal/models"
	"staffhub/internal/service"
	"staffhub/internal/validation"
)

// InvitationHandler serves role invitation routes
type InvitationHandler struct {
	invitations *service.InvitationService
}

func NewInvitationHandler(invitations *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

type invitationResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CompanyID int64     `json:"company_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roleRedemptionResponse struct {
	OK           bool   `json:"ok"`
	InvitationID int64  `json:"invitation_id"`
	UserID       int64  `json:"user_id"`
	CompanyID    int64  `json:"company_id"`
	Role         string `json:"role"`
	SessionProof string `json:"session_proof,omitempty"`
	Reentry      bool   `json:"reentry,omitempty"`
}

// Accept redeems a role invitation. The token comes from the query string on
// GET and from the JSON body on POST.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.invitations.AcceptInvitation(r.Context(), token, GetUserFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err, "Error accepting invitation")
		return
	}

	writeJSON(w, http.StatusOK, roleRedemptionResponse{
		OK:           true,
		InvitationID: result.InvitationID,
		UserID:       result.UserID,
		CompanyID:    result.CompanyID,
		Role:         result.Role,
		SessionProof: result.SessionProof,
		Reentry:      result.Reentry,
	})
}

// Create invites a collaborator into a company
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email" validate:"required"`
		CompanyID int64  `json:"company_id" validate:"required,gt=0"`
		Role      string `json:"role" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithServiceError(w, err, "")
		return
	}

	inv, err := h.invitations.CreateInvitation(r.Context(), GetUserFromContext(r.Context()), req.Email, req.CompanyID, req.Role)
	if err != nil {
		respondWithServiceError(w, err, "Error creating invitation")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":         true,
		"invitation": toInvitationResponse(inv),
	})
}

// Revoke withdraws a role invitation
func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.invitations.RevokeInvitation(r.Context(), GetUserFromContext(r.Context()), id); err != nil {
		respondWithServiceError(w, err, "Error revoking invitation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func toInvitationResponse(inv *models.Invitation) invitationResponse {
	status := inv.Status
	if inv.IsRevoked() {
		status = models.StatusRevoked
	}
	return invitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		CompanyID: inv.CompanyID,
		Role:      inv.Role,
		Status:    status,
		ExpiresAt: inv.ExpiresAt,
	}
}

// tokenFromRequest reads the invitation token from the query on GET or the
// JSON body otherwise. An empty token is passed on and reported as not found.
func tokenFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("token"), true
	}

	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	return req.Token, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid ID", "", nil)
		return 0, false
	}
	return id, true
}
