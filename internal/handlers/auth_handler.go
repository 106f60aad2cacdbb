package handlers

import (
	"net/http"

	"staffhub/internal/models"
	"staffhub/internal/security"
	"staffhub/internal/service"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService *service.AuthService
	csrf        *security.CSRF
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, csrf *security.CSRF) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		csrf:        csrf,
	}
}

type userResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	HasPassword bool   `json:"has_password"`
}

type sessionResponse struct {
	OK        bool         `json:"ok"`
	User      userResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		HasPassword: user.HasPassword,
	}
}

// SignIn exchanges a one-time credential from onboarding for a session
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Credential == "" {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "credential is required", "", nil)
		return
	}

	session, user, err := h.authService.ExchangeSignInCredential(r.Context(), req.Credential)
	if err != nil {
		respondWithServiceError(w, err, "Error exchanging sign-in credential")
		return
	}

	h.startSession(w, r, session, user)
}

// Login handles password login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, err, "Error during login")
		return
	}

	h.startSession(w, r, session, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, session *models.Session, user *models.User) {
	http.SetCookie(w, security.SessionCookie(r, session.ID, session.ExpiresAt))
	writeJSON(w, http.StatusOK, sessionResponse{
		OK:        true,
		User:      toUserResponse(user),
		CSRFToken: h.csrf.Token(session.ID),
	})
}

// SetPassword lets a signed in user set or replace their password
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.SetPassword(r.Context(), user, req.Password); err != nil {
		respondWithServiceError(w, err, "Error setting password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "user": toUserResponse(user)})
}

// Logout handles logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := security.SessionIDFromRequest(r); sessionID != "" {
		// Delete session from database
		_ = h.authService.Logout(r.Context(), sessionID)
	}

	http.SetCookie(w, security.ClearSessionCookie(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
