package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"staffhub/internal/identity"
	"staffhub/internal/service"
	"staffhub/internal/validation"
)

type errorResponse struct {
	OK      bool    `json:"ok"`
	Error   string  `json:"error"`
	Message string  `json:"message,omitempty"`
	Shifts  []int64 `json:"shifts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, code, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	writeJSON(w, status, errorResponse{Error: code, Message: userMsg})
}

// respondWithServiceError maps a service error to its status and code.
// Only unexpected errors are logged.
func respondWithServiceError(w http.ResponseWriter, err error, logMsg string) {
	var capErr *service.CapacityError
	var consumed *service.ConsumedError
	var invalid validation.ValidationError

	switch {
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   CodeShiftsUnavailable,
			Message: "Some shifts are no longer available",
			Shifts:  capErr.ShiftIDs,
		})
	case errors.As(err, &consumed):
		respondWithError(w, http.StatusConflict, "already-"+consumed.Status, consumed.Error(), "", nil)
	case errors.As(err, &invalid):
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, invalid.Error(), "", nil)
	case errors.Is(err, service.ErrInvitationNotFound),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrShiftNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrSignInNotAvailable):
		respondWithError(w, http.StatusNotFound, CodeNotFound, err.Error(), "", nil)
	case errors.Is(err, service.ErrInvitationExpired):
		respondWithError(w, http.StatusGone, CodeExpired, "This invitation has expired", "", nil)
	case errors.Is(err, service.ErrInvitationRevoked):
		respondWithError(w, http.StatusGone, CodeRevoked, "This invitation has been revoked", "", nil)
	case errors.Is(err, service.ErrAlreadyConsumed):
		respondWithError(w, http.StatusConflict, CodeAlreadyUsed, "This invitation has already been used", "", nil)
	case errors.Is(err, service.ErrNoShifts):
		respondWithError(w, http.StatusUnprocessableEntity, CodeNoShifts, "This invitation has no shifts", "", nil)
	case errors.Is(err, service.ErrInvalidShifts):
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), "", nil)
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, CodeForbidden, err.Error(), "", nil)
	case errors.Is(err, service.ErrThrottled):
		respondWithError(w, http.StatusTooManyRequests, CodeThrottled, err.Error(), "", nil)
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrSessionExpired),
		identity.IsCredentialError(err):
		respondWithError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired credentials", "", nil)
	case errors.Is(err, service.ErrUpstreamIdentity):
		respondWithError(w, http.StatusBadGateway, CodeUpstreamIdentity, "Identity provider unavailable, try again", logMsg, err)
	default:
		respondWithError(w, http.StatusInternalServerError, CodeServerError, ErrInternalServerError, logMsg, err)
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, ErrInvalidRequestBody, "", nil)
		return false
	}
	return true
}
