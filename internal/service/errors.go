package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationRevoked  = errors.New("invitation revoked")
	ErrAlreadyConsumed    = errors.New("invitation already used")
	ErrCapacityExhausted  = errors.New("shifts unavailable")
	ErrNoShifts           = errors.New("invitation references no shifts")
	ErrUpstreamIdentity   = errors.New("identity provider failure")
	ErrForbidden          = errors.New("not allowed to manage this company")
	ErrThrottled          = errors.New("too many invitations, try again later")
	ErrJobNotFound        = errors.New("job not found")
	ErrShiftNotFound      = errors.New("shift not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidShifts      = errors.New("shifts do not belong to the job")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSignInNotAvailable = errors.New("sign-in credentials are not handled locally")
	errRedemptionConflict = errors.New("invitation changed during redemption")
)

// ErrInvalidToken is returned for tokens that cannot exist, without a lookup.
// It matches ErrInvitationNotFound.
var ErrInvalidToken = fmt.Errorf("malformed invitation token: %w", ErrInvitationNotFound)

// CapacityError lists the shifts that had no room left when a shift
// invitation was redeemed
type CapacityError struct {
	ShiftIDs []int64
}

func (e *CapacityError) Error() string {
	ids := make([]string, len(e.ShiftIDs))
	for i, id := range e.ShiftIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("shifts unavailable: [%s]", strings.Join(ids, ","))
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExhausted
}

// ConsumedError reports the terminal status an invitation already reached
type ConsumedError struct {
	Status string
}

func (e *ConsumedError) Error() string {
	return "invitation already " + e.Status
}

func (e *ConsumedError) Is(target error) bool {
	return target == ErrAlreadyConsumed
}
