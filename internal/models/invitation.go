package models

import "time"

// Invitation statuses shared by role and job invitations
const (
	StatusPending     = "pending"
	StatusAccepted    = "accepted"
	StatusSpotsFilled = "spots_filled"
	StatusExpired     = "expired"
	StatusRevoked     = "revoked"
)

// Invitation onboards a collaborator into a company role
type Invitation struct {
	ID         int64
	Token      string
	Email      string
	CompanyID  int64
	Role       string
	Status     string
	InvitedBy  *int64
	RedeemedAt *time.Time
	RedeemedBy *int64
	ExpiresAt  time.Time
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func (i *Invitation) IsRevoked() bool {
	return i.DeletedAt != nil
}

func (i *Invitation) IsRedeemed() bool {
	return i.RedeemedAt != nil
}

// IsTerminal reports whether no further transition is permitted
func (i *Invitation) IsTerminal() bool {
	return i.IsRedeemed() || i.IsRevoked()
}

// JobInvitation offers a worker one or more shifts of a job
type JobInvitation struct {
	ID          int64
	Token       string
	UserID      int64
	JobID       int64
	ShiftIDs    []int64
	InvitedBy   int64
	Status      string
	RespondedAt *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// FullShiftIDs lists the shifts found without capacity when the
	// invitation ended as spots_filled
	FullShiftIDs []int64
}

func (j *JobInvitation) IsExpired(now time.Time) bool {
	return !now.Before(j.ExpiresAt)
}

func (j *JobInvitation) IsPending() bool {
	return j.Status == StatusPending
}
