package models

import "time"

// Job groups the shifts a company schedules for one engagement
type Job struct {
	ID        int64
	CompanyID int64
	Title     string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Shift is a scheduled slot that holds at most WorkersNeeded active assignments
type Shift struct {
	ID            int64
	JobID         int64
	WorkersNeeded int
	StartsAt      *time.Time
	EndsAt        *time.Time
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// ShiftAssignment places a worker on a shift. Cancelled or deleted
// assignments no longer count against capacity.
type ShiftAssignment struct {
	ID          int64
	ShiftID     int64
	UserID      int64
	AssignedBy  *int64
	AssignedAt  time.Time
	CancelledAt *time.Time
	DeletedAt   *time.Time
}

func (a *ShiftAssignment) IsActive() bool {
	return a.CancelledAt == nil && a.DeletedAt == nil
}
