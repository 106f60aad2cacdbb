package models

import "time"

// Company roles
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleWorker  = "worker"
)

// ManagingRoles may invite collaborators and staff shifts
var ManagingRoles = []string{RoleOwner, RoleAdmin, RoleManager}

// User represents a local account linked to an external auth identity
type User struct {
	ID             int64
	Email          string
	AuthIdentityID string
	Name           string
	PasswordHash   string
	HasPassword    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RoleGrant gives a user a role within a company
type RoleGrant struct {
	ID        int64
	UserID    int64
	CompanyID int64
	Role      string
	GrantedBy *int64
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Session represents an authenticated session
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
