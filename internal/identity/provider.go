// Package identity talks to the identity provider that owns user credentials.
// Local state only ever references identities by ID.
package identity

import (
	"context"
	"errors"
)

var (
	ErrIdentityExists    = errors.New("identity already exists")
	ErrInvalidCredential = errors.New("invalid sign-in credential")
	ErrCredentialUsed    = errors.New("sign-in credential already used")
)

// Identity is an account held by the identity provider
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Confirmed bool   `json:"confirmed"`
}

// Provider is the subset of the identity provider used during onboarding
type Provider interface {
	// FindByEmail returns nil when no identity uses email
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// CreateUser creates a confirmed identity without a password. It returns
	// ErrIdentityExists when the email is already registered.
	CreateUser(ctx context.Context, email string) (*Identity, error)

	// IssueOneTimeCredential returns a short-lived credential the user can
	// exchange once for a session
	IssueOneTimeCredential(ctx context.Context, identity *Identity) (string, error)
}

// CredentialVerifier consumes credentials issued by IssueOneTimeCredential
type CredentialVerifier interface {
	VerifyOneTimeCredential(ctx context.Context, credential string) (*Identity, error)
}
