package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"staffhub/internal/identity"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/internal/validation"
)

const maxNameLength = 100

// ResolvedIdentity pairs the identity provider account with the local user
type ResolvedIdentity struct {
	Identity *identity.Identity
	User     *models.User
}

// IdentityResolver finds or creates both the external identity and the local
// user for an email. Calling it twice, or concurrently, yields the same pair.
type IdentityResolver struct {
	provider identity.Provider
	users    *repository.UserRepository
	timeout  time.Duration
}

func NewIdentityResolver(provider identity.Provider, users *repository.UserRepository, timeout time.Duration) *IdentityResolver {
	return &IdentityResolver{
		provider: provider,
		users:    users,
		timeout:  timeout,
	}
}

// Resolve returns the identity and local user for email. Identity provider
// failures are reported as ErrUpstreamIdentity.
func (r *IdentityResolver) Resolve(ctx context.Context, email string) (*ResolvedIdentity, error) {
	ident, err := r.resolveExternal(ctx, email)
	if err != nil {
		return nil, err
	}

	user, err := r.resolveLocal(ctx, email, ident)
	if err != nil {
		return nil, err
	}

	return &ResolvedIdentity{Identity: ident, User: user}, nil
}

func (r *IdentityResolver) resolveExternal(ctx context.Context, email string) (*identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ident, err := r.provider.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: find identity: %w", ErrUpstreamIdentity, err)
	}
	if ident != nil {
		return ident, nil
	}

	ident, err = r.provider.CreateUser(ctx, email)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, identity.ErrIdentityExists) {
		return nil, fmt.Errorf("%w: create identity: %w", ErrUpstreamIdentity, err)
	}

	// Created concurrently by someone else
	ident, err = r.provider.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: find identity: %w", ErrUpstreamIdentity, err)
	}
	if ident == nil {
		return nil, fmt.Errorf("%w: identity for %s exists but cannot be found", ErrUpstreamIdentity, email)
	}
	return ident, nil
}

func (r *IdentityResolver) resolveLocal(ctx context.Context, email string, ident *identity.Identity) (*models.User, error) {
	user, err := r.users.GetUserByIdentityOrEmail(ctx, ident.ID, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user, err = r.users.CreateUser(ctx, email, ident.ID, defaultName(email))
		if err == nil {
			return user, nil
		}
		if !r.users.IsDuplicate(err) {
			return nil, err
		}

		user, err = r.users.GetUserByIdentityOrEmail(ctx, ident.ID, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("user for %s exists but cannot be found", email)
		}
	}

	if user.AuthIdentityID == "" {
		if _, err := r.users.LinkAuthIdentity(ctx, user.ID, ident.ID); err != nil {
			return nil, err
		}
		user.AuthIdentityID = ident.ID
	} else if user.AuthIdentityID != ident.ID {
		log.Printf("User %d is linked to identity %s, not %s", user.ID, user.AuthIdentityID, ident.ID)
	}

	return user, nil
}

// defaultName derives a display name from the email's local part, falling
// back to the address itself when the local part is not a usable name
func defaultName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	if validation.ValidateName(name) == nil {
		return name
	}
	if len(email) > maxNameLength {
		return email[:maxNameLength]
	}
	return email
}
