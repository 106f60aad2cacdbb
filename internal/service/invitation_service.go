package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/identity"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/internal/security"
	"staffhub/internal/validation"
)

// InvitationOptions holds the tunables shared by both invitation services
type InvitationOptions struct {
	TTL          time.Duration
	StoreTimeout time.Duration
	AppBaseURL   string
}

// RoleRedemption is the outcome of accepting a role invitation
type RoleRedemption struct {
	InvitationID int64
	UserID       int64
	CompanyID    int64
	Role         string

	// SessionProof is a one-time credential for the new collaborator. It is
	// empty on re-entry, when the caller already holds a session.
	SessionProof string
	Reentry      bool
}

// InvitationService drives the role invitation lifecycle
type InvitationService struct {
	db          *database.DB
	invitations *repository.InvitationRepository
	roles       *repository.RoleRepository
	resolver    *IdentityResolver
	provider    identity.Provider
	notifier    Notifier
	throttle    security.Throttle
	opts        InvitationOptions
	now         func() time.Time
}

func NewInvitationService(
	db *database.DB,
	invitations *repository.InvitationRepository,
	roles *repository.RoleRepository,
	resolver *IdentityResolver,
	provider identity.Provider,
	notifier Notifier,
	throttle security.Throttle,
	opts InvitationOptions,
) *InvitationService {
	return &InvitationService{
		db:          db,
		invitations: invitations,
		roles:       roles,
		resolver:    resolver,
		provider:    provider,
		notifier:    notifier,
		throttle:    throttle,
		opts:        opts,
		now:         time.Now,
	}
}

// CreateInvitation invites email into companyID with role on behalf of inviter
func (s *InvitationService) CreateInvitation(ctx context.Context, inviter *models.User, email string, companyID int64, role string) (*models.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidateRole(role); err != nil {
		return nil, err
	}

	if err := authorizeManager(ctx, s.roles, inviter, companyID); err != nil {
		return nil, err
	}
	if err := allowInvite(ctx, s.throttle, inviter); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	inv, err := s.invitations.CreateInvitation(ctx, email, companyID, role, inviter.ID, s.now().Add(s.opts.TTL))
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(Notification{
		Kind:    NotifyInvitationCreated,
		To:      inv.Email,
		Subject: "You have been invited to join a team",
		Text: fmt.Sprintf("You have been invited to join as %s.\n\nAccept the invitation: %s/invitations/accept?token=%s\n\nThis link expires on %s.\n",
			inv.Role, s.opts.AppBaseURL, inv.Token, inv.ExpiresAt.Format(time.RFC1123)),
	})

	return inv, nil
}

// RevokeInvitation withdraws an invitation that has not been redeemed.
// Revoking twice is not an error.
func (s *InvitationService) RevokeInvitation(ctx context.Context, inviter *models.User, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	inv, err := s.invitations.GetInvitationByID(ctx, id)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrInvitationNotFound
	}
	if err := authorizeManager(ctx, s.roles, inviter, inv.CompanyID); err != nil {
		return err
	}

	revoked, err := s.invitations.RevokeInvitation(ctx, id, s.now())
	if err != nil {
		return err
	}
	if revoked {
		log.Printf("Invitation %d revoked by user %d", id, inviter.ID)
		return nil
	}

	current, err := s.invitations.GetInvitationByID(ctx, id)
	if err != nil {
		return err
	}
	if current != nil && current.IsRedeemed() {
		return ErrAlreadyConsumed
	}
	return nil
}

// AcceptInvitation redeems a role invitation token. caller is the session
// user, or nil for anonymous requests. The invitation is marked redeemed and
// the role granted in one transaction; at most one concurrent call succeeds.
func (s *InvitationService) AcceptInvitation(ctx context.Context, token string, caller *models.User) (*RoleRedemption, error) {
	if err := validation.ValidateToken(token); err != nil {
		return nil, ErrInvalidToken
	}

	inv, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}

	now := s.now()
	switch {
	case inv.IsExpired(now):
		return nil, ErrInvitationExpired
	case inv.IsRevoked():
		return nil, ErrInvitationRevoked
	case inv.IsRedeemed():
		return s.reenter(inv, caller)
	}

	resolved, err := s.resolver.Resolve(ctx, inv.Email)
	if err != nil {
		log.Printf("Failed to resolve identity for invitation %d: %v", inv.ID, err)
		return nil, err
	}

	// Issued before anything commits; a proof from a losing attempt is never returned
	proof, err := s.issueProof(ctx, resolved.Identity)
	if err != nil {
		log.Printf("Failed to issue sign-in credential for invitation %d: %v", inv.ID, err)
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	err = s.db.InTx(txCtx, func(tx *database.Tx) error {
		marked, err := s.invitations.WithTx(tx).MarkRedeemed(txCtx, inv.ID, resolved.User.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return errRedemptionConflict
		}

		_, err = s.roles.WithTx(tx).GrantRoleIfAbsent(txCtx, resolved.User.ID, inv.CompanyID, inv.Role, inv.InvitedBy, now)
		return err
	})
	if errors.Is(err, errRedemptionConflict) {
		return s.afterConflict(ctx, inv.ID, caller)
	}
	if err != nil {
		log.Printf("Failed to redeem invitation %d: %v", inv.ID, err)
		return nil, err
	}

	log.Printf("Invitation %d redeemed by user %d", inv.ID, resolved.User.ID)
	s.notifier.Notify(Notification{
		Kind:    NotifyInvitationAccepted,
		To:      inv.Email,
		Subject: "Welcome aboard",
		Text:    fmt.Sprintf("Your invitation was accepted. You now have the %s role.\n\nSign in: %s/\n", inv.Role, s.opts.AppBaseURL),
	})

	return &RoleRedemption{
		InvitationID: inv.ID,
		UserID:       resolved.User.ID,
		CompanyID:    inv.CompanyID,
		Role:         inv.Role,
		SessionProof: proof,
	}, nil
}

func (s *InvitationService) loadByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var inv *models.Invitation
	err := database.ReadWithRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		defer cancel()

		var err error
		inv, err = s.invitations.GetInvitationByToken(ctx, token)
		return err
	})
	if err != nil {
		log.Printf("Failed to load invitation by token: %v", err)
		return nil, err
	}
	return inv, nil
}

func (s *InvitationService) issueProof(ctx context.Context, ident *identity.Identity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.resolver.timeout)
	defer cancel()

	proof, err := s.provider.IssueOneTimeCredential(ctx, ident)
	if err != nil {
		return "", fmt.Errorf("%w: issue credential: %w", ErrUpstreamIdentity, err)
	}
	return proof, nil
}

// afterConflict re-reads an invitation whose conditional update lost a race
func (s *InvitationService) afterConflict(ctx context.Context, id int64, caller *models.User) (*RoleRedemption, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	current, err := s.invitations.GetInvitationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case current == nil:
		return nil, ErrInvitationNotFound
	case current.IsRevoked():
		return nil, ErrInvitationRevoked
	case current.IsRedeemed():
		return s.reenter(current, caller)
	}
	return nil, ErrAlreadyConsumed
}

// reenter treats a repeat redemption by the collaborator who already redeemed
// the invitation as success
func (s *InvitationService) reenter(inv *models.Invitation, caller *models.User) (*RoleRedemption, error) {
	if caller == nil {
		return nil, ErrAlreadyConsumed
	}
	sameUser := inv.RedeemedBy != nil && *inv.RedeemedBy == caller.ID
	if !sameUser && !strings.EqualFold(caller.Email, inv.Email) {
		return nil, ErrAlreadyConsumed
	}

	return &RoleRedemption{
		InvitationID: inv.ID,
		UserID:       caller.ID,
		CompanyID:    inv.CompanyID,
		Role:         inv.Role,
		Reentry:      true,
	}, nil
}

// authorizeManager requires user to hold a managing role in companyID
func authorizeManager(ctx context.Context, roles *repository.RoleRepository, user *models.User, companyID int64) error {
	if user == nil {
		return ErrForbidden
	}
	ok, err := roles.HasAnyRole(ctx, user.ID, companyID, models.ManagingRoles)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// allowInvite applies the creation throttle. A throttle backend failure is
// logged and does not block invitations.
func allowInvite(ctx context.Context, throttle security.Throttle, inviter *models.User) error {
	if throttle == nil {
		return nil
	}
	ok, err := throttle.Allow(ctx, fmt.Sprintf("invite:%d", inviter.ID))
	if err != nil {
		log.Printf("Invitation throttle unavailable: %v", err)
		return nil
	}
	if !ok {
		return ErrThrottled
	}
	return nil
}
