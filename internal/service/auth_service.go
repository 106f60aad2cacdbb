package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"staffhub/internal/identity"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/internal/security"
	"staffhub/internal/validation"
)

// AuthService handles sessions and local credentials
type AuthService struct {
	userRepo        *repository.UserRepository
	verifier        identity.CredentialVerifier
	sessionDuration time.Duration
}

// NewAuthService creates a new auth service. verifier may be nil when sign-in
// credentials are handled by an external identity provider.
func NewAuthService(userRepo *repository.UserRepository, verifier identity.CredentialVerifier, sessionDuration time.Duration) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		verifier:        verifier,
		sessionDuration: sessionDuration,
	}
}

// Login authenticates a user who has set a password and creates a session
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.HasPassword {
		return nil, nil, ErrInvalidCredentials
	}

	if !security.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ExchangeSignInCredential consumes a one-time credential issued during
// onboarding and creates a session for its owner
func (s *AuthService) ExchangeSignInCredential(ctx context.Context, credential string) (*models.Session, *models.User, error) {
	if s.verifier == nil {
		return nil, nil, ErrSignInNotAvailable
	}

	ident, err := s.verifier.VerifyOneTimeCredential(ctx, credential)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetUserByIdentityOrEmail(ctx, ident.ID, ident.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// SetPassword sets the password of a user onboarded without one, or replaces it
func (s *AuthService) SetPassword(ctx context.Context, user *models.User, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.SetPasswordHash(ctx, user.ID, passwordHash); err != nil {
		return err
	}
	user.HasPassword = true
	return nil
}

func (s *AuthService) startSession(ctx context.Context, userID int64) (*models.Session, error) {
	sessionID := security.GenerateSessionID()
	expiresAt := time.Now().Add(s.sessionDuration)

	session, err := s.userRepo.CreateSession(ctx, sessionID, userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ValidateSession checks if a session is valid and returns the associated user
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.userRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		if err := s.userRepo.DeleteSession(ctx, sessionID); err != nil {
			log.Printf("Failed to delete expired session: %v", err)
		}
		return nil, ErrSessionExpired
	}

	user, err := s.userRepo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}

	return user, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.userRepo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}
