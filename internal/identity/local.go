package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"staffhub/internal/repository"
)

const (
	signInIssuer  = "staffhub"
	signInPurpose = "sign-in"
)

type signInClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// LocalProvider keeps identities in the application database and issues
// HS256 signed sign-in credentials
type LocalProvider struct {
	repo   *repository.IdentityRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewLocalProvider(repo *repository.IdentityRepository, secret string, ttl time.Duration) *LocalProvider {
	return &LocalProvider{
		repo:   repo,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (p *LocalProvider) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	stored, err := p.repo.GetIdentityByEmail(ctx, email)
	if err != nil || stored == nil {
		return nil, err
	}
	return toIdentity(stored), nil
}

func (p *LocalProvider) CreateUser(ctx context.Context, email string) (*Identity, error) {
	stored, err := p.repo.CreateIdentity(ctx, uuid.New().String(), email, p.now())
	if err != nil {
		if p.repo.Dialect().IsUniqueViolation(err) {
			return nil, ErrIdentityExists
		}
		return nil, err
	}
	return toIdentity(stored), nil
}

func (p *LocalProvider) IssueOneTimeCredential(_ context.Context, identity *Identity) (string, error) {
	now := p.now()
	claims := signInClaims{
		Email:   identity.Email,
		Purpose: signInPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity.ID,
			Issuer:    signInIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}

// VerifyOneTimeCredential checks the credential signature and expiry and
// records its ID so it can never be exchanged again
func (p *LocalProvider) VerifyOneTimeCredential(ctx context.Context, credential string) (*Identity, error) {
	claims := &signInClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signInIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Purpose != signInPurpose || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidCredential
	}

	stored, err := p.repo.GetIdentityByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrInvalidCredential
	}

	consumed, err := p.repo.ConsumeCredential(ctx, claims.ID, claims.Subject, p.now())
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrCredentialUsed
	}
	return toIdentity(stored), nil
}

func toIdentity(stored *repository.AuthIdentity) *Identity {
	return &Identity{
		ID:        stored.ID,
		Email:     stored.Email,
		Confirmed: stored.ConfirmedAt != nil,
	}
}

// IsCredentialError reports whether err means the credential itself was rejected
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrCredentialUsed)
}
