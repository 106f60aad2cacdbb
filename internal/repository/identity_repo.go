package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"staffhub/internal/database"
)

// AuthIdentity is an identity held by the built-in identity provider
type AuthIdentity struct {
	ID          string
	Email       string
	ConfirmedAt *time.Time
	CreatedAt   time.Time
}

// IdentityRepository backs the built-in identity provider
type IdentityRepository struct {
	db database.DBTX
}

func NewIdentityRepository(db database.DBTX) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Dialect exposes the dialect so callers can classify constraint errors
func (r *IdentityRepository) Dialect() database.Dialect {
	return r.db.GetDialect()
}

// GetIdentityByEmail retrieves an identity by email
func (r *IdentityRepository) GetIdentityByEmail(ctx context.Context, email string) (*AuthIdentity, error) {
	query := "SELECT id, email, confirmed_at, created_at FROM auth_identities WHERE email = ?"
	return scanIdentity(r.db.QueryRowContext(ctx, query, email))
}

// GetIdentityByID retrieves an identity by ID
func (r *IdentityRepository) GetIdentityByID(ctx context.Context, id string) (*AuthIdentity, error) {
	query := "SELECT id, email, confirmed_at, created_at FROM auth_identities WHERE id = ?"
	return scanIdentity(r.db.QueryRowContext(ctx, query, id))
}

func scanIdentity(row *sql.Row) (*AuthIdentity, error) {
	identity := &AuthIdentity{}
	var confirmedAt sql.NullTime
	err := row.Scan(&identity.ID, &identity.Email, &confirmedAt, &identity.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth identity: %w", err)
	}
	identity.ConfirmedAt = timePtr(confirmedAt)
	return identity, nil
}

// CreateIdentity inserts a confirmed identity
func (r *IdentityRepository) CreateIdentity(ctx context.Context, id, email string, at time.Time) (*AuthIdentity, error) {
	query := "INSERT INTO auth_identities (id, email, confirmed_at, created_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, id, email, at.UTC(), at.UTC()); err != nil {
		return nil, fmt.Errorf("failed to create auth identity: %w", err)
	}
	confirmed := at.UTC()
	return &AuthIdentity{ID: id, Email: email, ConfirmedAt: &confirmed, CreatedAt: at.UTC()}, nil
}

// ConsumeCredential records a sign-in credential as used. It reports false
// when the credential had already been consumed.
func (r *IdentityRepository) ConsumeCredential(ctx context.Context, jti, identityID string, at time.Time) (bool, error) {
	query := r.db.GetDialect().InsertOrIgnore(
		"INSERT INTO sign_in_credentials (jti, identity_id, used_at) VALUES (?, ?, ?)")
	result, err := r.db.ExecContext(ctx, query, jti, identityID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to consume sign-in credential: %w", err)
	}
	return affectedOne(result)
}
