package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/models"
)

const userColumns = `id, email, COALESCE(auth_identity_id, ''), name, COALESCE(password_hash, ''), has_password, created_at, updated_at`

// UserRepository handles database operations for users and sessions
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *database.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// IsDuplicate reports whether err is a unique constraint violation
func (r *UserRepository) IsDuplicate(err error) bool {
	return r.db.GetDialect().IsUniqueViolation(err)
}

// CreateUser inserts a user without a password, linked to an auth identity.
// A duplicate email or identity surfaces as an error the caller can test
// with Dialect.IsUniqueViolation.
func (r *UserRepository) CreateUser(ctx context.Context, email, authIdentityID, name string) (*models.User, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (email, auth_identity_id, name, has_password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, email, authIdentityID, name, false, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:             id,
		Email:          email,
		AuthIdentityID: authIdentityID,
		Name:           name,
		HasPassword:    false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetUserByIdentityOrEmail retrieves the user linked to authIdentityID, falling
// back to a user registered with email
func (r *UserRepository) GetUserByIdentityOrEmail(ctx context.Context, authIdentityID, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE auth_identity_id = ? OR email = ?
		ORDER BY CASE WHEN auth_identity_id = ? THEN 0 ELSE 1 END
		LIMIT 1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, authIdentityID, email, authIdentityID))
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.AuthIdentityID,
		&user.Name,
		&user.PasswordHash,
		&user.HasPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// LinkAuthIdentity links an existing user to an auth identity when it has none yet
func (r *UserRepository) LinkAuthIdentity(ctx context.Context, userID int64, authIdentityID string) (bool, error) {
	query := `
		UPDATE users
		SET auth_identity_id = ?, updated_at = ?
		WHERE id = ?
		AND (auth_identity_id IS NULL OR auth_identity_id = '')
	`
	result, err := r.db.ExecContext(ctx, query, authIdentityID, time.Now().UTC(), userID)
	if err != nil {
		return false, fmt.Errorf("failed to link auth identity: %w", err)
	}
	return affectedOne(result)
}

// SetPasswordHash stores a password hash and marks the user as having a password
func (r *UserRepository) SetPasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = ?, has_password = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, passwordHash, true, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return nil
}

// CreateSession creates a new session for a user
func (r *UserRepository) CreateSession(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) (*models.Session, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, sessionID, userID, expiresAt.UTC(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	session := &models.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}

	return session, nil
}

// GetSession retrieves a session by ID
func (r *UserRepository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT id, user_id, expires_at, created_at
		FROM sessions
		WHERE id = ?
	`
	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteSession removes a session from the database
func (r *UserRepository) DeleteSession(ctx context.Context, sessionID string) error {
	query := "DELETE FROM sessions WHERE id = ?"
	_, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired sessions
func (r *UserRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	query := "DELETE FROM sessions WHERE expires_at < ?"
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
