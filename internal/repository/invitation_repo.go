package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/models"
	"staffhub/internal/security"
)

const invitationColumns = `id, token, email, company_id, role, status, invited_by,
	redeemed_at, redeemed_by, expires_at, deleted_at, created_at, updated_at`

// InvitationRepository stores role invitations
type InvitationRepository struct {
	db database.DBTX
}

func NewInvitationRepository(db database.DBTX) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *InvitationRepository) WithTx(tx *database.Tx) *InvitationRepository {
	return &InvitationRepository{db: tx}
}

// CreateInvitation creates a new pending invitation with a fresh random token
func (r *InvitationRepository) CreateInvitation(ctx context.Context, email string, companyID int64, role string, invitedBy int64, expiresAt time.Time) (*models.Invitation, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO invitations (token, email, company_id, role, status, invited_by, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	// A token collision is practically impossible, retry a couple of times anyway
	for attempt := 0; ; attempt++ {
		token, err := security.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate invitation token: %w", err)
		}

		id, err := r.db.ExecReturningID(ctx, query, token, email, companyID, role, models.StatusPending, invitedBy, expiresAt.UTC(), now, now)
		if err != nil {
			if r.db.GetDialect().IsUniqueViolation(err) && attempt < 2 {
				continue
			}
			return nil, fmt.Errorf("failed to create invitation: %w", err)
		}

		return &models.Invitation{
			ID:        id,
			Token:     token,
			Email:     email,
			CompanyID: companyID,
			Role:      role,
			Status:    models.StatusPending,
			InvitedBy: &invitedBy,
			ExpiresAt: expiresAt.UTC(),
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
}

// GetInvitationByToken retrieves an invitation by exact token match
func (r *InvitationRepository) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// GetInvitationByID retrieves an invitation by ID
func (r *InvitationRepository) GetInvitationByID(ctx context.Context, id int64) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *InvitationRepository) scanOne(row *sql.Row) (*models.Invitation, error) {
	var inv models.Invitation
	var invitedBy, redeemedBy sql.NullInt64
	var redeemedAt, deletedAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.Token, &inv.Email, &inv.CompanyID, &inv.Role, &inv.Status, &invitedBy,
		&redeemedAt, &redeemedBy, &inv.ExpiresAt, &deletedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	inv.InvitedBy = int64Ptr(invitedBy)
	inv.RedeemedBy = int64Ptr(redeemedBy)
	inv.RedeemedAt = timePtr(redeemedAt)
	inv.DeletedAt = timePtr(deletedAt)
	return &inv, nil
}

// MarkRedeemed moves a pending invitation to accepted. It reports false when
// the row was no longer redeemable, which means another redemption won.
func (r *InvitationRepository) MarkRedeemed(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET status = ?, redeemed_at = ?, redeemed_by = ?, updated_at = ?
		WHERE id = ? AND status = ? AND redeemed_at IS NULL AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, models.StatusAccepted, at.UTC(), userID, at.UTC(), id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark invitation redeemed: %w", err)
	}
	return affectedOne(result)
}

// RevokeInvitation soft-deletes an invitation that has not been redeemed
func (r *InvitationRepository) RevokeInvitation(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND redeemed_at IS NULL AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, at.UTC(), at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return affectedOne(result)
}

// PurgeTerminalInvitations deletes redeemed, revoked or expired invitations
// whose terminal moment is older than before
func (r *InvitationRepository) PurgeTerminalInvitations(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM invitations
		WHERE (redeemed_at IS NOT NULL AND redeemed_at < ?)
		   OR (deleted_at IS NOT NULL AND deleted_at < ?)
		   OR (redeemed_at IS NULL AND expires_at < ?)
	`
	b := before.UTC()
	result, err := r.db.ExecContext(ctx, query, b, b, b)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invitations: %w", err)
	}
	return result.RowsAffected()
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return rows == 1, nil
}
