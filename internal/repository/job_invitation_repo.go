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

// JobInvitationRepository stores shift invitations and their ordered shift lists
type JobInvitationRepository struct {
	db database.DBTX
}

func NewJobInvitationRepository(db database.DBTX) *JobInvitationRepository {
	return &JobInvitationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *JobInvitationRepository) WithTx(tx *database.Tx) *JobInvitationRepository {
	return &JobInvitationRepository{db: tx}
}

// CreateJobInvitation inserts a pending invitation and its shift references.
// Callers run it inside a transaction so the shift list is never observed partially.
func (r *JobInvitationRepository) CreateJobInvitation(ctx context.Context, userID, jobID, invitedBy int64, shiftIDs []int64, expiresAt time.Time) (*models.JobInvitation, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO job_invitations (token, user_id, job_id, invited_by, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var id int64
	var token string
	for attempt := 0; ; attempt++ {
		var err error
		token, err = security.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate invitation token: %w", err)
		}

		id, err = r.db.ExecReturningID(ctx, query, token, userID, jobID, invitedBy, models.StatusPending, expiresAt.UTC(), now, now)
		if err == nil {
			break
		}
		if !r.db.GetDialect().IsUniqueViolation(err) || attempt >= 2 {
			return nil, fmt.Errorf("failed to create job invitation: %w", err)
		}
	}

	for i, shiftID := range shiftIDs {
		_, err := r.db.ExecContext(ctx,
			"INSERT INTO job_invitation_shifts (invitation_id, shift_id, sort_order) VALUES (?, ?, ?)",
			id, shiftID, i)
		if err != nil {
			return nil, fmt.Errorf("failed to add shift %d to job invitation: %w", shiftID, err)
		}
	}

	return &models.JobInvitation{
		ID:        id,
		Token:     token,
		UserID:    userID,
		JobID:     jobID,
		ShiftIDs:  append([]int64(nil), shiftIDs...),
		InvitedBy: invitedBy,
		Status:    models.StatusPending,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetJobInvitationByToken retrieves an invitation and its shifts by exact token match
func (r *JobInvitationRepository) GetJobInvitationByToken(ctx context.Context, token string) (*models.JobInvitation, error) {
	query := `
		SELECT id, token, user_id, job_id, invited_by, status, responded_at, expires_at, created_at, updated_at
		FROM job_invitations
		WHERE token = ?
	`
	return r.load(ctx, r.db.QueryRowContext(ctx, query, token))
}

// GetJobInvitationByID retrieves an invitation and its shifts by ID
func (r *JobInvitationRepository) GetJobInvitationByID(ctx context.Context, id int64) (*models.JobInvitation, error) {
	query := `
		SELECT id, token, user_id, job_id, invited_by, status, responded_at, expires_at, created_at, updated_at
		FROM job_invitations
		WHERE id = ?
	`
	return r.load(ctx, r.db.QueryRowContext(ctx, query, id))
}

func (r *JobInvitationRepository) load(ctx context.Context, row *sql.Row) (*models.JobInvitation, error) {
	var inv models.JobInvitation
	var respondedAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.Token, &inv.UserID, &inv.JobID, &inv.InvitedBy, &inv.Status,
		&respondedAt, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job invitation: %w", err)
	}
	inv.RespondedAt = timePtr(respondedAt)

	rows, err := r.db.QueryContext(ctx,
		"SELECT shift_id, was_full FROM job_invitation_shifts WHERE invitation_id = ? ORDER BY sort_order",
		inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job invitation shifts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID int64
		var wasFull bool
		if err := rows.Scan(&shiftID, &wasFull); err != nil {
			return nil, fmt.Errorf("failed to scan job invitation shift: %w", err)
		}
		inv.ShiftIDs = append(inv.ShiftIDs, shiftID)
		if wasFull {
			inv.FullShiftIDs = append(inv.FullShiftIDs, shiftID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job invitation shifts: %w", err)
	}

	return &inv, nil
}

// LockStatus reads the invitation status, taking a row lock where the dialect supports it
func (r *JobInvitationRepository) LockStatus(ctx context.Context, id int64) (string, error) {
	query := "SELECT status FROM job_invitations WHERE id = ?" + r.db.GetDialect().ForUpdate()
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("failed to lock job invitation: %w", err)
	}
	return status, nil
}

// TransitionStatus moves an invitation from one status to another. It reports
// false when the invitation was no longer in the from status.
func (r *JobInvitationRepository) TransitionStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	query := `
		UPDATE job_invitations
		SET status = ?, responded_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query, to, at.UTC(), at.UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update job invitation status: %w", err)
	}
	return affectedOne(result)
}

// MarkShiftsFull records which referenced shifts had no capacity left
func (r *JobInvitationRepository) MarkShiftsFull(ctx context.Context, id int64, shiftIDs []int64) error {
	if len(shiftIDs) == 0 {
		return nil
	}
	query := "UPDATE job_invitation_shifts SET was_full = ? WHERE invitation_id = ? AND shift_id IN (" +
		database.Placeholders(len(shiftIDs)) + ")"
	args := append([]interface{}{true, id}, database.Int64Args(shiftIDs)...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark full shifts: %w", err)
	}
	return nil
}

// ExpireStaleInvitations moves pending invitations past their expiry to expired
func (r *JobInvitationRepository) ExpireStaleInvitations(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE job_invitations
		SET status = ?, responded_at = ?, updated_at = ?
		WHERE status = ? AND expires_at <= ?
	`
	n := now.UTC()
	result, err := r.db.ExecContext(ctx, query, models.StatusExpired, n, n, models.StatusPending, n)
	if err != nil {
		return 0, fmt.Errorf("failed to expire job invitations: %w", err)
	}
	return result.RowsAffected()
}

// PurgeTerminalInvitations deletes non-pending invitations last touched before the cutoff
func (r *JobInvitationRepository) PurgeTerminalInvitations(ctx context.Context, before time.Time) (int64, error) {
	b := before.UTC()
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM job_invitation_shifts
		WHERE invitation_id IN (SELECT id FROM job_invitations WHERE status <> ? AND updated_at < ?)
	`, models.StatusPending, b)
	if err != nil {
		return 0, fmt.Errorf("failed to purge job invitation shifts: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM job_invitations WHERE status <> ? AND updated_at < ?",
		models.StatusPending, b)
	if err != nil {
		return 0, fmt.Errorf("failed to purge job invitations: %w", err)
	}
	return result.RowsAffected()
}
