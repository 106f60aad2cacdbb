package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"staffhub/internal/database"
)

// LedgerExport is a point in time snapshot of invitations, grants and shift
// assignments. Tokens are never exported.
type LedgerExport struct {
	Version        string                `json:"version"`
	ExportedAt     time.Time             `json:"exported_at"`
	DatabaseType   string                `json:"database_type"`
	Grants         []GrantRecord         `json:"grants"`
	Invitations    []InvitationRecord    `json:"invitations"`
	JobInvitations []JobInvitationRecord `json:"job_invitations"`
	Assignments    []AssignmentRecord    `json:"assignments"`
}

type GrantRecord struct {
	UserID    int64      `json:"user_id"`
	CompanyID int64      `json:"company_id"`
	Role      string     `json:"role"`
	GrantedBy *int64     `json:"granted_by"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

type InvitationRecord struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	CompanyID  int64      `json:"company_id"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	InvitedBy  *int64     `json:"invited_by"`
	RedeemedBy *int64     `json:"redeemed_by"`
	RedeemedAt *time.Time `json:"redeemed_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
}

type JobInvitationRecord struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	JobID        int64      `json:"job_id"`
	InvitedBy    int64      `json:"invited_by"`
	Status       string     `json:"status"`
	ShiftIDs     []int64    `json:"shift_ids"`
	FullShiftIDs []int64    `json:"full_shift_ids,omitempty"`
	RespondedAt  *time.Time `json:"responded_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

type AssignmentRecord struct {
	ShiftID     int64      `json:"shift_id"`
	UserID      int64      `json:"user_id"`
	AssignedBy  *int64     `json:"assigned_by"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

// ExportService writes ledger snapshots for audits
type ExportService struct {
	db *database.DB
}

func NewExportService(db *database.DB) *ExportService {
	return &ExportService{db: db}
}

// Export writes the snapshot to w as indented JSON
func (s *ExportService) Export(ctx context.Context, w io.Writer) (*LedgerExport, error) {
	export := &LedgerExport{
		Version:      "1.0",
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.DriverName(),
	}

	if err := s.exportGrants(ctx, export); err != nil {
		return nil, fmt.Errorf("failed to export grants: %w", err)
	}
	if err := s.exportInvitations(ctx, export); err != nil {
		return nil, fmt.Errorf("failed to export invitations: %w", err)
	}
	if err := s.exportJobInvitations(ctx, export); err != nil {
		return nil, fmt.Errorf("failed to export job invitations: %w", err)
	}
	if err := s.exportAssignments(ctx, export); err != nil {
		return nil, fmt.Errorf("failed to export assignments: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	log.Printf("Exported: %d grants, %d invitations, %d job invitations, %d assignments",
		len(export.Grants), len(export.Invitations), len(export.JobInvitations), len(export.Assignments))
	return export, nil
}

func (s *ExportService) exportGrants(ctx context.Context, export *LedgerExport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, company_id, role, granted_by, created_at, revoked_at
		FROM role_grants ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var g GrantRecord
		var grantedBy sql.NullInt64
		var revokedAt sql.NullTime
		if err := rows.Scan(&g.UserID, &g.CompanyID, &g.Role, &grantedBy, &g.CreatedAt, &revokedAt); err != nil {
			return err
		}
		g.GrantedBy = int64Ptr(grantedBy)
		g.RevokedAt = nullTimePtr(revokedAt)
		export.Grants = append(export.Grants, g)
	}
	return rows.Err()
}

func (s *ExportService) exportInvitations(ctx context.Context, export *LedgerExport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, company_id, role, status, invited_by, redeemed_by, redeemed_at, expires_at, deleted_at
		FROM invitations ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var inv InvitationRecord
		var invitedBy, redeemedBy sql.NullInt64
		var redeemedAt, deletedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.CompanyID, &inv.Role, &inv.Status,
			&invitedBy, &redeemedBy, &redeemedAt, &inv.ExpiresAt, &deletedAt); err != nil {
			return err
		}
		inv.InvitedBy = int64Ptr(invitedBy)
		inv.RedeemedBy = int64Ptr(redeemedBy)
		inv.RedeemedAt = nullTimePtr(redeemedAt)
		inv.DeletedAt = nullTimePtr(deletedAt)
		export.Invitations = append(export.Invitations, inv)
	}
	return rows.Err()
}

func (s *ExportService) exportJobInvitations(ctx context.Context, export *LedgerExport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, job_id, invited_by, status, responded_at, expires_at
		FROM job_invitations ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var inv JobInvitationRecord
		var respondedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.JobID, &inv.InvitedBy, &inv.Status, &respondedAt, &inv.ExpiresAt); err != nil {
			return err
		}
		inv.RespondedAt = nullTimePtr(respondedAt)
		inv.ShiftIDs = []int64{}
		index[inv.ID] = len(export.JobInvitations)
		export.JobInvitations = append(export.JobInvitations, inv)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	shiftRows, err := s.db.QueryContext(ctx, `
		SELECT invitation_id, shift_id, was_full
		FROM job_invitation_shifts ORDER BY invitation_id, sort_order
	`)
	if err != nil {
		return err
	}
	defer shiftRows.Close()

	for shiftRows.Next() {
		var invitationID, shiftID int64
		var wasFull bool
		if err := shiftRows.Scan(&invitationID, &shiftID, &wasFull); err != nil {
			return err
		}
		i, ok := index[invitationID]
		if !ok {
			continue
		}
		inv := &export.JobInvitations[i]
		inv.ShiftIDs = append(inv.ShiftIDs, shiftID)
		if wasFull {
			inv.FullShiftIDs = append(inv.FullShiftIDs, shiftID)
		}
	}
	return shiftRows.Err()
}

func (s *ExportService) exportAssignments(ctx context.Context, export *LedgerExport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shift_id, user_id, assigned_by, assigned_at, cancelled_at
		FROM shift_assignments WHERE deleted_at IS NULL ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a AssignmentRecord
		var assignedBy sql.NullInt64
		var cancelledAt sql.NullTime
		if err := rows.Scan(&a.ShiftID, &a.UserID, &assignedBy, &a.AssignedAt, &cancelledAt); err != nil {
			return err
		}
		a.AssignedBy = int64Ptr(assignedBy)
		a.CancelledAt = nullTimePtr(cancelledAt)
		export.Assignments = append(export.Assignments, a)
	}
	return rows.Err()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
