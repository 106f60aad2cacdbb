package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/models"
)

// RoleRepository manages company role grants
type RoleRepository struct {
	db database.DBTX
}

func NewRoleRepository(db database.DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *RoleRepository) WithTx(tx *database.Tx) *RoleRepository {
	return &RoleRepository{db: tx}
}

// GrantRoleIfAbsent creates an active grant unless an identical one exists.
// It reports whether a new row was written; an existing grant is not an error.
func (r *RoleRepository) GrantRoleIfAbsent(ctx context.Context, userID, companyID int64, role string, grantedBy *int64, at time.Time) (bool, error) {
	query := r.db.GetDialect().InsertOrIgnore(
		"INSERT INTO role_grants (user_id, company_id, role, granted_by, created_at) VALUES (?, ?, ?, ?, ?)")
	result, err := r.db.ExecContext(ctx, query, userID, companyID, role, nullInt64(grantedBy), at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to grant role: %w", err)
	}
	return affectedOne(result)
}

// GetActiveGrant retrieves a non-revoked grant
func (r *RoleRepository) GetActiveGrant(ctx context.Context, userID, companyID int64, role string) (*models.RoleGrant, error) {
	query := `
		SELECT id, user_id, company_id, role, granted_by, created_at
		FROM role_grants
		WHERE user_id = ? AND company_id = ? AND role = ? AND revoked_at IS NULL
	`
	grant := &models.RoleGrant{}
	var grantedBy sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, userID, companyID, role).Scan(
		&grant.ID, &grant.UserID, &grant.CompanyID, &grant.Role, &grantedBy, &grant.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role grant: %w", err)
	}
	grant.GrantedBy = int64Ptr(grantedBy)
	return grant, nil
}

// HasAnyRole checks whether the user holds one of roles in the company
func (r *RoleRepository) HasAnyRole(ctx context.Context, userID, companyID int64, roles []string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	query := `
		SELECT COUNT(*)
		FROM role_grants
		WHERE user_id = ? AND company_id = ? AND revoked_at IS NULL
		  AND role IN (` + database.Placeholders(len(roles)) + `)
	`
	args := []interface{}{userID, companyID}
	for _, role := range roles {
		args = append(args, role)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check role grants: %w", err)
	}
	return count > 0, nil
}
