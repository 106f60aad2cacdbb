package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/models"
)

// ShiftRepository reads shifts and manages shift assignments
type ShiftRepository struct {
	db database.DBTX
}

func NewShiftRepository(db database.DBTX) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ShiftRepository) WithTx(tx *database.Tx) *ShiftRepository {
	return &ShiftRepository{db: tx}
}

// GetJobByID retrieves a job that has not been deleted
func (r *ShiftRepository) GetJobByID(ctx context.Context, id int64) (*models.Job, error) {
	query := "SELECT id, company_id, title, created_at FROM jobs WHERE id = ? AND deleted_at IS NULL"
	job := &models.Job{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&job.ID, &job.CompanyID, &job.Title, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetLiveShifts returns the non-deleted shifts among ids, keyed by ID
func (r *ShiftRepository) GetLiveShifts(ctx context.Context, ids []int64) (map[int64]models.Shift, error) {
	shifts := make(map[int64]models.Shift, len(ids))
	if len(ids) == 0 {
		return shifts, nil
	}

	query := `
		SELECT id, job_id, workers_needed, starts_at, ends_at, created_at
		FROM shifts
		WHERE deleted_at IS NULL AND id IN (` + database.Placeholders(len(ids)) + `)
	`
	rows, err := r.db.QueryContext(ctx, query, database.Int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Shift
		var startsAt, endsAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.JobID, &s.WorkersNeeded, &startsAt, &endsAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		s.StartsAt = timePtr(startsAt)
		s.EndsAt = timePtr(endsAt)
		shifts[s.ID] = s
	}
	return shifts, rows.Err()
}

// LockShiftCapacities returns workers_needed for the non-deleted shifts among
// ids. Rows are locked in ID order where the dialect supports row locks, so
// concurrent reservations over overlapping shifts queue instead of deadlocking.
func (r *ShiftRepository) LockShiftCapacities(ctx context.Context, ids []int64) (map[int64]int, error) {
	return r.capacities(ctx, ids, r.db.GetDialect().ForUpdate())
}

// ShiftCapacities returns workers_needed for the non-deleted shifts among ids without locking
func (r *ShiftRepository) ShiftCapacities(ctx context.Context, ids []int64) (map[int64]int, error) {
	return r.capacities(ctx, ids, "")
}

func (r *ShiftRepository) capacities(ctx context.Context, ids []int64, lockSuffix string) (map[int64]int, error) {
	capacities := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return capacities, nil
	}

	// Deleted rows are locked too; they simply report no capacity
	query := `
		SELECT id, workers_needed, deleted_at
		FROM shifts
		WHERE id IN (` + database.Placeholders(len(ids)) + `)
		ORDER BY id` + lockSuffix
	rows, err := r.db.QueryContext(ctx, query, database.Int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift capacity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var workersNeeded int
		var deletedAt sql.NullTime
		if err := rows.Scan(&id, &workersNeeded, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift capacity: %w", err)
		}
		if !deletedAt.Valid {
			capacities[id] = workersNeeded
		}
	}
	return capacities, rows.Err()
}

// CountActiveAssignments counts assignments that are neither cancelled nor deleted, per shift
func (r *ShiftRepository) CountActiveAssignments(ctx context.Context, ids []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	query := `
		SELECT shift_id, COUNT(*)
		FROM shift_assignments
		WHERE cancelled_at IS NULL AND deleted_at IS NULL
		  AND shift_id IN (` + database.Placeholders(len(ids)) + `)
		GROUP BY shift_id
	`
	rows, err := r.db.QueryContext(ctx, query, database.Int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to count shift assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID int64
		var count int
		if err := rows.Scan(&shiftID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts[shiftID] = count
	}
	return counts, rows.Err()
}

// ActiveShiftsForUser returns the shifts among ids the user is actively assigned to
func (r *ShiftRepository) ActiveShiftsForUser(ctx context.Context, userID int64, ids []int64) (map[int64]bool, error) {
	held := make(map[int64]bool)
	if len(ids) == 0 {
		return held, nil
	}

	query := `
		SELECT shift_id
		FROM shift_assignments
		WHERE user_id = ? AND cancelled_at IS NULL AND deleted_at IS NULL
		  AND shift_id IN (` + database.Placeholders(len(ids)) + `)
	`
	args := append([]interface{}{userID}, database.Int64Args(ids)...)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID int64
		if err := rows.Scan(&shiftID); err != nil {
			return nil, fmt.Errorf("failed to scan user assignment: %w", err)
		}
		held[shiftID] = true
	}
	return held, rows.Err()
}

// InsertAssignment adds an active assignment. It reports false when the user
// already held an active assignment on the shift.
func (r *ShiftRepository) InsertAssignment(ctx context.Context, shiftID, userID, assignedBy int64, at time.Time) (bool, error) {
	query := r.db.GetDialect().InsertOrIgnore(
		"INSERT INTO shift_assignments (shift_id, user_id, assigned_by, assigned_at) VALUES (?, ?, ?, ?)")
	result, err := r.db.ExecContext(ctx, query, shiftID, userID, assignedBy, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert shift assignment: %w", err)
	}
	return affectedOne(result)
}

// GetActiveAssignments lists the active assignments of a shift
func (r *ShiftRepository) GetActiveAssignments(ctx context.Context, shiftID int64) ([]models.ShiftAssignment, error) {
	query := `
		SELECT id, shift_id, user_id, assigned_by, assigned_at
		FROM shift_assignments
		WHERE shift_id = ? AND cancelled_at IS NULL AND deleted_at IS NULL
		ORDER BY assigned_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.ShiftAssignment
	for rows.Next() {
		var a models.ShiftAssignment
		var assignedBy sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ShiftID, &a.UserID, &assignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift assignment: %w", err)
		}
		a.AssignedBy = int64Ptr(assignedBy)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
