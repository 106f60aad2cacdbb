package service

import (
	"context"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/repository"
)

// CapacityChecker reports the remaining slots of shifts from live storage
type CapacityChecker struct {
	shifts  *repository.ShiftRepository
	timeout time.Duration
}

func NewCapacityChecker(shifts *repository.ShiftRepository, timeout time.Duration) *CapacityChecker {
	return &CapacityChecker{shifts: shifts, timeout: timeout}
}

// CheckCapacity returns remaining slots per shift. Missing or deleted shifts
// report zero. The result is advisory; redemption re-checks under lock.
func (c *CapacityChecker) CheckCapacity(ctx context.Context, shiftIDs []int64) (map[int64]int, error) {
	var remaining map[int64]int
	err := database.ReadWithRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		remaining, err = remainingSlots(ctx, c.shifts, shiftIDs, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

// remainingSlots computes capacity minus active assignments. With lock set the
// shift rows are locked first, so the result stays valid until the
// surrounding transaction ends.
func remainingSlots(ctx context.Context, shifts *repository.ShiftRepository, shiftIDs []int64, lock bool) (map[int64]int, error) {
	var capacities map[int64]int
	var err error
	if lock {
		capacities, err = shifts.LockShiftCapacities(ctx, shiftIDs)
	} else {
		capacities, err = shifts.ShiftCapacities(ctx, shiftIDs)
	}
	if err != nil {
		return nil, err
	}

	counts, err := shifts.CountActiveAssignments(ctx, shiftIDs)
	if err != nil {
		return nil, err
	}

	remaining := make(map[int64]int, len(shiftIDs))
	for _, id := range shiftIDs {
		capacity, ok := capacities[id]
		if !ok {
			remaining[id] = 0
			continue
		}
		remaining[id] = max(capacity-counts[id], 0)
	}
	return remaining, nil
}
