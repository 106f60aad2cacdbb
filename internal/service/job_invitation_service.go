package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/internal/security"
	"staffhub/internal/validation"
)

// ShiftRedemption is the outcome of accepting a shift invitation
type ShiftRedemption struct {
	InvitationID int64
	UserID       int64

	// ShiftsAssigned counts the shifts the worker now holds through this
	// invitation, including ones already held beforehand
	ShiftsAssigned int
	NewAssignments int
}

// JobInvitationService drives the shift invitation lifecycle
type JobInvitationService struct {
	db          *database.DB
	invitations *repository.JobInvitationRepository
	shifts      *repository.ShiftRepository
	users       *repository.UserRepository
	roles       *repository.RoleRepository
	notifier    Notifier
	throttle    security.Throttle
	opts        InvitationOptions
	now         func() time.Time
}

func NewJobInvitationService(
	db *database.DB,
	invitations *repository.JobInvitationRepository,
	shifts *repository.ShiftRepository,
	users *repository.UserRepository,
	roles *repository.RoleRepository,
	notifier Notifier,
	throttle security.Throttle,
	opts InvitationOptions,
) *JobInvitationService {
	return &JobInvitationService{
		db:          db,
		invitations: invitations,
		shifts:      shifts,
		users:       users,
		roles:       roles,
		notifier:    notifier,
		throttle:    throttle,
		opts:        opts,
		now:         time.Now,
	}
}

// CreateJobInvitation offers shiftIDs of jobID to the worker userID.
// Duplicate shift IDs are dropped, keeping first occurrence order.
func (s *JobInvitationService) CreateJobInvitation(ctx context.Context, inviter *models.User, userID, jobID int64, shiftIDs []int64) (*models.JobInvitation, error) {
	shiftIDs = dedupeIDs(shiftIDs)
	if len(shiftIDs) == 0 {
		return nil, ErrNoShifts
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	job, err := s.shifts.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if err := authorizeManager(ctx, s.roles, inviter, job.CompanyID); err != nil {
		return nil, err
	}

	live, err := s.shifts.GetLiveShifts(ctx, shiftIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range shiftIDs {
		shift, ok := live[id]
		if !ok || shift.JobID != jobID {
			return nil, ErrInvalidShifts
		}
	}

	worker, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if worker == nil {
		return nil, ErrUserNotFound
	}

	if err := allowInvite(ctx, s.throttle, inviter); err != nil {
		return nil, err
	}

	var inv *models.JobInvitation
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		inv, err = s.invitations.WithTx(tx).CreateJobInvitation(ctx, userID, jobID, inviter.ID, shiftIDs, s.now().Add(s.opts.TTL))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(Notification{
		Kind:    NotifyJobInvitationCreated,
		To:      worker.Email,
		Subject: "New shifts offered: " + job.Title,
		Text: fmt.Sprintf("You have been offered %d shift(s) for %s.\n\nAccept: %s/job-invitations/accept?token=%s\n\nThis offer expires on %s.\n",
			len(shiftIDs), job.Title, s.opts.AppBaseURL, inv.Token, inv.ExpiresAt.Format(time.RFC1123)),
	})

	return inv, nil
}

// RevokeJobInvitation moves a pending invitation to revoked. Revoking twice
// is not an error.
func (s *JobInvitationService) RevokeJobInvitation(ctx context.Context, inviter *models.User, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	inv, err := s.invitations.GetJobInvitationByID(ctx, id)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrInvitationNotFound
	}

	job, err := s.shifts.GetJobByID(ctx, inv.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if err := authorizeManager(ctx, s.roles, inviter, job.CompanyID); err != nil {
		return err
	}

	revoked, err := s.invitations.TransitionStatus(ctx, id, models.StatusPending, models.StatusRevoked, s.now())
	if err != nil {
		return err
	}
	if revoked {
		log.Printf("Job invitation %d revoked by user %d", id, inviter.ID)
		return nil
	}

	current, err := s.invitations.GetJobInvitationByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil || current.Status == models.StatusRevoked {
		return nil
	}
	return statusError(current.Status)
}

// AcceptJobInvitation redeems a shift invitation token. Either every
// referenced shift is assigned to the worker and the invitation becomes
// accepted, or none is and it becomes spots_filled with a *CapacityError
// naming the full shifts.
func (s *JobInvitationService) AcceptJobInvitation(ctx context.Context, token string) (*ShiftRedemption, error) {
	if err := validation.ValidateToken(token); err != nil {
		return nil, ErrInvalidToken
	}

	inv, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}

	now := s.now()
	if inv.IsExpired(now) {
		if inv.IsPending() {
			s.markExpired(ctx, inv.ID, now)
		}
		return nil, ErrInvitationExpired
	}
	if !inv.IsPending() {
		return nil, statusError(inv.Status)
	}
	if len(inv.ShiftIDs) == 0 {
		return nil, ErrNoShifts
	}

	txCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	result := &ShiftRedemption{InvitationID: inv.ID, UserID: inv.UserID}
	var full []int64

	err = s.db.InTx(txCtx, func(tx *database.Tx) error {
		invitations := s.invitations.WithTx(tx)
		shifts := s.shifts.WithTx(tx)

		status, err := invitations.LockStatus(txCtx, inv.ID)
		if err != nil {
			return err
		}
		if status != models.StatusPending {
			return statusError(status)
		}

		remaining, err := remainingSlots(txCtx, shifts, inv.ShiftIDs, true)
		if err != nil {
			return err
		}
		live, err := shifts.GetLiveShifts(txCtx, inv.ShiftIDs)
		if err != nil {
			return err
		}
		held, err := shifts.ActiveShiftsForUser(txCtx, inv.UserID, inv.ShiftIDs)
		if err != nil {
			return err
		}

		// A deleted shift is unavailable even to a worker already assigned to it
		for _, id := range inv.ShiftIDs {
			if _, ok := live[id]; !ok || (!held[id] && remaining[id] <= 0) {
				full = append(full, id)
			}
		}

		if len(full) > 0 {
			moved, err := invitations.TransitionStatus(txCtx, inv.ID, models.StatusPending, models.StatusSpotsFilled, now)
			if err != nil {
				return err
			}
			if !moved {
				return errRedemptionConflict
			}
			return invitations.MarkShiftsFull(txCtx, inv.ID, full)
		}

		for _, id := range inv.ShiftIDs {
			if held[id] {
				continue
			}
			inserted, err := shifts.InsertAssignment(txCtx, id, inv.UserID, inv.InvitedBy, now)
			if err != nil {
				return err
			}
			if inserted {
				result.NewAssignments++
			}
		}

		moved, err := invitations.TransitionStatus(txCtx, inv.ID, models.StatusPending, models.StatusAccepted, now)
		if err != nil {
			return err
		}
		if !moved {
			return errRedemptionConflict
		}
		return nil
	})
	if errors.Is(err, errRedemptionConflict) {
		return nil, ErrAlreadyConsumed
	}
	if err != nil {
		if !isLifecycleError(err) {
			log.Printf("Failed to redeem job invitation %d: %v", inv.ID, err)
		}
		return nil, err
	}

	if len(full) > 0 {
		log.Printf("Job invitation %d ended spots_filled, full shifts %v", inv.ID, full)
		s.notifyWorker(ctx, inv, NotifyShiftsUnavailable, "Shifts no longer available",
			"Some of the shifts you were offered filled up before you accepted. No shifts were assigned.\n")
		return nil, &CapacityError{ShiftIDs: full}
	}

	result.ShiftsAssigned = len(inv.ShiftIDs)
	log.Printf("Job invitation %d accepted, %d shift(s) assigned to user %d", inv.ID, result.ShiftsAssigned, inv.UserID)
	s.notifyWorker(ctx, inv, NotifyShiftsAssigned, "Shifts confirmed",
		fmt.Sprintf("You are confirmed for %d shift(s).\n", result.ShiftsAssigned))

	return result, nil
}

// ShiftRoster lists the active assignments of a shift to a manager of the
// shift's company
func (s *JobInvitationService) ShiftRoster(ctx context.Context, viewer *models.User, shiftID int64) ([]models.ShiftAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	live, err := s.shifts.GetLiveShifts(ctx, []int64{shiftID})
	if err != nil {
		return nil, err
	}
	shift, ok := live[shiftID]
	if !ok {
		return nil, ErrShiftNotFound
	}
	job, err := s.shifts.GetJobByID(ctx, shift.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrShiftNotFound
	}
	if err := authorizeManager(ctx, s.roles, viewer, job.CompanyID); err != nil {
		return nil, err
	}

	return s.shifts.GetActiveAssignments(ctx, shiftID)
}

func (s *JobInvitationService) loadByToken(ctx context.Context, token string) (*models.JobInvitation, error) {
	var inv *models.JobInvitation
	err := database.ReadWithRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		defer cancel()

		var err error
		inv, err = s.invitations.GetJobInvitationByToken(ctx, token)
		return err
	})
	if err != nil {
		log.Printf("Failed to load job invitation by token: %v", err)
		return nil, err
	}
	return inv, nil
}

// markExpired records that a pending invitation was found past its expiry
func (s *JobInvitationService) markExpired(ctx context.Context, id int64, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if _, err := s.invitations.TransitionStatus(ctx, id, models.StatusPending, models.StatusExpired, now); err != nil {
		log.Printf("Failed to mark job invitation %d expired: %v", id, err)
	}
}

func (s *JobInvitationService) notifyWorker(ctx context.Context, inv *models.JobInvitation, kind, subject, text string) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	worker, err := s.users.GetUserByID(ctx, inv.UserID)
	if err != nil || worker == nil {
		log.Printf("Skipping %s notification for job invitation %d: worker unavailable (%v)", kind, inv.ID, err)
		return
	}
	s.notifier.Notify(Notification{Kind: kind, To: worker.Email, Subject: subject, Text: text})
}

// statusError maps a non-pending job invitation status to its error
func statusError(status string) error {
	switch status {
	case models.StatusRevoked:
		return ErrInvitationRevoked
	case models.StatusExpired:
		return ErrInvitationExpired
	default:
		return &ConsumedError{Status: status}
	}
}

func isLifecycleError(err error) bool {
	return errors.Is(err, ErrAlreadyConsumed) ||
		errors.Is(err, ErrInvitationRevoked) ||
		errors.Is(err, ErrInvitationExpired)
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
