package service

import (
	"context"
	"log"
	"time"

	"staffhub/internal/repository"
)

// MaintenanceService expires and purges invitations and sessions in the background
type MaintenanceService struct {
	invitations    *repository.InvitationRepository
	jobInvitations *repository.JobInvitationRepository
	users          *repository.UserRepository
	retention      time.Duration
	now            func() time.Time
}

func NewMaintenanceService(
	invitations *repository.InvitationRepository,
	jobInvitations *repository.JobInvitationRepository,
	users *repository.UserRepository,
	retention time.Duration,
) *MaintenanceService {
	return &MaintenanceService{
		invitations:    invitations,
		jobInvitations: jobInvitations,
		users:          users,
		retention:      retention,
		now:            time.Now,
	}
}

// MaintenanceReport counts the rows touched by one pass
type MaintenanceReport struct {
	ExpiredJobInvitations int64
	PurgedInvitations     int64
	PurgedJobInvitations  int64
	DeletedSessions       int64
}

// RunOnce performs one maintenance pass. Each step runs even if an earlier one failed.
func (m *MaintenanceService) RunOnce(ctx context.Context) MaintenanceReport {
	var report MaintenanceReport
	now := m.now()
	cutoff := now.Add(-m.retention)
	var err error

	if report.ExpiredJobInvitations, err = m.jobInvitations.ExpireStaleInvitations(ctx, now); err != nil {
		log.Printf("Error expiring job invitations: %v", err)
	}
	if report.PurgedInvitations, err = m.invitations.PurgeTerminalInvitations(ctx, cutoff); err != nil {
		log.Printf("Error purging invitations: %v", err)
	}
	if report.PurgedJobInvitations, err = m.jobInvitations.PurgeTerminalInvitations(ctx, cutoff); err != nil {
		log.Printf("Error purging job invitations: %v", err)
	}
	if report.DeletedSessions, err = m.users.DeleteExpiredSessions(ctx); err != nil {
		log.Printf("Error cleaning up expired sessions: %v", err)
	}

	return report
}

// Run performs a pass every interval until ctx is cancelled
func (m *MaintenanceService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := m.RunOnce(ctx)
			log.Printf("Maintenance: expired=%d purged=%d/%d sessions=%d",
				report.ExpiredJobInvitations, report.PurgedInvitations,
				report.PurgedJobInvitations, report.DeletedSessions)
		}
	}
}
