package service

import (
	"context"
	"testing"
	"time"
)

func TestMaintenanceRunOnce(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	old := time.Now().Add(-200 * 24 * time.Hour).UTC()

	stale := env.newJobInvitation(t, env.worker.ID, 11)
	env.exec(t, "UPDATE job_invitations SET expires_at = ? WHERE id = ?", time.Now().Add(-time.Minute).UTC(), stale.ID)

	purgeable := env.newJobInvitation(t, env.worker.ID, 11)
	env.exec(t, "UPDATE job_invitations SET status = 'revoked', updated_at = ? WHERE id = ?", old, purgeable.ID)

	env.newJobInvitation(t, env.worker.ID, 10)

	revoked := env.newRoleInvitation(t, "gone@example.com")
	env.exec(t, "UPDATE invitations SET deleted_at = ?, updated_at = ? WHERE id = ?", old, old, revoked.ID)
	env.newRoleInvitation(t, "pending@example.com")

	if _, err := env.users.CreateSession(ctx, "expired-session", env.worker.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err := env.users.CreateSession(ctx, "live-session", env.worker.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	m := NewMaintenanceService(env.invitations, env.jobInvites, env.users, 90*24*time.Hour)
	report := m.RunOnce(ctx)

	want := MaintenanceReport{
		ExpiredJobInvitations: 1,
		PurgedInvitations:     1,
		PurgedJobInvitations:  1,
		DeletedSessions:       1,
	}
	if report != want {
		t.Errorf("RunOnce() = %+v, want %+v", report, want)
	}

	stored, _ := env.jobInvites.GetJobInvitationByID(ctx, stale.ID)
	if stored == nil || stored.Status != "expired" {
		t.Errorf("stale invitation = %+v, want expired", stored)
	}
	if n := env.count(t, "SELECT COUNT(*) FROM job_invitations"); n != 2 {
		t.Errorf("job invitations left = %d, want 2", n)
	}
	if n := env.count(t, "SELECT COUNT(*) FROM invitations"); n != 1 {
		t.Errorf("invitations left = %d, want 1", n)
	}

	if again := m.RunOnce(ctx); again != (MaintenanceReport{}) {
		t.Errorf("second RunOnce() = %+v, want nothing to do", again)
	}
}
