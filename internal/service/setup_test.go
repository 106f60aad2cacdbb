package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/identity"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/migrations"
)

// recordingNotifier keeps notifications in memory
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, len(n.sent))
	for i, s := range n.sent {
		kinds[i] = s.Kind
	}
	return kinds
}

// failingProvider simulates an unreachable identity provider
type failingProvider struct{}

func (failingProvider) FindByEmail(context.Context, string) (*identity.Identity, error) {
	return nil, errors.New("connection refused")
}

func (failingProvider) CreateUser(context.Context, string) (*identity.Identity, error) {
	return nil, errors.New("connection refused")
}

func (failingProvider) IssueOneTimeCredential(context.Context, *identity.Identity) (string, error) {
	return "", errors.New("connection refused")
}

type testEnv struct {
	db          *database.DB
	users       *repository.UserRepository
	roles       *repository.RoleRepository
	invitations *repository.InvitationRepository
	jobInvites  *repository.JobInvitationRepository
	shifts      *repository.ShiftRepository
	provider    *identity.LocalProvider
	resolver    *IdentityResolver
	notifier    *recordingNotifier
	roleSvc     *InvitationService
	jobSvc      *JobInvitationService
	manager     *models.User
	worker      *models.User
}

func (e *testEnv) exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	if _, err := e.db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func (e *testEnv) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := e.db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

// setupEnv builds the services over a fresh SQLite database seeded with a
// company, a manager, a worker, one job and shifts 10 (capacity 1) and 11
// (capacity 3)
func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	env := &testEnv{
		db:          db,
		users:       repository.NewUserRepository(db),
		roles:       repository.NewRoleRepository(db),
		invitations: repository.NewInvitationRepository(db),
		jobInvites:  repository.NewJobInvitationRepository(db),
		shifts:      repository.NewShiftRepository(db),
		notifier:    &recordingNotifier{},
	}
	env.provider = identity.NewLocalProvider(repository.NewIdentityRepository(db), "test-secret", 15*time.Minute)
	env.resolver = NewIdentityResolver(env.provider, env.users, 5*time.Second)

	opts := InvitationOptions{TTL: time.Hour, StoreTimeout: 10 * time.Second, AppBaseURL: "http://staffhub.test"}
	env.roleSvc = NewInvitationService(db, env.invitations, env.roles, env.resolver, env.provider, env.notifier, nil, opts)
	env.jobSvc = NewJobInvitationService(db, env.jobInvites, env.shifts, env.users, env.roles, env.notifier, nil, opts)

	env.exec(t, "INSERT INTO companies (id, name) VALUES (1, 'Acme Events')")
	env.exec(t, "INSERT INTO jobs (id, company_id, title) VALUES (1, 1, 'Gala dinner')")
	env.exec(t, "INSERT INTO shifts (id, job_id, workers_needed) VALUES (10, 1, 1)")
	env.exec(t, "INSERT INTO shifts (id, job_id, workers_needed) VALUES (11, 1, 3)")

	env.manager, err = env.users.CreateUser(ctx, "manager@example.com", "identity-manager", "Manager")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if _, err := env.roles.GrantRoleIfAbsent(ctx, env.manager.ID, 1, models.RoleManager, nil, time.Now()); err != nil {
		t.Fatalf("Failed to grant manager role: %v", err)
	}
	env.worker, err = env.users.CreateUser(ctx, "worker@example.com", "identity-worker", "Worker")
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}

	return env
}

func (e *testEnv) newRoleInvitation(t *testing.T, email string) *models.Invitation {
	t.Helper()
	inv, err := e.invitations.CreateInvitation(context.Background(), email, 1, models.RoleWorker, e.manager.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to create invitation: %v", err)
	}
	return inv
}

func (e *testEnv) newJobInvitation(t *testing.T, userID int64, shiftIDs ...int64) *models.JobInvitation {
	t.Helper()
	inv, err := e.jobInvites.CreateJobInvitation(context.Background(), userID, 1, e.manager.ID, shiftIDs, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to create job invitation: %v", err)
	}
	return inv
}

func (e *testEnv) newWorker(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), email, "identity-"+email, "Worker")
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}
	return user
}
