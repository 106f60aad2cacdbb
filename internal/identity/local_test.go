package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/repository"
	"staffhub/migrations"
)

func setupLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return NewLocalProvider(repository.NewIdentityRepository(db), "test-secret", 15*time.Minute)
}

func TestLocalProviderCreateAndFind(t *testing.T) {
	p := setupLocalProvider(t)
	ctx := context.Background()

	found, err := p.FindByEmail(ctx, "new@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if found != nil {
		t.Fatalf("expected no identity, got %+v", found)
	}

	created, err := p.CreateUser(ctx, "new@example.com")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.ID == "" || !created.Confirmed {
		t.Errorf("expected confirmed identity with ID, got %+v", created)
	}

	if _, err := p.CreateUser(ctx, "new@example.com"); !errors.Is(err, ErrIdentityExists) {
		t.Errorf("second CreateUser() error = %v, want ErrIdentityExists", err)
	}

	found, err = p.FindByEmail(ctx, "new@example.com")
	if err != nil || found == nil || found.ID != created.ID {
		t.Errorf("FindByEmail() = %+v, %v, want identity %s", found, err, created.ID)
	}
}

func TestLocalProviderCredentialIsSingleUse(t *testing.T) {
	p := setupLocalProvider(t)
	ctx := context.Background()

	ident, err := p.CreateUser(ctx, "worker@example.com")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	credential, err := p.IssueOneTimeCredential(ctx, ident)
	if err != nil {
		t.Fatalf("IssueOneTimeCredential() error = %v", err)
	}

	verified, err := p.VerifyOneTimeCredential(ctx, credential)
	if err != nil {
		t.Fatalf("VerifyOneTimeCredential() error = %v", err)
	}
	if verified.ID != ident.ID {
		t.Errorf("verified identity = %s, want %s", verified.ID, ident.ID)
	}

	if _, err := p.VerifyOneTimeCredential(ctx, credential); !errors.Is(err, ErrCredentialUsed) {
		t.Errorf("second VerifyOneTimeCredential() error = %v, want ErrCredentialUsed", err)
	}
}

func TestLocalProviderRejectsBadCredentials(t *testing.T) {
	p := setupLocalProvider(t)
	ctx := context.Background()

	ident, err := p.CreateUser(ctx, "worker@example.com")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	expired := NewLocalProvider(p.repo, "test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := expired.IssueOneTimeCredential(ctx, ident)
	if err != nil {
		t.Fatalf("IssueOneTimeCredential() error = %v", err)
	}

	foreign := NewLocalProvider(p.repo, "another-secret", time.Minute)
	forged, err := foreign.IssueOneTimeCredential(ctx, ident)
	if err != nil {
		t.Fatalf("IssueOneTimeCredential() error = %v", err)
	}

	tests := []struct {
		name       string
		credential string
	}{
		{name: "garbage", credential: "not-a-jwt"},
		{name: "expired", credential: stale},
		{name: "wrong secret", credential: forged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.VerifyOneTimeCredential(ctx, tt.credential)
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("VerifyOneTimeCredential() error = %v, want ErrInvalidCredential", err)
			}
			if !IsCredentialError(err) {
				t.Error("IsCredentialError() = false")
			}
		})
	}
}
