package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staffhub/internal/config"
	"staffhub/internal/database"
	"staffhub/internal/handlers"
	"staffhub/internal/identity"
	"staffhub/internal/repository"
	"staffhub/internal/security"
	"staffhub/internal/service"
	"staffhub/migrations"
)

const (
	stepDatabase   = "Database connection"
	stepMigrations = "Running migrations"
	stepServices   = "Initializing services"
	stepReady      = "Server ready"
)

func main() {
	// Load configuration
	cfg := config.Load()
	startup := handlers.NewStartupStatus(stepDatabase, stepMigrations, stepServices, stepReady)

	// Initialize database with config (supports sqlite, postgres, mysql)
	startup.SetCurrentStep(stepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)
	startup.CompleteStep(stepDatabase)

	// Run migrations
	startup.SetCurrentStep(stepMigrations)
	if err := db.RunMigrations(context.Background(), migrationsFS(cfg.MigrationsPath)); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations completed successfully")
	startup.CompleteStep(stepMigrations)
	startup.SetCurrentStep(stepServices)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	jobInvitationRepo := repository.NewJobInvitationRepository(db)
	shiftRepo := repository.NewShiftRepository(db)

	provider, verifier, err := identity.NewFromConfig(context.Background(), cfg, repository.NewIdentityRepository(db))
	if err != nil {
		log.Fatalf("Failed to initialize identity provider: %v", err)
	}

	inviteThrottle, requestLimiter, closeThrottles, err := newThrottles(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize throttle: %v", err)
	}
	defer closeThrottles()

	transport, err := newTransport(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize notification transport: %v", err)
	}
	dispatcher := service.NewDispatcher(transport, 256, 30*time.Second)

	// Initialize services
	resolver := service.NewIdentityResolver(provider, userRepo, cfg.IdentityTimeout)
	roleOpts := service.InvitationOptions{TTL: cfg.InvitationTTL, StoreTimeout: cfg.StoreTimeout, AppBaseURL: cfg.AppBaseURL}
	jobOpts := service.InvitationOptions{TTL: cfg.JobInvitationTTL, StoreTimeout: cfg.StoreTimeout, AppBaseURL: cfg.AppBaseURL}

	authService := service.NewAuthService(userRepo, verifier, cfg.SessionDuration)
	invitationService := service.NewInvitationService(db, invitationRepo, roleRepo, resolver, provider, dispatcher, inviteThrottle, roleOpts)
	jobInvitationService := service.NewJobInvitationService(db, jobInvitationRepo, shiftRepo, userRepo, roleRepo, dispatcher, inviteThrottle, jobOpts)
	capacityChecker := service.NewCapacityChecker(shiftRepo, cfg.StoreTimeout)
	maintenance := service.NewMaintenanceService(invitationRepo, jobInvitationRepo, userRepo, cfg.RetentionPeriod)

	// Initialize handlers
	csrf := security.NewCSRF(csrfSecret(cfg))
	middleware := handlers.NewMiddleware(authService, csrf, requestLimiter)
	authHandler := handlers.NewAuthHandler(authService, csrf)
	invitationHandler := handlers.NewInvitationHandler(invitationService)
	jobInvitationHandler := handlers.NewJobInvitationHandler(jobInvitationService, capacityChecker)
	healthHandler := handlers.NewHealthHandler(db, startup)

	// Setup routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)

	// Token routes: the token is the credential, no session required
	mux.HandleFunc("GET /invitations/accept", middleware.RateLimit(middleware.OptionalUser(invitationHandler.Accept)))
	mux.HandleFunc("POST /api/invitations/accept", middleware.RateLimit(middleware.OptionalUser(invitationHandler.Accept)))
	mux.HandleFunc("GET /job-invitations/accept", middleware.RateLimit(jobInvitationHandler.Accept))
	mux.HandleFunc("POST /api/job-invitations/accept", middleware.RateLimit(jobInvitationHandler.Accept))

	// Auth routes
	mux.HandleFunc("POST /auth/sign-in", middleware.RateLimit(authHandler.SignIn))
	mux.HandleFunc("POST /auth/login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /auth/password", middleware.Protected(authHandler.SetPassword))
	mux.HandleFunc("POST /logout", authHandler.Logout)

	// Manager routes
	mux.HandleFunc("POST /api/invitations", middleware.Protected(invitationHandler.Create))
	mux.HandleFunc("POST /api/invitations/{id}/revoke", middleware.Protected(invitationHandler.Revoke))
	mux.HandleFunc("POST /api/job-invitations", middleware.Protected(jobInvitationHandler.Create))
	mux.HandleFunc("POST /api/job-invitations/{id}/revoke", middleware.Protected(jobInvitationHandler.Revoke))
	mux.HandleFunc("GET /api/shifts/capacity", middleware.RequireAuth(jobInvitationHandler.Capacity))
	mux.HandleFunc("GET /api/shifts/{id}/assignments", middleware.RequireAuth(jobInvitationHandler.Roster))

	// Wrap with logging middleware
	handler := handlers.Logging(mux)

	startup.CompleteStep(stepServices)

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background maintenance
	ctx, stop := context.WithCancel(context.Background())
	go maintenance.Run(ctx, time.Hour)

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	startup.CompleteStep(stepReady)
	startup.MarkReady()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Deliver queued notifications before exiting
	dispatcher.Close()
}

// migrationsFS prefers an on-disk migrations directory when configured
func migrationsFS(path string) fs.FS {
	if path != "" {
		return os.DirFS(path)
	}
	return migrations.FS
}

func newThrottles(cfg *config.Config) (security.Throttle, security.Throttle, func(), error) {
	switch cfg.ThrottleBackend {
	case "redis":
		client, err := security.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		}
		return security.NewRedisThrottle(client, cfg.InviteRate, cfg.InviteRateWindow),
			security.NewRedisThrottle(client, cfg.RequestRate, time.Minute),
			closeFn, nil
	case "memory", "":
		invites := security.NewMemoryThrottle(cfg.InviteRate, cfg.InviteRateWindow)
		requests := security.NewMemoryThrottle(cfg.RequestRate, time.Minute)
		return invites, requests, func() {
			invites.Close()
			requests.Close()
		}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown throttle backend: %s", cfg.ThrottleBackend)
	}
}

func newTransport(cfg *config.Config) (service.Transport, error) {
	switch cfg.NotifyTransport {
	case "ses":
		ses, err := service.NewSESTransport(context.Background(), cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.Debug)
		if err != nil {
			return nil, err
		}
		return ses, nil
	case "smtp":
		return service.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SESFromEmail, cfg.Debug), nil
	case "log", "":
		return service.LogTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown notification transport: %s", cfg.NotifyTransport)
	}
}

// csrfSecret falls back to a per-process secret, so CSRF tokens stop
// verifying after a restart
func csrfSecret(cfg *config.Config) string {
	if cfg.CSRFSecret != "" {
		return cfg.CSRFSecret
	}
	secret, err := security.GenerateToken()
	if err != nil {
		log.Fatalf("Failed to generate CSRF secret: %v", err)
	}
	log.Println("Warning: CSRF_SECRET not set, using a random secret for this process")
	return secret
}
