package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"staffhub/internal/database"
	"staffhub/internal/identity"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/internal/security"
	"staffhub/internal/service"
	"staffhub/migrations"
)

type nopNotifier struct{}

func (nopNotifier) Notify(service.Notification) {}

type testServer struct {
	mux         *http.ServeMux
	db          *database.DB
	users       *repository.UserRepository
	invitations *repository.InvitationRepository
	jobInvites  *repository.JobInvitationRepository
	csrf        *security.CSRF
	middleware  *Middleware
	startup     *StartupStatus
	manager     *models.User
	worker      *models.User
}

// setupServer wires the handlers over a fresh SQLite database seeded with
// company 1, a manager, a worker, job 1 and shifts 10 (capacity 1) and 11
// (capacity 3)
func setupServer(t *testing.T) *testServer {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	for _, stmt := range []string{
		"INSERT INTO companies (id, name) VALUES (1, 'Acme Events')",
		"INSERT INTO jobs (id, company_id, title) VALUES (1, 1, 'Gala dinner')",
		"INSERT INTO shifts (id, job_id, workers_needed) VALUES (10, 1, 1)",
		"INSERT INTO shifts (id, job_id, workers_needed) VALUES (11, 1, 3)",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}

	users := repository.NewUserRepository(db)
	roles := repository.NewRoleRepository(db)
	invitations := repository.NewInvitationRepository(db)
	jobInvites := repository.NewJobInvitationRepository(db)
	shifts := repository.NewShiftRepository(db)
	provider := identity.NewLocalProvider(repository.NewIdentityRepository(db), "test-secret", 15*time.Minute)

	opts := service.InvitationOptions{TTL: time.Hour, StoreTimeout: 10 * time.Second, AppBaseURL: "http://staffhub.test"}
	resolver := service.NewIdentityResolver(provider, users, 5*time.Second)
	authService := service.NewAuthService(users, provider, time.Hour)
	roleSvc := service.NewInvitationService(db, invitations, roles, resolver, provider, nopNotifier{}, nil, opts)
	jobSvc := service.NewJobInvitationService(db, jobInvites, shifts, users, roles, nopNotifier{}, nil, opts)

	s := &testServer{
		mux:         http.NewServeMux(),
		db:          db,
		users:       users,
		invitations: invitations,
		jobInvites:  jobInvites,
		csrf:        security.NewCSRF("csrf-secret"),
		startup:     NewStartupStatus("Database connection"),
	}
	s.middleware = NewMiddleware(authService, s.csrf, nil)

	authHandler := NewAuthHandler(authService, s.csrf)
	invitationHandler := NewInvitationHandler(roleSvc)
	jobHandler := NewJobInvitationHandler(jobSvc, service.NewCapacityChecker(shifts, 5*time.Second))
	healthHandler := NewHealthHandler(db, s.startup)

	s.mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	s.mux.HandleFunc("GET /invitations/accept", s.middleware.OptionalUser(invitationHandler.Accept))
	s.mux.HandleFunc("POST /api/invitations/accept", s.middleware.OptionalUser(invitationHandler.Accept))
	s.mux.HandleFunc("GET /job-invitations/accept", jobHandler.Accept)
	s.mux.HandleFunc("POST /api/job-invitations/accept", jobHandler.Accept)
	s.mux.HandleFunc("POST /auth/sign-in", authHandler.SignIn)
	s.mux.HandleFunc("POST /auth/login", authHandler.Login)
	s.mux.HandleFunc("POST /auth/password", s.middleware.Protected(authHandler.SetPassword))
	s.mux.HandleFunc("POST /logout", authHandler.Logout)
	s.mux.HandleFunc("POST /api/invitations", s.middleware.Protected(invitationHandler.Create))
	s.mux.HandleFunc("POST /api/invitations/{id}/revoke", s.middleware.Protected(invitationHandler.Revoke))
	s.mux.HandleFunc("POST /api/job-invitations", s.middleware.Protected(jobHandler.Create))
	s.mux.HandleFunc("POST /api/job-invitations/{id}/revoke", s.middleware.Protected(jobHandler.Revoke))
	s.mux.HandleFunc("GET /api/shifts/capacity", s.middleware.RequireAuth(jobHandler.Capacity))
	s.mux.HandleFunc("GET /api/shifts/{id}/assignments", s.middleware.RequireAuth(jobHandler.Roster))

	s.manager, err = users.CreateUser(ctx, "manager@example.com", "identity-manager", "Manager")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if _, err := roles.GrantRoleIfAbsent(ctx, s.manager.ID, 1, models.RoleManager, nil, time.Now()); err != nil {
		t.Fatalf("Failed to grant role: %v", err)
	}
	s.worker, err = users.CreateUser(ctx, "worker@example.com", "identity-worker", "Worker")
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}

	return s
}

// session creates a session for user and returns its ID
func (s *testServer) session(t *testing.T, user *models.User) string {
	t.Helper()
	id := security.GenerateSessionID()
	if _, err := s.users.CreateSession(context.Background(), id, user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return id
}

type requestOption func(*http.Request)

func withSession(sessionID string) requestOption {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: sessionID})
	}
}

func withCSRF(token string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(security.CSRFHeader, token)
	}
}

func (s *testServer) do(t *testing.T, method, target, body string, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestAcceptRoleInvitationFlow(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	inv, err := s.invitations.CreateInvitation(ctx, "new@example.com", 1, models.RoleWorker, s.manager.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}

	rec := s.do(t, http.MethodGet, "/invitations/accept?token=abc123", "")
	if rec.Code != http.StatusNotFound || decodeBody(t, rec)["error"] != CodeNotFound {
		t.Fatalf("malformed token: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/invitations/accept", `{"token":"`+inv.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	proof, _ := body["session_proof"].(string)
	if body["ok"] != true || proof == "" || body["role"] != models.RoleWorker {
		t.Fatalf("unexpected accept body %v", body)
	}

	rec = s.do(t, http.MethodGet, "/invitations/accept?token="+inv.Token, "")
	if rec.Code != http.StatusConflict || decodeBody(t, rec)["error"] != CodeAlreadyUsed {
		t.Fatalf("second accept: status %d body %s", rec.Code, rec.Body.String())
	}

	// Exchange the proof for a session
	rec = s.do(t, http.MethodPost, "/auth/sign-in", `{"credential":"`+proof+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-in: status %d body %s", rec.Code, rec.Body.String())
	}
	var sessionID string
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.SessionCookieName {
			sessionID = c.Value
		}
	}
	if sessionID == "" {
		t.Fatal("sign-in did not set a session cookie")
	}
	if got := decodeBody(t, rec)["csrf_token"]; got != s.csrf.Token(sessionID) {
		t.Errorf("csrf_token = %v, want token bound to the session", got)
	}

	rec = s.do(t, http.MethodPost, "/auth/sign-in", `{"credential":"`+proof+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("reused credential: status %d, want 401", rec.Code)
	}

	// Re-entry with the new session succeeds without a new proof
	rec = s.do(t, http.MethodGet, "/invitations/accept?token="+inv.Token, "", withSession(sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("re-entry: status %d body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["reentry"] != true || body["session_proof"] != nil {
		t.Errorf("unexpected re-entry body %v", body)
	}

	// Set a password, then log in with it
	rec = s.do(t, http.MethodPost, "/auth/password", `{"password":"correct horse battery"}`, withSession(sessionID))
	if rec.Code != http.StatusForbidden {
		t.Errorf("password without CSRF: status %d, want 403", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/password", `{"password":"correct horse battery"}`,
		withSession(sessionID), withCSRF(s.csrf.Token(sessionID)))
	if rec.Code != http.StatusOK {
		t.Fatalf("set password: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"new@example.com","password":"correct horse battery"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("login: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/logout", "", withSession(sessionID))
	if rec.Code != http.StatusOK {
		t.Errorf("logout: status %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/password", `{"password":"another password"}`,
		withSession(sessionID), withCSRF(s.csrf.Token(sessionID)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status %d, want 401", rec.Code)
	}
}

func TestAcceptRoleInvitationLifecycleResponses(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	expired, _ := s.invitations.CreateInvitation(ctx, "late@example.com", 1, models.RoleWorker, s.manager.ID, time.Now().Add(-time.Second))
	revoked, _ := s.invitations.CreateInvitation(ctx, "gone@example.com", 1, models.RoleWorker, s.manager.ID, time.Now().Add(time.Hour))
	if _, err := s.invitations.RevokeInvitation(ctx, revoked.ID, time.Now()); err != nil {
		t.Fatalf("RevokeInvitation() error = %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{"expired", expired.Token, http.StatusGone, CodeExpired},
		{"revoked", revoked.Token, http.StatusGone, CodeRevoked},
		{"missing token", "", http.StatusNotFound, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/invitations/accept?token="+tt.token, "")
			if rec.Code != tt.wantStatus || decodeBody(t, rec)["error"] != tt.wantCode {
				t.Errorf("status %d body %s, want %d %s", rec.Code, rec.Body.String(), tt.wantStatus, tt.wantCode)
			}
		})
	}

	rec := s.do(t, http.MethodPost, "/api/invitations/accept", `{"token":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d, want 400", rec.Code)
	}
}

func TestAcceptJobInvitationResponses(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	other, err := s.users.CreateUser(ctx, "other@example.com", "identity-other", "Other")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	first, _ := s.jobInvites.CreateJobInvitation(ctx, other.ID, 1, s.manager.ID, []int64{10}, time.Now().Add(time.Hour))
	second, _ := s.jobInvites.CreateJobInvitation(ctx, s.worker.ID, 1, s.manager.ID, []int64{10, 11}, time.Now().Add(time.Hour))

	rec := s.do(t, http.MethodPost, "/api/job-invitations/accept", `{"token":"`+first.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["shifts_assigned"] != float64(1) {
		t.Errorf("shifts_assigned = %v, want 1", body["shifts_assigned"])
	}

	rec = s.do(t, http.MethodGet, "/job-invitations/accept?token="+second.Token, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("full shift: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != CodeShiftsUnavailable {
		t.Errorf("error = %v, want %s", body["error"], CodeShiftsUnavailable)
	}
	if shifts, _ := body["shifts"].([]interface{}); len(shifts) != 1 || shifts[0] != float64(10) {
		t.Errorf("shifts = %v, want [10]", body["shifts"])
	}

	rec = s.do(t, http.MethodGet, "/job-invitations/accept?token="+second.Token, "")
	if rec.Code != http.StatusConflict || decodeBody(t, rec)["error"] != "already-spots_filled" {
		t.Errorf("retry: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/job-invitations/accept?token="+first.Token, "")
	if rec.Code != http.StatusConflict || decodeBody(t, rec)["error"] != "already-accepted" {
		t.Errorf("accepted retry: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestManagerRoutes(t *testing.T) {
	s := setupServer(t)
	managerSession := s.session(t, s.manager)
	workerSession := s.session(t, s.worker)
	managerAuth := []requestOption{withSession(managerSession), withCSRF(s.csrf.Token(managerSession))}

	rec := s.do(t, http.MethodPost, "/api/invitations", `{"email":"x@example.com","company_id":1,"role":"worker"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous create: status %d, want 401", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/invitations", `{"email":"x@example.com","company_id":1,"role":"worker"}`,
		withSession(managerSession), withCSRF("forged"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("forged CSRF: status %d, want 403", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/invitations", `{"email":"x@example.com","company_id":1,"role":"worker"}`,
		withSession(workerSession), withCSRF(s.csrf.Token(workerSession)))
	if rec.Code != http.StatusForbidden || decodeBody(t, rec)["error"] != CodeForbidden {
		t.Errorf("worker create: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/invitations", `{"email":"x@example.com","role":"worker"}`, managerAuth...)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing company: status %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/invitations", `{"email":"x@example.com","company_id":1,"role":"worker"}`, managerAuth...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	invitation, _ := decodeBody(t, rec)["invitation"].(map[string]interface{})
	if invitation["status"] != models.StatusPending || invitation["token"] != nil {
		t.Errorf("unexpected invitation %v", invitation)
	}
	id := int64(invitation["id"].(float64))

	rec = s.do(t, http.MethodPost, "/api/invitations/"+itoa(id)+"/revoke", "", managerAuth...)
	if rec.Code != http.StatusOK {
		t.Errorf("revoke: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/invitations/abc/revoke", "", managerAuth...)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/job-invitations",
		`{"user_id":`+itoa(s.worker.ID)+`,"job_id":1,"shift_ids":[11,10,11]}`, managerAuth...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create job invitation: status %d body %s", rec.Code, rec.Body.String())
	}
	jobInv, _ := decodeBody(t, rec)["invitation"].(map[string]interface{})
	if shifts, _ := jobInv["shift_ids"].([]interface{}); len(shifts) != 2 {
		t.Errorf("shift_ids = %v, want deduplicated [11 10]", jobInv["shift_ids"])
	}

	rec = s.do(t, http.MethodPost, "/api/job-invitations",
		`{"user_id":`+itoa(s.worker.ID)+`,"job_id":1,"shift_ids":[]}`, managerAuth...)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("no shifts: status %d, want 422", rec.Code)
	}

	jobID := int64(jobInv["id"].(float64))
	rec = s.do(t, http.MethodPost, "/api/job-invitations/"+itoa(jobID)+"/revoke", "", managerAuth...)
	if rec.Code != http.StatusOK {
		t.Errorf("revoke job invitation: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCapacityRoute(t *testing.T) {
	s := setupServer(t)
	if _, err := s.db.ExecContext(context.Background(),
		"INSERT INTO shift_assignments (shift_id, user_id, assigned_at) VALUES (11, ?, ?)", s.worker.ID, time.Now().UTC()); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	rec := s.do(t, http.MethodGet, "/api/shifts/capacity?ids=10,11", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status %d, want 401", rec.Code)
	}

	session := s.session(t, s.manager)
	rec = s.do(t, http.MethodGet, "/api/shifts/capacity?ids=10,11,99", "", withSession(session))
	if rec.Code != http.StatusOK {
		t.Fatalf("capacity: status %d body %s", rec.Code, rec.Body.String())
	}
	remaining, _ := decodeBody(t, rec)["remaining"].(map[string]interface{})
	want := map[string]float64{"10": 1, "11": 2, "99": 0}
	for id, slots := range want {
		if remaining[id] != slots {
			t.Errorf("remaining[%s] = %v, want %v", id, remaining[id], slots)
		}
	}

	rec = s.do(t, http.MethodGet, "/api/shifts/capacity?ids=ten", "", withSession(session))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad ids: status %d, want 400", rec.Code)
	}
}

func TestRosterRoute(t *testing.T) {
	s := setupServer(t)
	if _, err := s.db.ExecContext(context.Background(),
		"INSERT INTO shift_assignments (shift_id, user_id, assigned_by, assigned_at) VALUES (11, ?, ?, ?)",
		s.worker.ID, s.manager.ID, time.Now().UTC()); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	managerSession := s.session(t, s.manager)

	tests := []struct {
		name       string
		target     string
		session    string
		wantStatus int
	}{
		{"anonymous", "/api/shifts/11/assignments", "", http.StatusUnauthorized},
		{"worker", "/api/shifts/11/assignments", s.session(t, s.worker), http.StatusForbidden},
		{"unknown shift", "/api/shifts/99/assignments", managerSession, http.StatusNotFound},
		{"bad id", "/api/shifts/abc/assignments", managerSession, http.StatusBadRequest},
		{"manager", "/api/shifts/11/assignments", managerSession, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []requestOption
			if tt.session != "" {
				opts = append(opts, withSession(tt.session))
			}
			rec := s.do(t, http.MethodGet, tt.target, "", opts...)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status %d body %s, want %d", rec.Code, rec.Body.String(), tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			assignments, _ := decodeBody(t, rec)["assignments"].([]interface{})
			if len(assignments) != 1 {
				t.Fatalf("assignments = %v, want one", assignments)
			}
			first, _ := assignments[0].(map[string]interface{})
			if first["user_id"] != float64(s.worker.ID) {
				t.Errorf("user_id = %v, want %d", first["user_id"], s.worker.ID)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable || decodeBody(t, rec)["error"] != "starting" {
		t.Errorf("before ready: status %d body %s", rec.Code, rec.Body.String())
	}

	s.startup.CompleteStep("Database connection")
	s.startup.MarkReady()

	rec = s.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ready: status %d body %s", rec.Code, rec.Body.String())
	}
}

type stubThrottle struct {
	allowed int
	err     error
}

func (s *stubThrottle) Allow(context.Context, string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.allowed--
	return s.allowed >= 0, nil
}

func TestRateLimit(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

	tests := []struct {
		name     string
		limiter  *stubThrottle
		requests int
		want     []int
	}{
		{"under limit", &stubThrottle{allowed: 2}, 2, []int{http.StatusNoContent, http.StatusNoContent}},
		{"over limit", &stubThrottle{allowed: 1}, 2, []int{http.StatusNoContent, http.StatusTooManyRequests}},
		{"backend down fails open", &stubThrottle{err: errors.New("redis down")}, 1, []int{http.StatusNoContent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewMiddleware(nil, nil, tt.limiter).RateLimit(ok)
			for i := 0; i < tt.requests; i++ {
				rec := httptest.NewRecorder()
				handler(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
				if rec.Code != tt.want[i] {
					t.Errorf("request %d: status %d, want %d", i, rec.Code, tt.want[i])
				}
			}
		})
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
