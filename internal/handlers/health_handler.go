package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// StartupStatus tracks the initialization progress
type StartupStatus struct {
	mu      sync.RWMutex
	ready   bool
	current string
	steps   []StartupStep
}

type StartupStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// NewStartupStatus creates a tracker for the named steps
func NewStartupStatus(steps ...string) *StartupStatus {
	s := &StartupStatus{current: "Initializing..."}
	for _, name := range steps {
		s.steps = append(s.steps, StartupStep{Name: name})
	}
	return s
}

// SetCurrentStep updates the current initialization step
func (s *StartupStatus) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// CompleteStep marks a step as completed
func (s *StartupStatus) CompleteStep(stepName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].Name == stepName {
			s.steps[i].Completed = true
			break
		}
	}
}

// MarkReady marks the server as fully initialized
func (s *StartupStatus) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.current = "Server ready"
}

// IsReady returns whether the server is fully initialized
func (s *StartupStatus) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *StartupStatus) progress() (int, string, []StartupStep) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := 0
	for _, step := range s.steps {
		if step.Completed {
			completed++
		}
	}
	percent := 100
	if len(s.steps) > 0 && !s.ready {
		percent = (completed * 100) / len(s.steps)
	}
	steps := append([]StartupStep(nil), s.steps...)
	return percent, s.current, steps
}

// Pinger is satisfied by *sql.DB and *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	db      Pinger
	startup *StartupStatus
}

func NewHealthHandler(db Pinger, startup *StartupStatus) *HealthHandler {
	return &HealthHandler{db: db, startup: startup}
}

// Healthz answers 503 until startup completes or while the database is unreachable
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if !h.startup.IsReady() {
		percent, current, steps := h.startup.progress()
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ok":       false,
			"error":    "starting",
			"progress": percent,
			"current":  current,
			"steps":    steps,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "database-unavailable", "Database unavailable", "Health check failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
