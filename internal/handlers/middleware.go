package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"staffhub/internal/models"
	"staffhub/internal/security"
	"staffhub/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey    ContextKey = "user"
	SessionContextKey ContextKey = "session"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService *service.AuthService
	csrf        *security.CSRF
	limiter     security.Throttle
}

// NewMiddleware creates a new middleware instance. limiter may be nil to
// disable per-client rate limiting.
func NewMiddleware(authService *service.AuthService, csrf *security.CSRF, limiter security.Throttle) *Middleware {
	return &Middleware{
		authService: authService,
		csrf:        csrf,
		limiter:     limiter,
	}
}

// RateLimit limits requests per client IP on unauthenticated endpoints
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next(w, r)
			return
		}

		ok, err := m.limiter.Allow(r.Context(), "ip:"+security.GetClientIP(r))
		if err != nil {
			log.Printf("Rate limiter unavailable: %v", err)
		} else if !ok {
			respondWithError(w, http.StatusTooManyRequests, CodeThrottled, "Too many requests, try again later", "", nil)
			return
		}
		next(w, r)
	}
}

// RequireAuth is middleware that requires a valid session
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := security.SessionIDFromRequest(r)
		if sessionID == "" {
			respondWithError(w, http.StatusUnauthorized, CodeUnauthorized, "Sign in required", "", nil)
			return
		}

		user, err := m.authService.ValidateSession(r.Context(), sessionID)
		if err != nil {
			// Clear invalid cookie
			http.SetCookie(w, security.ClearSessionCookie(r))
			respondWithServiceError(w, err, "Error validating session")
			return
		}

		next(w, r.WithContext(withUser(r.Context(), user, sessionID)))
	}
}

// OptionalUser attaches the session user when one is present and never rejects
func (m *Middleware) OptionalUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := security.SessionIDFromRequest(r)
		if sessionID == "" {
			next(w, r)
			return
		}

		user, err := m.authService.ValidateSession(r.Context(), sessionID)
		if err != nil {
			next(w, r)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user, sessionID)))
	}
}

// RequireCSRF checks the CSRF header of a session authenticated request.
// It must run inside RequireAuth.
func (m *Middleware) RequireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, _ := r.Context().Value(SessionContextKey).(string)
		if !m.csrf.Valid(sessionID, r.Header.Get(security.CSRFHeader)) {
			respondWithError(w, http.StatusForbidden, CodeForbidden, "Invalid CSRF token", "", nil)
			return
		}
		next(w, r)
	}
}

// Protected combines RequireAuth and RequireCSRF for mutating routes
func (m *Middleware) Protected(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(m.RequireCSRF(next))
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withUser(ctx context.Context, user *models.User, sessionID string) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, SessionContextKey, sessionID)
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
