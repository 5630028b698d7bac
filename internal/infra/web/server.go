package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	red "premium-access/internal/infra/redis"
	"premium-access/internal/usecase"
)

// RateLimiter throttles abuse-prone endpoints (redeem, login). The Redis
// implementation lives in infra/redis; a nil limiter disables throttling.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	codeUC      usecase.CodeUseCase
	entitleUC   usecase.EntitlementUseCase
	sessionUC   usecase.SessionUseCase
	admissionUC usecase.AdmissionUseCase
	limiter     RateLimiter
	rateLimit   int // attempts per minute per user on redeem/login
	auth        *AuthManager
	apiKey      string
	password    string
	log         *zerolog.Logger
}

func NewServer(
	codeUC usecase.CodeUseCase,
	entitleUC usecase.EntitlementUseCase,
	sessionUC usecase.SessionUseCase,
	admissionUC usecase.AdmissionUseCase,
	limiter RateLimiter,
	rateLimit int,
	auth *AuthManager,
	apiKey string,
	password string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		codeUC:      codeUC,
		entitleUC:   entitleUC,
		sessionUC:   sessionUC,
		admissionUC: admissionUC,
		limiter:     limiter,
		rateLimit:   rateLimit,
		auth:        auth,
		apiKey:      apiKey,
		password:    password,
		log:         logger,
	}
}

// Router builds the service's HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleAdminLogin)
		r.Post("/auth/logout", s.handleAdminLogout)

		// End-user facing operations, throttled.
		r.Post("/codes/redeem", s.handleRedeem)
		r.Post("/sessions/login", s.handleSessionLogin)
		r.Get("/users/{userID}/entitlement", s.handleEntitlement)
		r.Get("/users/{userID}/sessions", s.handleListSessions)
		r.Delete("/users/{userID}/sessions/{deviceID}", s.handleDisconnect)

		// Administrative operations.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/codes", s.handleCreateCodes)
			r.Delete("/codes/{code}", s.handleDeactivateCode)
			r.Delete("/codes/{code}/users/{userID}", s.handleRevokeForUser)
			r.Get("/users/{userID}/codes", s.handleListUserCodes)
			r.Delete("/users/{userID}/codes", s.handleRevokeAllForUser)
			r.Delete("/users/{userID}/sessions", s.handleDisconnectAll)
		})
	})
	return r
}

// requireAdmin accepts either the static API key as a bearer token or a
// valid admin JWT (header or cookie).
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			if hdr := r.Header.Get("Authorization"); hdr != "" {
				parts := strings.SplitN(hdr, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") &&
					subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.apiKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
	})
}

// throttle applies the per-user fixed-window rate limit for an action.
// Returns false after writing the 429 when the caller is over the limit.
func (s *Server) throttle(w http.ResponseWriter, r *http.Request, userID, action string) bool {
	if s.limiter == nil || s.rateLimit <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), red.UserActionKey(userID, action), s.rateLimit, time.Minute)
	if err != nil {
		// Throttling is best-effort; an unavailable limiter must not take
		// logins down with it.
		s.log.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later")
		return false
	}
	return true
}
