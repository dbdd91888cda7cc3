package server

import (
	"context"
	"errors"
	"net/http"

	"loanportal/internal/ratelimit"
	"loanportal/internal/servicetoken"
	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/services/auth/internal/app"
	"loanportal/services/auth/internal/security"
)

// Limiters throttles the unauthenticated and password routes per client ip.
// Any of them may be nil.
type Limiters struct {
	Signup   *ratelimit.FixedWindowLimiter
	Login    *ratelimit.FixedWindowLimiter
	Refresh  *ratelimit.FixedWindowLimiter
	Password *ratelimit.FixedWindowLimiter
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Alerter        *security.AuditAlerter
	Limiters       Limiters
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
}

// Server exposes HTTP endpoints for the auth service.
type Server struct {
	app     *app.App
	alerter *security.AuditAlerter
	trusted *util.TrustedProxies
	origins []string
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:     cfg.App,
		alerter: cfg.Alerter,
		trusted: cfg.TrustedProxies,
		origins: cfg.AllowedOrigins,
		mux:     http.NewServeMux(),
	}
	s.routes(cfg.Limiters)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("auth", util.WithSecurityHeaders(util.WithCORS(s.origins, s.mux))))
}

func (s *Server) routes(l Limiters) {
	limit := func(lim *ratelimit.FixedWindowLimiter, scope string, h http.HandlerFunc) http.Handler {
		return ratelimit.Middleware(lim, scope, s.trusted)(h)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /auth/jwks", s.handleJWKS)
	s.mux.HandleFunc("GET /.well-known/jwks.json", s.handleJWKS)

	// auth
	s.mux.Handle("POST /auth/signup", limit(l.Signup, "signup", s.handleSignup))
	s.mux.Handle("POST /auth/login", limit(l.Login, "login", s.handleLogin))
	s.mux.Handle("POST /auth/refresh", limit(l.Refresh, "refresh", s.handleRefresh))
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.mux.Handle("GET /auth/me", s.authenticated(s.handleMe))
	s.mux.Handle("PATCH /auth/me", s.authenticated(s.handleUpdateMe))
	s.mux.Handle("POST /auth/me/password", limit(l.Password, "password", s.authenticated(s.handleChangePassword).ServeHTTP))
	s.mux.Handle("POST /auth/password/reset", limit(l.Password, "password", s.handleResetRequest))
	s.mux.Handle("POST /auth/password/reset/confirm", limit(l.Password, "password", s.handleResetConfirm))

	// admin
	s.mux.Handle("GET /auth/admin/users", s.adminOnly(s.handleAdminUsers))
	s.mux.Handle("PATCH /auth/admin/users/{id}", s.adminOnly(s.handleAdminUserByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.audit(r, "auth.authorize", security.OutcomeFail)
			if errors.Is(err, app.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			fail(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin {
			s.audit(r, "auth.admin.authorize", security.OutcomeFail)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, error) {
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		return domain.User{}, app.ErrUnauthorized
	}
	return s.app.Authenticate(r.Context(), token)
}

// audit feeds the alerter with the outcome of a sensitive call.
func (s *Server) audit(r *http.Request, event, outcome string) {
	s.alerter.Record(context.WithoutCancel(r.Context()), event, outcome, util.ClientIP(r, s.trusted))
}
