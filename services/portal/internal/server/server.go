package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"loanportal/internal/ratelimit"
	"loanportal/internal/servicetoken"
	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/pkg/realtime"
	"loanportal/services/portal/internal/app"
	"loanportal/services/portal/internal/metrics"
)

// TokenVerifier turns a bearer access token into the caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Tokens   TokenVerifier
	Internal *servicetoken.Verifier
	Hub      *realtime.Hub
	Metrics  *metrics.Metrics

	UploadLimiter  *ratelimit.FixedWindowLimiter
	PrequalLimiter *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
}

// Server exposes the customer dashboard and admin back office over HTTP.
type Server struct {
	app      *app.App
	tokens   TokenVerifier
	internal *servicetoken.Verifier
	hub      *realtime.Hub
	metrics  *metrics.Metrics

	uploadLimiter  *ratelimit.FixedWindowLimiter
	prequalLimiter *ratelimit.FixedWindowLimiter
	trusted        *util.TrustedProxies
	origins        []string
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token verifier required")
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		internal:       cfg.Internal,
		hub:            cfg.Hub,
		metrics:        cfg.Metrics,
		uploadLimiter:  cfg.UploadLimiter,
		prequalLimiter: cfg.PrequalLimiter,
		trusted:        cfg.TrustedProxies,
		origins:        cfg.AllowedOrigins,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("portal", util.WithSecurityHeaders(util.WithCORS(s.origins, s.router))))
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return s.metrics.Instrument(routePattern, next)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { notFound(w, "not found") })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { methodNotAllowed(w) })

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.With(ratelimit.Middleware(s.prequalLimiter, "prequal", s.trusted)).Post("/api/prequal", s.handlePrequal)
	r.With(s.withInternal).Post("/internal/applications/claim", s.handleClaim)
	r.Get("/api/realtime", s.handleRealtime)

	r.Route("/api", func(api chi.Router) {
		api.Use(s.withUser)
		api.Get("/dashboard", s.handleDashboard)
		api.Get("/application", s.handleGetApplication)
		api.Patch("/application", s.handleUpdateProfile)

		api.Get("/documents", s.handleListDocuments)
		api.With(ratelimit.Middleware(s.uploadLimiter, "upload", s.trusted)).Post("/documents", s.handleUpload)
		api.Get("/documents/{documentID}", s.handleGetDocument)
		api.Get("/documents/{documentID}/url", s.handleDocumentURL)
		api.Patch("/documents/{documentID}/status", s.handleDocumentStatus)
		api.Delete("/documents/{documentID}", s.handleDeleteDocument)

		api.Get("/notifications", s.handleListNotifications)
		api.Post("/notifications/read-all", s.handleReadAllNotifications)
		api.Post("/notifications/{notificationID}/read", s.handleReadNotification)

		api.Get("/messages", s.handleListMessages)
		api.Post("/messages", s.handleSendMessage)
		api.Post("/messages/read", s.handleReadMessages)

		api.Get("/appointments", s.handleListAppointments)
		api.Post("/appointments", s.handleScheduleAppointment)
		api.Post("/appointments/{appointmentID}/cancel", s.handleCancelAppointment)

		api.Get("/tickets", s.handleListTickets)
		api.Post("/tickets", s.handleCreateTicket)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(withAdmin)
			admin.Get("/applications", s.handleAdminListApplications)
			admin.Get("/applications/{applicationID}", s.handleAdminApplication)
			admin.Patch("/applications/{applicationID}", s.handleAdminPatchApplication)
			admin.Post("/applications/{applicationID}/status", s.handleAdminChangeStatus)
			admin.Post("/applications/{applicationID}/notes", s.handleAdminAddNote)
			admin.Get("/applications/{applicationID}/documents", s.handleListDocuments)
			admin.With(ratelimit.Middleware(s.uploadLimiter, "upload", s.trusted)).Post("/applications/{applicationID}/documents", s.handleUpload)

			admin.Get("/documents/pending", s.handleAdminPendingDocuments)

			admin.Get("/messages", s.handleAdminRecentMessages)
			admin.Get("/messages/{userID}", s.handleListMessages)
			admin.Post("/messages/{userID}", s.handleSendMessage)
			admin.Post("/messages/{userID}/read", s.handleReadMessages)

			admin.Get("/tickets", s.handleListTickets)
			admin.Patch("/tickets/{ticketID}", s.handleAdminTicketStatus)

			admin.Get("/storage", s.handleAdminStorage)
		})
	})
	s.router = r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identityContextKey struct{}

func identityFrom(r *http.Request) domain.Identity {
	id, _ := r.Context().Value(identityContextKey{}).(domain.Identity)
	return id
}

func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, err := s.tokens.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, id)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r).Admin() {
			writeError(w, http.StatusForbidden, app.ErrAdminRequired.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.internal == nil {
			writeError(w, http.StatusInternalServerError, "internal auth not configured")
			return
		}
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.internal.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRealtime accepts the token as a bearer header or, for browsers that
// cannot set headers on websocket requests, the access_token query value.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		notFound(w, "not found")
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := s.tokens.Verify(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.hub.ServeWS(w, r, id)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
