package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callbroker/callbroker/internal/api/middleware"
	"github.com/callbroker/callbroker/internal/config"
	"github.com/callbroker/callbroker/internal/database"
	"github.com/callbroker/callbroker/internal/resolve"
)

// CallService starts and controls call resolutions. Implemented by the
// resolution manager.
type CallService interface {
	Originate(rawHandle, targetAccount string, responder resolve.ResponseChannel) (string, error)
	Abort(callID string) bool
	Active() []resolve.CallSnapshot
	ActiveCount() int
}

// Reloader re-reads routing state (accounts, relay settings, provider
// bindings) from the database. Mutating handlers call it so changes take
// effect without a restart.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ProviderDirectory exposes the currently bound provider components.
type ProviderDirectory interface {
	Components() []string
	Count() int
}

// Deps bundles everything the HTTP server needs.
type Deps struct {
	Config       *config.Config
	JWTSecret    []byte
	Accounts     database.AccountRepository
	Gateways     database.GatewayRepository
	SystemConfig database.SystemConfigRepository
	Records      database.CallRecordRepository
	AdminUsers   database.AdminUserRepository
	Calls        CallService
	Providers    ProviderDirectory
	Reloader     Reloader
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config

	jwtSecret    []byte
	accounts     database.AccountRepository
	gateways     database.GatewayRepository
	systemConfig database.SystemConfigRepository
	records      database.CallRecordRepository
	adminUsers   database.AdminUserRepository
	calls        CallService
	providers    ProviderDirectory
	reloader     Reloader

	conns     *connTracker
	startTime time.Time

	apiLimiter  *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		cfg:          deps.Config,
		jwtSecret:    deps.JWTSecret,
		accounts:     deps.Accounts,
		gateways:     deps.Gateways,
		systemConfig: deps.SystemConfig,
		records:      deps.Records,
		adminUsers:   deps.AdminUsers,
		calls:        deps.Calls,
		providers:    deps.Providers,
		reloader:     deps.Reloader,
		conns:        newConnTracker(),
		startTime:    time.Now(),
		apiLimiter:   middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter:  middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))

		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)
		r.With(middleware.RateLimit(s.authLimiter)).Post("/setup", s.handleSetup)
		r.With(middleware.RateLimit(s.authLimiter)).Post("/auth/login", s.handleLogin)

		// Control routes behind admin JWT auth.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminAuth(s.jwtSecret))

			r.Get("/auth/me", s.handleMe)

			r.Route("/calls", func(r chi.Router) {
				r.Post("/", s.handleOriginate)
				r.Get("/active", s.handleActiveCalls)
				r.Delete("/{id}", s.handleAbortCall)
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.handleListAccounts)
				r.Post("/", s.handleCreateAccount)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAccount)
					r.Put("/", s.handleUpdateAccount)
					r.Delete("/", s.handleDeleteAccount)
				})
			})

			r.Route("/gateways", func(r chi.Router) {
				r.Get("/", s.handleListGateways)
				r.Post("/", s.handleCreateGateway)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetGateway)
					r.Put("/", s.handleUpdateGateway)
					r.Delete("/", s.handleDeleteGateway)
				})
			})

			r.Route("/records", func(r chi.Router) {
				r.Get("/", s.handleListRecords)
				r.Get("/{callID}", s.handleGetRecord)
			})

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.handleSystemStatus)
				r.Post("/reload", s.handleSystemReload)
			})
		})
	})

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reload applies routing changes after a mutation. Failures are logged but
// do not fail the request; the database already holds the new state.
func (s *Server) reload(ctx context.Context) {
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(ctx); err != nil {
		slog.Error("reloading routing state", "error", err)
	}
}
