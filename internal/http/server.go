package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"payrecord/internal/cache"
	"payrecord/internal/log"
	"payrecord/internal/metrics"
	"payrecord/internal/middleware/authn"
	"payrecord/internal/middleware/ratelimit"
	"payrecord/internal/middleware/security"
	"payrecord/internal/middleware/trace"
	"payrecord/internal/services"
)

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers delegate to.
type Deps struct {
	Bills      *services.BillService
	Reconciler *services.Reconciler
	Merchants  *services.MerchantService
	Icons      *services.IconService
	Users      *services.UserService
	Activity   *services.ActivityLog
	Reminders  *services.ReminderService
	Calendar   CalendarStore
	Tokens     authn.TokenValidator
	DB         Pinger
	Caches     *cache.Manager
	Metrics    *metrics.Metrics
	Logger     *log.Logger
}

// Options tune request protection and the calendar feed.
type Options struct {
	RateLimitPerMinute      int
	LoginRateLimitPerMinute int
	TrustedProxies          []string
	CalendarName            string
	CalendarTimezone        string
	Location                *time.Location
}

type Server struct {
	http.Server
	deps     Deps
	opts     Options
	detector *security.Detector
	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	login    *ratelimit.Limiter
	started  time.Time
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires middleware and routes.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		detector: detector,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			Name:              "general",
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		login: ratelimit.NewLimiter(ratelimit.Config{
			Name:              "login",
			RequestsPerMinute: opts.LoginRateLimitPerMinute,
		}),
		started: time.Now(),
		now:     time.Now,
	}
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP, deps.Logger.WithComponent(log.ComponentTrace), deps.Metrics)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(log.Middleware(s.deps.Logger.WithComponent(log.ComponentHTTP)))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware(s.onSuspicious))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.clientIP, s.onLimited(s.limiter)))

		r.With(security.StaticAssetMiddleware(86400)).Get("/uploads/icons/{filename}", s.handleServeIcon)

		r.Route("/api", func(r chi.Router) {
			r.With(s.login.Middleware(s.clientIP, s.onLimited(s.login)), log.ComponentMiddleware(log.ComponentAuth)).
				Post("/auth/login", s.handleLogin)
			r.With(log.ComponentMiddleware(log.ComponentCalendar)).Get("/calendar/{userId}", s.handleCalendar)

			r.Group(func(r chi.Router) {
				r.Use(authn.RequireAuth(s.deps.Tokens))

				r.Get("/users", s.handleListUsers)
				r.Post("/users", s.handleCreateUser)
				r.Get("/users/profile", s.handleGetProfile)
				r.Put("/users/profile", s.handleUpdateProfile)

				r.Get("/bills", s.handleListBills)
				r.Post("/bills", s.handleCreateBill)
				r.Delete("/bills", s.handleDeleteMonth)
				r.Post("/bills/clone", s.handleCloneBills)
				r.Put("/bills/{id}", s.handleUpdateBill)
				r.Delete("/bills/{id}", s.handleDeleteBill)

				r.Get("/logs", s.handleListActivity)

				r.Get("/merchants", s.handleListMerchants)
				r.Post("/merchants", s.handleSaveMerchant)
				r.Delete("/merchants", s.handleDeleteMerchant)
				r.Post("/upload", s.handleUpload)

				r.Post("/telegram/test", s.handleTelegramTest)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})
	return r
}

func (s *Server) clientIP(r *http.Request) string {
	return s.detector.ExtractClientIP(r)
}

func (s *Server) onSuspicious(r *http.Request) {
	s.deps.Metrics.IncSuspicious()
	log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request",
		log.FieldClientIP, s.clientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldUserAgent, r.UserAgent())
}

func (s *Server) onLimited(l *ratelimit.Limiter) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		s.deps.Metrics.IncRateLimited(l.Name())
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.clientIP(r),
			"limiter", l.Name())
		ErrorResponse(http.StatusTooManyRequests, "Too many requests").Write(w)
	}
}

// Shutdown stops the limiters and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.login.Stop()
		if err := s.Server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr = err
		}
	})
	return shutdownErr
}
