package http

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
	"rentdesk/internal/middleware/ratelimit"
	"rentdesk/internal/middleware/security"
	"rentdesk/internal/middleware/trace"
	"rentdesk/internal/services"
	appweb "rentdesk/web"
)

// Dashboards is what the dashboard handlers need from the service layer.
type Dashboards interface {
	TenantDashboard(ctx context.Context, tenantID uuid.UUID) (services.TenantDashboard, error)
	LandlordRentRoll(ctx context.Context, landlordID uuid.UUID) ([]core.RentRollEntry, error)
}

// Payments is what the payment handlers need from the service layer.
type Payments interface {
	SubmitPayment(ctx context.Context, leaseID uuid.UUID, in services.NewPayment) (core.Payment, error)
	SetPaymentStatus(ctx context.Context, paymentID uuid.UUID, to core.PaymentStatus) (core.Payment, error)
	ListPayments(ctx context.Context, leaseID uuid.UUID) ([]core.Payment, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewServer. Dashboards and Payments are required.
type Options struct {
	Dashboards     Dashboards
	Payments       Payments
	Ready          Pinger
	Logger         *log.Logger
	CurrencySymbol string
	RateLimit      ratelimit.Config
}

type Server struct {
	http.Server
	dashboards Dashboards
	payments   Payments
	ready      Pinger
	templates  *template.Template
	money      *MoneyFormatter
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	logger     *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Dashboards == nil || opts.Payments == nil {
		return nil, fmt.Errorf("http server: dashboards and payments are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		dashboards: opts.Dashboards,
		payments:   opts.Payments,
		ready:      opts.Ready,
		templates:  t,
		money:      NewMoneyFormatter(opts.CurrencySymbol),
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		tracer:     trace.NewMiddleware(logger),
		logger:     logger,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Handler)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultPolicy()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Get("/tenants/{tenantID}/dashboard", s.handleTenantDashboardPage)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(trace.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later").Write(w)
		}))

		r.Get("/tenants/{tenantID}/dashboard", s.handleTenantDashboard)
		r.Get("/landlords/{landlordID}/rent-roll", s.handleLandlordRentRoll)
		r.Get("/leases/{leaseID}/payments", s.handleListPayments)
		r.Post("/leases/{leaseID}/payments", s.handleSubmitPayment)
		r.Post("/payments/{paymentID}/status", s.handleSetPaymentStatus)
	})

	return r
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().BodyString("ok").Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	NewResponse().BodyString("ready").Write(w)
}
