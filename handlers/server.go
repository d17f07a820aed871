package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetshare.app/cloud/internal/apperror"
	"fleetshare.app/cloud/internal/billing"
	"fleetshare.app/cloud/internal/limits"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/plans"
	"fleetshare.app/cloud/internal/ratelimit"
	"fleetshare.app/cloud/internal/session"
	"fleetshare.app/cloud/internal/trial"
	"fleetshare.app/cloud/storage"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Storage           storage.Storage
	Catalog           *plans.Catalog
	Limits            *limits.Checker
	Machine           *trial.Machine
	Sweeper           *trial.Sweeper
	Notifier          *trial.Notifier
	Billing           *billing.Bridge
	Webhooks          billing.Provider
	Sessions          *session.Manager
	CheckoutLimiter   ratelimit.RateLimit
	CronSecret        string
	AllowedOrigins    []string
	TrustProxyHeaders bool
	Version           string
}

type Server struct {
	Router chi.Router
	Deps
}

func NewHttpServer(deps Deps) *Server {
	s := &Server{
		Router: chi.NewRouter(),
		Deps:   deps,
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := s.Router
	r.Use(middleware.RequestID)
	// X-Forwarded-For and X-Real-IP are client-controlled unless a proxy in
	// front overwrites them; the checkout limiter keys on the result.
	if deps.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", s.CreateUser)
		r.Get("/pricing", s.Pricing)
		r.Post("/webhooks/stripe", s.Stripe)

		r.With(s.optionalSession, s.rateLimitCheckout).Post("/billing/checkout", s.StartCheckout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/organizations", s.CreateOrganization)
			r.Route("/organizations/{orgID}", func(r chi.Router) {
				r.Get("/limits/{resource}", s.CheckLimit)
				r.Post("/aircraft", s.CreateAircraft)
				r.Post("/members", s.CreateMember)
				r.Post("/billing/portal", s.OpenBillingPortal)
			})
		})
	})

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Post("/expire-trials", s.ExpireTrials)
		r.Get("/expire-trials", s.TrialStatus)
		r.Post("/trial-notifications", s.TrialNotifications)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.Version,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) rateLimitCheckout(next http.Handler) http.Handler {
	if s.CheckoutLimiter == nil {
		return next
	}
	return ratelimit.Middleware(s.CheckoutLimiter)(next)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("Request handled", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps err to its HTTP status. Unexpected failures are logged and
// reported to Sentry, and their details are not leaked to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	kind := apperror.KindOf(err)

	if kind == apperror.KindInternal {
		logger.Error("Request failed", map[string]interface{}{
			"path":       r.URL.Path,
			"error":      err.Error(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		captureException(r, err)
		writeJSON(w, status, map[string]string{"error": "Internal server error", "kind": string(kind)})
		return
	}

	if status >= http.StatusInternalServerError {
		captureException(r, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(kind)})
}

func captureException(r *http.Request, err error) {
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return apperror.Validation("invalid request body: %v", err)
	}
	return nil
}
