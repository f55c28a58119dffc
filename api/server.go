/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus counters per route pattern
  5. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/workers/*       Directory, facts, tiers, pay
  /api/imports/*       Raw import ledger
  /api/pay-periods/*   Pay periods
  /api/scenarios/*     Demo data
  /healthz             Liveness and store reachability
  /metrics             Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&logFormatter{log: h.Log}))
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", h.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetWorker)

				r.Get("/demos", h.ListDemos)
				r.Post("/demos", h.UpsertDemo)
				r.Get("/sales-hours", h.ListSalesHours)
				r.Post("/sales-hours", h.UpsertSalesHours)

				r.Get("/tiers", h.ListTiers)
				r.Post("/tiers", h.UpsertTier)
				r.Put("/tiers/{tierID}", h.UpdateTier)
				r.Delete("/tiers/{tierID}", h.DeactivateTier)

				r.Get("/daily-pay", h.GetDailyPay)
				r.Get("/daily-metrics", h.GetDailyMetrics)
			})
		})

		r.Route("/imports", func(r chi.Router) {
			r.Post("/", h.CreateImport)
			r.Get("/{id}", h.GetImport)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/pay-periods", func(r chi.Router) {
			r.Get("/", h.ListPayPeriods)
			r.Post("/", h.CreatePayPeriod)
			r.Get("/{id}", h.GetPayPeriod)
			r.Post("/{id}/recompute", h.RecomputePayPeriod)
		})
	})

	return r
}

// =============================================================================
// REQUEST LOGGING
// =============================================================================

// logFormatter adapts chi's request logger to logrus.
type logFormatter struct {
	log logrus.FieldLogger
}

func (f *logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{log: f.log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote":     r.RemoteAddr,
	})}
}

type logEntry struct {
	log logrus.FieldLogger
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	entry := e.log.WithFields(logrus.Fields{
		"status":     status,
		"bytes":      bytes,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	})
	if status >= http.StatusInternalServerError {
		entry.Warn("request completed")
		return
	}
	entry.Info("request completed")
}

func (e *logEntry) Panic(v interface{}, stack []byte) {
	e.log.WithFields(logrus.Fields{
		"panic": v,
		"stack": string(stack),
	}).Error("request panicked")
}
