// Package router assembles the HTTP surface: the WAHA webhook, the
// landing-page lead endpoints, the dashboard API and operational probes.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orquestrai/sells-broker/internal/brokers"
	"github.com/orquestrai/sells-broker/internal/dashboard"
	httpmiddleware "github.com/orquestrai/sells-broker/internal/http/middleware"
	"github.com/orquestrai/sells-broker/internal/leads"
	"github.com/orquestrai/sells-broker/internal/timers"
	"github.com/orquestrai/sells-broker/internal/visits"
	"github.com/orquestrai/sells-broker/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webhook            http.Handler
	LeadsHandler       *leads.Handler
	DashboardHandler   *dashboard.Handler
	BrokersHandler     *brokers.Handler
	Visits             *visits.Manager
	Scheduler          *timers.Scheduler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	StartedAt          time.Time
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg))
	r.Get("/stats", statsHandler(cfg))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.With(httpmiddleware.RateLimit(30, 60)).
			Handle("/api/v1/whatsapp/webhook", cfg.Webhook)
	}

	if cfg.LeadsHandler != nil {
		r.With(httpmiddleware.RateLimit(10, 20)).
			Post("/api/landing-lead", cfg.LeadsHandler.Register)
		r.Get("/api/landing-leads", cfg.LeadsHandler.List)
	}

	r.Route("/api/v1/dashboard", func(d chi.Router) {
		if cfg.BrokersHandler != nil {
			d.Mount("/brokers", cfg.BrokersHandler.Routes())
		}
		if cfg.DashboardHandler != nil {
			d.Mount("/", cfg.DashboardHandler.Routes())
		}
	})

	if cfg.Visits != nil {
		r.Get("/visits", visitsDebugHandler(cfg.Visits))
	}

	return r
}

func healthHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":    "healthy",
			"service":   "sells-broker",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if !cfg.StartedAt.IsZero() {
			body["uptime_seconds"] = int(time.Since(cfg.StartedAt).Seconds())
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func statsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if cfg.Scheduler != nil {
			body["active_timers"] = cfg.Scheduler.Len()
		}
		if cfg.Visits != nil {
			all := cfg.Visits.All()
			byStatus := map[string]int{}
			for _, v := range all {
				byStatus[string(v.Status)]++
			}
			body["visits_in_memory"] = len(all)
			body["visits_by_status"] = byStatus
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// visitsDebugHandler exposes the in-memory visit registry for inspection.
func visitsDebugHandler(mgr *visits.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := mgr.All()
		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(all),
			"visits": all,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
