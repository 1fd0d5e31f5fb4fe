/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Requests:   One zerolog line per request (logging package)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the planning front end

ROUTE GROUPS:
  /api/leave/*          Leave day counting
  /api/rules/*          Rule evaluation
  /api/fatigue/*        Fatigue ledger
  /api/scores/*         Candidate scoring
  /api/catalog          Rule catalog (read, hot reload)
  /api/holidays/*       Site holidays
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. The service is meant to sit behind the
  planning application's gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/planning-engine/logging"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.Requests(h.logger))
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/leave/count", h.CountLeave)
		r.Post("/rules/evaluate", h.Evaluate)

		r.Route("/fatigue", func(r chi.Router) {
			r.Post("/events", h.RecordEvent)
			r.Post("/assignments", h.RecordAssignment)
			r.Get("/{personId}", h.GetFatigue)
			r.Get("/{personId}/entries", h.GetFatigueEntries)
		})

		r.Route("/scores", func(r chi.Router) {
			r.Post("/", h.Score)
			r.Post("/rank", h.Rank)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", h.GetCatalog)
			r.Put("/", h.ReloadCatalog)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Post("/french", h.AddFrenchHolidays)
			r.Delete("/{id}", h.DeleteHoliday)
		})
	})

	return r
}
