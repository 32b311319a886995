package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency check of /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetSensor)
				r.Get("/readings", s.handleGetReadings)
				r.Get("/consumption", s.handleGetConsumption)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Delete("/consumption", s.handleResetConsumption)
					r.Post("/recalibrate", s.handleRecalibrate)
					r.Post("/lowpower", s.handleLowPower)
				})
			})
		})

		r.Route("/calibration/{key}", func(r chi.Router) {
			r.Get("/", s.handleGetCalibration)
			r.With(s.authMiddleware).Put("/", s.handleSetCalibration)
		})
	})

	return r
}

// handleHealth returns the server health and the state of each dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"version":      s.version,
		"dependencies": deps,
		"ws_clients":   s.hub.ClientCount(),
	})
}
