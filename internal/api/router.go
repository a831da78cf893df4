package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/relay-core/internal/auth"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/bindings", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBindingRead)).Get("/", s.handleListBindings)
				r.With(s.requirePermission(auth.PermBindingReload)).Post("/reload", s.handleReloadBindings)

				r.Route("/{name}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermBindingRead)).Get("/", s.handleGetBinding)
					r.With(s.requirePermission(auth.PermBindingTrigger)).Post("/trigger", s.handleTriggerBinding)
				})
			})

			r.With(s.requirePermission(auth.PermBindingTrigger)).Post("/shortcuts/trigger", s.handleTriggerShortCut)

			r.Route("/targets", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBindingRead)).Get("/", s.handleListTargets)
				r.With(s.requirePermission(auth.PermTargetPing)).Post("/{name}/ping", s.handlePingTarget)
			})

			r.Route("/variables", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermVariableRead)).Get("/", s.handleListVariables)
				r.With(s.requirePermission(auth.PermVariableRead)).Get("/{name}", s.handleGetVariable)
				r.With(s.requirePermission(auth.PermVariableWrite)).Put("/{name}", s.handleSetVariable)
				r.With(s.requirePermission(auth.PermVariableWrite)).Delete("/{name}", s.handleDeleteVariable)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status with a per-component
// breakdown. Any failing component makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.components)+1)

	if s.triggers.Ready() {
		components["bindings"] = "ok"
	} else {
		components["bindings"] = "not loaded"
		status, code = "degraded", http.StatusServiceUnavailable
	}

	for name, c := range s.components {
		if c == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
