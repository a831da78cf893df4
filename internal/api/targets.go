package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

type targetView struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// handleListTargets returns the target agents named in the bindings file.
func (s *Server) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	targets, err := s.registry.Targets()
	if err != nil {
		writeUnavailable(w, "bindings not loaded")
		return
	}

	out := make([]targetView, 0, len(targets))
	for name, addr := range targets {
		out = append(out, targetView{Name: name, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{
		"targets": out,
		"count":   len(out),
	})
}

// handlePingTarget checks that a target's agent answers.
func (s *Server) handlePingTarget(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		writeUnavailable(w, "remote client not configured")
		return
	}
	targets, err := s.registry.Targets()
	if err != nil {
		writeUnavailable(w, "bindings not loaded")
		return
	}

	name := chi.URLParam(r, "name")
	addr, ok := targets[name]
	if !ok {
		writeNotFound(w, "unknown target: "+name)
		return
	}

	start := time.Now()
	if err := s.remote.Ping(r.Context(), addr); err != nil {
		s.logger.Warn("target ping failed", "target", name, "address", addr, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"target":    name,
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"target":     name,
		"reachable":  true,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}
