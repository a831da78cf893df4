package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Bindings      BindingMetrics  `json:"bindings"`
	Variables     VariableMetrics `json:"variables"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BindingMetrics describes the loaded table.
type BindingMetrics struct {
	Loaded   bool `json:"loaded"`
	Bindings int  `json:"bindings"`
	Targets  int  `json:"targets"`
	Aliases  int  `json:"aliases"`
	Macros   int  `json:"macros"`
}

// VariableMetrics describes the variable store.
type VariableMetrics struct {
	Stored int `json:"stored"`
}

// handleMetrics returns process and table statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	if table, err := s.triggers.Table(); err == nil {
		metrics.Bindings = BindingMetrics{
			Loaded:   true,
			Bindings: len(table.Bindings),
			Targets:  len(table.Targets),
			Aliases:  len(table.Aliases),
			Macros:   len(table.Macros),
		}
	}

	if s.vars != nil {
		metrics.Variables.Stored = len(s.vars.Names())
	}

	writeJSON(w, http.StatusOK, metrics)
}
