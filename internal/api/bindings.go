package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/trigger"
)

// bindingSummary is the listing view of a binding.
type bindingSummary struct {
	Name     string `json:"name"`
	ShortCut string `json:"shortcut"`
	Shape    string `json:"shape"`
	Steps    int    `json:"steps"`
}

// bindingDetail adds the delay settings and step kinds.
type bindingDetail struct {
	bindingSummary
	DelayBefore *int       `json:"delay_before,omitempty"`
	DelayAfter  *int       `json:"delay_after,omitempty"`
	Lists       [][]string `json:"lists"`
}

// triggerResponse is returned by the trigger endpoints.
type triggerResponse struct {
	ExecutionID string `json:"execution_id"`
	Binding     string `json:"binding"`
	Status      string `json:"status"`
}

type shortCutRequest struct {
	ShortCut string `json:"shortcut"`
}

func summarise(b *binding.Binding) bindingSummary {
	steps := 0
	for _, list := range stepLists(b) {
		steps += len(list)
	}
	return bindingSummary{
		Name:     b.Name,
		ShortCut: b.ShortCut,
		Shape:    b.Shape().String(),
		Steps:    steps,
	}
}

// stepLists returns the binding's command lists: one per thread, or just
// the flat list.
func stepLists(b *binding.Binding) [][]binding.Step {
	switch b.Shape() {
	case binding.ShapeThreads:
		return b.Threads
	case binding.ShapeThreadsCircular:
		return b.ThreadsCircular
	default:
		return [][]binding.Step{b.Commands}
	}
}

// stepLabel names a step by what it does: the command kind and its
// destination, or the macro it calls.
func stepLabel(s binding.Step) string {
	if s.IsMacro() {
		return "macro:" + s.Macro.Name
	}
	c := s.Command
	if !c.Destination.IsSet() {
		return string(c.Kind)
	}
	return string(c.Kind) + "@" + c.Destination.String()
}

// handleListBindings returns every binding sorted by shortcut.
func (s *Server) handleListBindings(w http.ResponseWriter, _ *http.Request) {
	bindings, err := s.registry.ListBindings()
	if err != nil {
		writeUnavailable(w, "bindings not loaded")
		return
	}

	out := make([]bindingSummary, 0, len(bindings))
	for i := range bindings {
		out = append(out, summarise(&bindings[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bindings": out,
		"count":    len(out),
	})
}

// handleGetBinding returns one binding with its step labels.
func (s *Server) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, err := s.registry.GetBinding(name)
	if err != nil {
		s.writeBindingError(w, err)
		return
	}

	lists := stepLists(b)
	detail := bindingDetail{
		bindingSummary: summarise(b),
		DelayBefore:    b.DelayBefore,
		DelayAfter:     b.DelayAfter,
		Lists:          make([][]string, 0, len(lists)),
	}
	for _, list := range lists {
		labels := make([]string, 0, len(list))
		for _, step := range list {
			labels = append(labels, stepLabel(step))
		}
		detail.Lists = append(detail.Lists, labels)
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleTriggerBinding runs a binding by name and waits for it to finish.
func (s *Server) handleTriggerBinding(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.respondTrigger(r.Context(), w, name, func(ctx context.Context) (string, error) {
		return s.triggers.Trigger(ctx, name, trigger.SourceAPI)
	})
}

// handleTriggerShortCut runs the binding attached to a key combination.
// The combination travels in the body because it contains '+'.
func (s *Server) handleTriggerShortCut(w http.ResponseWriter, r *http.Request) {
	var req shortCutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ShortCut == "" {
		writeBadRequest(w, "shortcut is required")
		return
	}
	s.respondTrigger(r.Context(), w, req.ShortCut, func(ctx context.Context) (string, error) {
		return s.triggers.TriggerShortCut(ctx, req.ShortCut, trigger.SourceAPI)
	})
}

func (s *Server) respondTrigger(ctx context.Context, w http.ResponseWriter, name string, run func(context.Context) (string, error)) {
	id, err := run(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, triggerResponse{
			ExecutionID: id,
			Binding:     name,
			Status:      trigger.StatusCompleted,
		})
	case id == "":
		s.writeBindingError(w, err)
	default:
		// The binding ran and failed part way; the execution id still
		// identifies its audit entry.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":       http.StatusBadGateway,
			"code":         ErrCodeTriggerFailed,
			"message":      err.Error(),
			"execution_id": id,
		})
	}
}

// handleReloadBindings re-reads the bindings file.
func (s *Server) handleReloadBindings(w http.ResponseWriter, r *http.Request) {
	if err := s.triggers.Reload(r.Context(), trigger.SourceAPI); err != nil {
		if errors.Is(err, trigger.ErrNoReloader) {
			writeUnavailable(w, "reload not configured")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	table, err := s.triggers.Table()
	if err != nil {
		writeUnavailable(w, "bindings not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"bindings": len(table.Bindings),
	})
}

// writeBindingError maps lookup failures onto HTTP statuses.
func (s *Server) writeBindingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, binding.ErrBindingNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, binding.ErrNotLoaded), errors.Is(err, trigger.ErrNotReady):
		writeUnavailable(w, "bindings not loaded")
	default:
		s.logger.Error("binding lookup failed", "error", err)
		writeInternalError(w, "binding lookup failed")
	}
}
