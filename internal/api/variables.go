package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/relay-core/internal/audit"
	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/trigger"
	"github.com/nerrad567/relay-core/internal/variables"
)

type setVariableRequest struct {
	Value *binding.Value `json:"value"`
}

// handleListVariables returns every stored variable. Environment values
// are not listed.
func (s *Server) handleListVariables(w http.ResponseWriter, _ *http.Request) {
	if s.vars == nil {
		writeUnavailable(w, "variable store not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"variables": s.vars.Snapshot(),
		"count":     len(s.vars.Names()),
	})
}

// handleGetVariable returns one stored variable.
func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	if s.vars == nil {
		writeUnavailable(w, "variable store not configured")
		return
	}
	name := chi.URLParam(r, "name")
	v, ok := s.vars.Get(name)
	if !ok {
		writeNotFound(w, "variable not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  name,
		"type":  v.Type,
		"value": v,
	})
}

// handleSetVariable stores a string or number.
//
// Request body: {"value": "text"} or {"value": 42}
func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	if s.vars == nil {
		writeUnavailable(w, "variable store not configured")
		return
	}
	name := chi.URLParam(r, "name")

	var req setVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "value must be a string or number")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}
	if _, isToken := req.Value.TokenName(); isToken {
		writeBadRequest(w, "value cannot be a {{token}}")
		return
	}

	err := s.vars.Set(r.Context(), name, *req.Value)
	s.auditVariable(r, name, req.Value, err)
	if err != nil {
		if errors.Is(err, variables.ErrInvalidName) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("variable write failed", "name", name, "error", err)
		writeInternalError(w, "failed to persist variable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  name,
		"type":  req.Value.Type,
		"value": req.Value,
	})
}

// handleDeleteVariable removes a stored variable.
func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	if s.vars == nil {
		writeUnavailable(w, "variable store not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if _, ok := s.vars.Get(name); !ok {
		writeNotFound(w, "variable not found: "+name)
		return
	}
	err := s.vars.Delete(r.Context(), name)
	s.auditVariable(r, name, nil, err)
	if err != nil {
		s.logger.Error("variable delete failed", "name", name, "error", err)
		writeInternalError(w, "failed to persist variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) auditVariable(r *http.Request, name string, value *binding.Value, err error) {
	if s.audit == nil {
		return
	}
	details := map[string]any{"name": name}
	if value != nil {
		details["value"] = value.String()
	} else {
		details["deleted"] = true
	}
	entry := &audit.Entry{
		Action:  audit.ActionVariableSet,
		Source:  trigger.SourceAPI,
		Subject: trigger.SubjectFrom(r.Context()),
		TraceID: uuid.NewString(),
		Outcome: audit.OutcomeOK,
		Details: details,
	}
	if err != nil {
		entry.Outcome = audit.OutcomeError
		entry.Error = err.Error()
	}
	s.audit.Record(entry)
}
