package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/infra/auth"
	"github.com/arcaneos/archon-runtime/internal/prompt"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, http.StatusNotImplemented, "token issuing is not configured on this runtime")
		return
	}

	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.issuer.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	// A dispatch may block on a human decision far longer than the
	// server's write deadline (queue TTL, or an unbounded terminal
	// prompt). Lift the deadline for this response so the envelope still
	// reaches the agent after the operator answers.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Warn("cannot lift write deadline", zap.Error(err))
	}

	var req domain.ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Token scopes bound which tools this caller may even name. The
	// gatekeeper still decides each individual action.
	claims := auth.ClaimsFromContext(r.Context())
	for _, call := range req.Tools {
		if !claims.AllowsTool(call.Name) {
			writeError(w, http.StatusForbidden, "token scope does not cover tool "+call.Name)
			return
		}
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	names := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"tools": names, "count": len(names)})
}

func (s *Server) handleToolHelp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	text, err := s.registry.Help(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "help": text})
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotFound, "runtime is not in queue prompt mode")
		return
	}
	writeJSON(w, http.StatusOK, s.queue.Pending())
}

type decideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

func (s *Server) handleDecidePermission(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotFound, "runtime is not in queue prompt mode")
		return
	}

	id := chi.URLParam(r, "id")
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reviewer := domain.RequesterFromContext(r.Context())
	if err := s.queue.Resolve(id, req.Approved, reviewer); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownRequest):
			writeError(w, http.StatusNotFound, "no pending permission request with that id")
		case errors.Is(err, domain.ErrAlreadyProcessed):
			writeError(w, http.StatusConflict, "permission request already processed")
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	// Other replicas holding the same logical request settle via the
	// broadcast; best effort.
	if s.rdb != nil {
		if err := prompt.PublishDecision(r.Context(), s.rdb, id, req.Approved); err != nil {
			s.logger.Warn("failed to broadcast decision",
				zap.String("request_id", id),
				zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	entries := s.trail.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"count":    len(entries),
		"capacity": s.trail.Capacity(),
	})
}

func (s *Server) handleClearAudit(w http.ResponseWriter, r *http.Request) {
	cleared := s.trail.Clear()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}
