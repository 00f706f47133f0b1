package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// maxBodyBytes bounds request bodies; turn inputs are short text.
const maxBodyBytes = 256 * 1024

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("POST /api/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /api/sessions/{id}/audit", s.handleAudit)
	mux.HandleFunc("POST /api/bulk/{jobId}/cancel", s.handleCancelBulk)
	mux.HandleFunc("GET /ws/progress", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": serverVersion(),
		"uptime":  s.uptime(),
	})
}

type createSessionRequest struct {
	Mode       string `json:"mode"`
	CustomerID string `json:"customerId,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	state, err := s.orch.StartSession(r.Context(), domain.Mode(req.Mode), domain.SessionContext{
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		Locale:     req.Locale,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.orch.Session(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.Session(id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.orch.EndSession(id)
	writeJSON(w, http.StatusOK, map[string]any{"ended": true})
}

type turnRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	result, err := s.orch.Turn(r.Context(), r.PathValue("id"), req.Input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.audit.GetSession(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	turns, err := s.audit.ListTurns(r.Context(), id, 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"turns":     turns,
	})
}

func (s *Server) handleCancelBulk(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if !s.proc.Cancel(jobID) {
		writeError(w, http.StatusNotFound, "no running job with id "+jobID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// decodeBody parses a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeDomainError maps engine error types onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		ae *domain.AuthorizationError
		nf *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &ae):
		writeError(w, http.StatusForbidden, ae.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
