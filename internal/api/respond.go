package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type statusBody struct {
	Status string `json:"status"`
}

type healthBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type idBody struct {
	ID uuid.UUID `json:"id"`
}

// conflictBody names the config the worker acknowledged and the one
// the control plane currently wants.
type conflictBody struct {
	Error        string     `json:"error"`
	Acknowledged uuid.UUID  `json:"acknowledged"`
	Desired      *uuid.UUID `json:"desired"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	s.writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// pathUUID parses the {id} route parameter.
func pathUUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// paginationParams reads limit and offset from the query, clamping
// limit to [1, 1000] with a default of 100 and offset to >= 0.
// Unparseable values fall back to the defaults.
func paginationParams(r *http.Request) (limit, offset int64) {
	limit = defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			limit = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			offset = v
		}
	}
	return limit, offset
}
