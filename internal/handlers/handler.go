package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/eldtechnologies/roomcast/internal/session"
	"github.com/eldtechnologies/roomcast/internal/store"
)

// Handler contains shared dependencies for all status API handlers.
type Handler struct {
	log     store.MessageLog
	session *session.Session
}

// NewHandler creates a new Handler over the node's log and session.
func NewHandler(log store.MessageLog, sess *session.Session) *Handler {
	return &Handler{log: log, session: sess}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// queryLimit parses the limit query parameter, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
