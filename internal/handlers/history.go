package handlers

import (
	"net/http"

	"github.com/eldtechnologies/roomcast/internal/models"
)

// HistoryResponse represents the history and find responses.
type HistoryResponse struct {
	Group    string                 `json:"group"`
	Query    string                 `json:"query,omitempty"`
	Messages []models.MessageRecord `json:"messages"`
	Total    int                    `json:"total"`
}

// targetGroup resolves the group to query: the explicit parameter or,
// absent that, the group the session is currently joined to.
func (h *Handler) targetGroup(r *http.Request) string {
	if g := r.URL.Query().Get("group"); g != "" {
		return g
	}
	return h.session.Status().Group
}

// History returns the most recent messages for a group, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	group := h.targetGroup(r)
	if group == "" {
		h.Error(w, http.StatusBadRequest, "group parameter required when not joined")
		return
	}
	limit := queryLimit(r, 50, 500)

	msgs, err := h.log.Recent(r.Context(), group, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if msgs == nil {
		msgs = []models.MessageRecord{}
	}
	h.JSON(w, http.StatusOK, HistoryResponse{Group: group, Messages: msgs, Total: len(msgs)})
}

// Find returns messages whose text contains the query substring,
// case-insensitive, oldest first.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if len(query) > 100 {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	group := h.targetGroup(r)
	if group == "" {
		h.Error(w, http.StatusBadRequest, "group parameter required when not joined")
		return
	}
	limit := queryLimit(r, 20, 100)

	msgs, err := h.log.Search(r.Context(), group, query, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}
	if msgs == nil {
		msgs = []models.MessageRecord{}
	}
	h.JSON(w, http.StatusOK, HistoryResponse{Group: group, Query: query, Messages: msgs, Total: len(msgs)})
}

// OnlineResponse represents the online users response.
type OnlineResponse struct {
	Users []models.OnlineUser `json:"users"`
	Total int                 `json:"total"`
}

// Online returns the users known online in the current group.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	users := h.session.ListOnline()
	if users == nil {
		users = []models.OnlineUser{}
	}
	h.JSON(w, http.StatusOK, OnlineResponse{Users: users, Total: len(users)})
}
