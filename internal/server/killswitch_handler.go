package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/killswitch"
)

type KillSwitchHandler struct {
	coordinator *killswitch.Coordinator
}

func NewKillSwitchHandler(c *killswitch.Coordinator) *KillSwitchHandler {
	return &KillSwitchHandler{coordinator: c}
}

// Execute запускает каскад отзыва доступа.
// POST /v1/killswitch/execute
func (h *KillSwitchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req domain.KillSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TriggeredBy == "" {
		http.Error(w, "triggered_by is required", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.Execute(r.Context(), req)
	if err != nil {
		if errors.Is(err, killswitch.ErrInvalidScopeTarget) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Kill switch execution failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// PARTIAL_FAILURE — тоже успешный HTTP-ответ: каскад отработал,
	// детали отказов внутри result.Errors
	writeJSON(w, http.StatusOK, result)
}

// GetEvent возвращает одно событие по ID.
// GET /v1/killswitch/events/{id}
func (h *KillSwitchHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := h.coordinator.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, killswitch.ErrEventNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ListEvents — страница событий для консоли ИБ.
// GET /v1/killswitch/events?scope=&status=&tenant_id=&since=&limit=&offset=
func (h *KillSwitchHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.EventFilter{
		Scope:    domain.KillSwitchScope(q.Get("scope")),
		Status:   domain.KillSwitchStatus(q.Get("status")),
		TenantID: q.Get("tenant_id"),
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		f.Since = t
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.coordinator.ListEvents(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

// IsBlocked отвечает, закрыт ли доступ пользователю.
// GET /v1/killswitch/users/{userId}/blocked
func (h *KillSwitchHandler) IsBlocked(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	status, err := h.coordinator.IsAccessBlocked(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Reinstate возвращает пользователю доступ (logical delete записи отзыва).
// POST /v1/killswitch/users/{userId}/reinstate
func (h *KillSwitchHandler) Reinstate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var body struct {
		ReinstatedBy string `json:"reinstated_by"`
		Reason       string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ReinstatedBy == "" {
		http.Error(w, "reinstated_by is required", http.StatusBadRequest)
		return
	}

	err := h.coordinator.ReinstateAccess(r.Context(), killswitch.ReinstateRequest{
		UserID:       userID,
		ReinstatedBy: body.ReinstatedBy,
		Reason:       body.Reason,
	})
	if err != nil {
		if errors.Is(err, killswitch.ErrNoActiveRevocation) {
			http.Error(w, "No active revocation for user", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevocationHistory — вся история отзывов пользователя, включая погашенные.
// GET /v1/killswitch/users/{userId}/revocations
func (h *KillSwitchHandler) RevocationHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	records, err := h.coordinator.GetRevocationHistory(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Stats — сводка для дашборда ИБ.
// GET /v1/killswitch/stats
func (h *KillSwitchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.coordinator.GetStatistics(r.Context())
	if err != nil {
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
