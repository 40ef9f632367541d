package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillancer/securedesk/internal/detector"
	"github.com/skillancer/securedesk/internal/domain"
)

type ViolationHandler struct {
	detector *detector.Detector
}

func NewViolationHandler(d *detector.Detector) *ViolationHandler {
	return &ViolationHandler{detector: d}
}

// Record принимает событие нарушения от агента сессии.
// POST /v1/violations
func (h *ViolationHandler) Record(w http.ResponseWriter, r *http.Request) {
	var in detector.RecordViolationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if in.SessionID == "" || in.TenantID == "" || in.ViolationType == "" {
		http.Error(w, "session_id, tenant_id and violation_type are required", http.StatusBadRequest)
		return
	}

	// SourceIP/UserAgent агент может не заполнять — берем из запроса
	if in.SourceIP == "" {
		in.SourceIP = r.RemoteAddr
	}
	if in.UserAgent == "" {
		in.UserAgent = r.UserAgent()
	}

	v, err := h.detector.RecordViolation(r.Context(), in)
	if err != nil {
		http.Error(w, "Failed to record violation: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Review фиксирует разбор нарушения оператором ИБ.
// POST /v1/violations/{id}/review
func (h *ViolationHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Reviewer string `json:"reviewer"`
		Notes    string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Reviewer == "" {
		http.Error(w, "reviewer is required", http.StatusBadRequest)
		return
	}

	v, err := h.detector.ReviewViolation(r.Context(), id, body.Reviewer, body.Notes)
	if err != nil {
		if errors.Is(err, detector.ErrViolationNotFound) {
			http.Error(w, "Violation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// List возвращает страницу нарушений по фильтрам.
// GET /v1/violations?tenant_id=&session_id=&type=&severity=&since=&limit=&offset=
func (h *ViolationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.ViolationFilter{
		TenantID:  q.Get("tenant_id"),
		SessionID: q.Get("session_id"),
		Type:      domain.ViolationType(q.Get("type")),
		Severity:  domain.Severity(q.Get("severity")),
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

	items, total, err := h.detector.ListViolations(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

// Summary — агрегат по арендатору за окно наблюдения.
// GET /v1/violations/summary?tenant_id=&days=
func (h *ViolationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	s, err := h.detector.GetViolationSummary(r.Context(), tenantID, days)
	if err != nil {
		http.Error(w, "Failed to build summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
