package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/infra"
	"github.com/skillancer/securedesk/internal/policy"
)

// PolicyStore — персистенция политик (Postgres)
type PolicyStore interface {
	GetPolicyByTenant(ctx context.Context, tenantID string) (*domain.SecurityPolicy, error)
	UpsertPolicy(ctx context.Context, p *domain.SecurityPolicy) error
	DeletePolicy(ctx context.Context, tenantID string) error
}

type PolicyHandler struct {
	store PolicyStore
	cache *policy.MemoCache
	rdb   *redis.Client
}

func NewPolicyHandler(store PolicyStore, cache *policy.MemoCache, rdb *redis.Client) *PolicyHandler {
	return &PolicyHandler{store: store, cache: cache, rdb: rdb}
}

// Get возвращает эффективную политику арендатора (из RAM-кэша)
// GET /v1/policies/{tenantId}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		http.Error(w, "Tenant ID is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.cache.GetPolicy(tenantID))
}

// Upsert создает или обновляет политику и сигналит всем инстансам
// об инвалидации кэша через Redis Pub/Sub.
// PUT /v1/policies
func (h *PolicyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var p domain.SecurityPolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if p.TenantID == "" {
		http.Error(w, "tenant_id is required ('*' for global)", http.StatusBadRequest)
		return
	}

	if err := h.store.UpsertPolicy(r.Context(), &p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.publishUpdate(r.Context(), p.TenantID)
	w.WriteHeader(http.StatusNoContent)
}

// Delete удаляет политику; арендатор падает на строгий дефолт
// DELETE /v1/policies/{tenantId}
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if err := h.store.DeletePolicy(r.Context(), tenantID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.publishUpdate(r.Context(), tenantID)
	w.WriteHeader(http.StatusNoContent)
}

// publishUpdate — best-effort: локальный кэш обновится и без сигнала
// при следующей холодной загрузке
func (h *PolicyHandler) publishUpdate(ctx context.Context, tenantID string) {
	_ = h.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, tenantID).Err()
}
