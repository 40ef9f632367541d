package policy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/infra"
)

type PolicyRepository interface {
	GetAllPolicies(ctx context.Context) ([]domain.SecurityPolicy, error)
}

// MemoCache — in-memory кэш политик изоляции. Control Plane владеет
// записями в Postgres; рантайм читает только из памяти (hot path),
// а синхронизация идет через холодную загрузку + Redis pub/sub сигнал.
type MemoCache struct {
	mu sync.RWMutex
	// Кэш: tenant_id -> SecurityPolicy ("*" — глобальная)
	policies map[string]domain.SecurityPolicy

	repo   PolicyRepository // Используется только для Refresh()
	rdb    *redis.Client
	logger *zap.Logger
}

func NewMemoCache(repo PolicyRepository, rdb *redis.Client, logger *zap.Logger) *MemoCache {
	return &MemoCache{
		policies: make(map[string]domain.SecurityPolicy),
		repo:     repo,
		rdb:      rdb,
		logger:   logger.Named("policy"),
	}
}

// GetPolicy работает только с RAM, в Postgres не ходит.
// Отсутствие записи не ослабляет изоляцию: Effective() на nil
// возвращает максимально строгий режим (Default Deny, Zero Trust).
func (c *MemoCache) GetPolicy(tenantID string) domain.SecurityPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// 1. Сначала ищем персональную политику арендатора
	if p, ok := c.policies[tenantID]; ok {
		return p.Effective()
	}

	// 2. Если нет — глобальная политика (wildcard)
	if p, ok := c.policies["*"]; ok {
		return p.Effective()
	}

	// 3. Ничего не нашли — строгий дефолт
	var none *domain.SecurityPolicy
	return none.Effective()
}

// Refresh выполняет холодную загрузку всех политик из PostgreSQL в память
func (c *MemoCache) Refresh(ctx context.Context) error {
	policiesDb, err := c.repo.GetAllPolicies(ctx)
	if err != nil {
		return err
	}

	newPolicies := make(map[string]domain.SecurityPolicy)
	for _, p := range policiesDb {
		newPolicies[p.TenantID] = p
	}

	c.mu.Lock()
	c.policies = newPolicies
	c.mu.Unlock()

	c.logger.Info("policy cache refreshed", zap.Int("count", len(newPolicies)))
	return nil
}

// StartListener подписывается на сигнал обновления политик.
// Payload сообщения — tenant_id; кэш перечитывается целиком,
// инкрементальная инвалидация не стоит своей сложности.
func (c *MemoCache) StartListener(ctx context.Context) {
	pubsub := c.rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)

	go func() {
		// Closure: после reconnect закрыть нужно актуальную подписку
		defer func() { pubsub.Close() }()
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					// Канал закрыт (reconnect). Старая подписка закрывается
					// явно, иначе каждый reconnect течет соединением;
					// из БД перечитываем, чтобы не работать на устаревшем снимке.
					pubsub.Close()
					time.Sleep(time.Second)
					if err := c.Refresh(ctx); err != nil {
						c.logger.Error("policy resync after reconnect failed", zap.Error(err))
					}
					pubsub = c.rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)
					ch = pubsub.Channel()
					continue
				}

				tenantID := strings.TrimSpace(msg.Payload)
				if err := c.Refresh(ctx); err != nil {
					c.logger.Error("policy refresh failed", zap.String("tenant_id", tenantID), zap.Error(err))
					continue
				}
				c.logger.Info("policy update applied", zap.String("tenant_id", tenantID))
			}
		}
	}()
}
