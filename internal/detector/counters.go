package detector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/infra"
)

// RedisCounterStore — оконные счетчики нарушений поверх Redis.
// INCR и EXPIRE уходят одним pipeline: инкремент атомарен при любом числе
// конкурентных репортеров, окно ограничено TTL (24h сессия / 7d арендатор).
type RedisCounterStore struct {
	rdb *redis.Client
}

func NewRedisCounterStore(rdb *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func (s *RedisCounterStore) IncrementSession(ctx context.Context, sessionID string) (int64, error) {
	return s.increment(ctx, infra.SessionViolationKey(sessionID), infra.SessionCounterTTL)
}

func (s *RedisCounterStore) IncrementTenant(ctx context.Context, tenantID string) (int64, error) {
	key := infra.TenantViolationKey(tenantID, time.Now())
	return s.increment(ctx, key, infra.TenantCounterTTL)
}

func (s *RedisCounterStore) SessionCount(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.rdb.Get(ctx, infra.SessionViolationKey(sessionID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisCounterStore) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RedisAlertPublisher транслирует HIGH/CRITICAL нарушения в Pub/Sub канал
type RedisAlertPublisher struct {
	rdb *redis.Client
}

func NewRedisAlertPublisher(rdb *redis.Client) *RedisAlertPublisher {
	return &RedisAlertPublisher{rdb: rdb}
}

func (p *RedisAlertPublisher) PublishAlert(ctx context.Context, v domain.SecurityViolation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, infra.RedisChanAlerts, payload).Err()
}
