package killswitch

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/infra"
)

// RevokedUserCache — потокобезопасный L1-кэш заблокированных пользователей.
// Hot path (middleware, шлюзы сессий) обращается только к памяти;
// Redis SET — источник состояния для прогрева, Pub/Sub — доставка изменений.
type RevokedUserCache struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewRevokedUserCache(rdb *redis.Client, logger *zap.Logger) *RevokedUserCache {
	return &RevokedUserCache{
		revoked: make(map[string]struct{}),
		rdb:     rdb,
		logger:  logger.Named("revoked-cache"),
	}
}

// Init загружает текущее состояние блокировок при старте сервиса
func (m *RevokedUserCache) Init(ctx context.Context) error {
	users, err := m.rdb.SMembers(ctx, infra.RedisKeyRevokedUsers).Result()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.revoked = make(map[string]struct{}, len(users))
	for _, id := range users {
		m.revoked[id] = struct{}{}
	}
	m.mu.Unlock()
	return nil
}

// IsRevoked — мгновенная проверка по памяти
func (m *RevokedUserCache) IsRevoked(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[userID]
	return ok
}

func (m *RevokedUserCache) set(userID string, revoked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revoked {
		m.revoked[userID] = struct{}{}
	} else {
		delete(m.revoked, userID)
	}
}

// StartListener — «живучая» подписка на сигналы блокировки.
// Обрабатывает переподключения: при каждом успешном коннекте кэш
// синхронизируется заново через Init (события могли быть пропущены).
func (m *RevokedUserCache) StartListener(ctx context.Context) {
	for {
		pubsub := m.rdb.Subscribe(ctx, infra.RedisChanKillSwitch)

		if _, err := pubsub.Receive(ctx); err != nil {
			m.logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanKillSwitch), zap.Error(err))
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := m.Init(ctx); err != nil {
			m.logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Формат сигнала: "user_id:true|false"
				parts := strings.Split(msg.Payload, ":")
				if len(parts) != 2 {
					m.logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}
				revoked := parts[1] == "true" || parts[1] == "on"
				m.set(parts[0], revoked)

				m.logger.Info("revocation signal applied",
					zap.String("user_id", parts[0]), zap.Bool("revoked", revoked))
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}

// Middleware отсекает запросы заблокированных пользователей на периметре
func (m *RevokedUserCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if m.IsRevoked(userID) {
			m.logger.Warn("intercepted request from revoked user", zap.String("user_id", userID))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "access_revoked", "reason": "security_kill_switch"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RedisBroadcaster доставляет решение координатора в рантайм:
// SET — для прогрева новых инстансов, Pub/Sub — для живых.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) BroadcastRevocation(ctx context.Context, userID string, revoked bool) error {
	pipe := b.rdb.Pipeline()
	if revoked {
		pipe.SAdd(ctx, infra.RedisKeyRevokedUsers, userID)
		pipe.Publish(ctx, infra.RedisChanKillSwitch, userID+":true")
	} else {
		pipe.SRem(ctx, infra.RedisKeyRevokedUsers, userID)
		pipe.Publish(ctx, infra.RedisChanKillSwitch, userID+":false")
	}
	_, err := pipe.Exec(ctx)
	return err
}
