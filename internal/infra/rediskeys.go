package infra

import (
	"fmt"
	"time"
)

const (
	// RedisNamespace Базовый префикс для изоляции данных сервиса в Redis
	RedisNamespace = "secdesk"
)

// Ключи состояния
const (
	// RedisKeyRevokedUsers — SET пользователей с активным отзывом доступа
	RedisKeyRevokedUsers = RedisNamespace + ":users:revoked_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanKillSwitch — сигнал отзыва/восстановления: "user_id:true|false"
	RedisChanKillSwitch = RedisNamespace + ":users:kill-switch-signal"

	// RedisChanAlerts — алерты HIGH/CRITICAL нарушений для внешних подписчиков
	RedisChanAlerts = RedisNamespace + ":violations:alerts"

	// RedisChanPolicyUpdate — сигнал инвалидации кэша политик
	RedisChanPolicyUpdate = RedisNamespace + ":policies:update"
)

// TTL оконных счетчиков нарушений
const (
	SessionCounterTTL = 24 * time.Hour
	TenantCounterTTL  = 7 * 24 * time.Hour
)

// SessionViolationKey — оконный счетчик нарушений сессии (TTL 24h)
func SessionViolationKey(sessionID string) string {
	return fmt.Sprintf("%s:violations:session:%s", RedisNamespace, sessionID)
}

// TenantViolationKey — суточный rollup по арендатору (TTL 7d)
func TenantViolationKey(tenantID string, day time.Time) string {
	return fmt.Sprintf("%s:violations:tenant:%s:%s", RedisNamespace, tenantID, day.UTC().Format("2006-01-02"))
}
