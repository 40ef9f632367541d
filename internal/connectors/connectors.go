package connectors

/*
Внешние коллабораторы подсистемы containment. Оркестрация рабочих столов
(pods/sessions) и выпуск токенов живут в соседних сервисах платформы;
здесь — только контракты, которые потребляет каскад kill switch.

Терминация уже завершенной цели обязана быть no-op, не ошибкой:
повторный kill switch по тому же scope идемпотентен.
*/

import (
	"context"
	"fmt"
	"time"
)

// WorkspaceController — перечисление и завершение активных pods/sessions
type WorkspaceController interface {
	ListActiveSessions(ctx context.Context, scope TargetScope, id string) ([]string, error)
	ListActivePods(ctx context.Context, scope TargetScope, id string) ([]string, error)
	TerminateSession(ctx context.Context, sessionID string) error
	TerminatePod(ctx context.Context, podID string) error
}

// TokenRevoker — отзыв выпущенных токенов доступа
type TokenRevoker interface {
	// RevokeUserTokens возвращает число отозванных токенов
	RevokeUserTokens(ctx context.Context, userID string) (int, error)
	RevokeSessionTokens(ctx context.Context, sessionID string) (int, error)
	// ListTenantUsers нужен каскаду TENANT для отзыва токенов всех пользователей
	ListTenantUsers(ctx context.Context, tenantID string) ([]string, error)
}

// TargetScope — область перечисления целей
type TargetScope string

const (
	ByTenant TargetScope = "tenant"
	ByUser   TargetScope = "user"
	ByPod    TargetScope = "pod"
)

// ThrottleError — внешний сервис попросил замедлиться (считан Retry-After)
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
