package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliableWorkspace оборачивает коллабораторов в слой надежности:
// rate limiter -> circuit breaker -> retry с ограниченным таймаутом вызова.
// Каскад kill switch не имеет права зависнуть на внешнем сервисе —
// каждый вызов ограничен по времени, отказ уходит наверх как per-target ошибка.
type ReliableWorkspace struct {
	workspace   WorkspaceController
	tokens      TokenRevoker
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	callTimeout time.Duration
}

func NewReliableWorkspace(workspace WorkspaceController, tokens TokenRevoker, callTimeout time.Duration) *ReliableWorkspace {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "workspace-orchestrator",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}

	return &ReliableWorkspace{
		workspace:   workspace,
		tokens:      tokens,
		cb:          cb,
		limiter:     rate.NewLimiter(rate.Limit(100), 20),
		callTimeout: callTimeout,
	}
}

// do — общий конвейер надежности для одного внешнего вызова
func (w *ReliableWorkspace) do(ctx context.Context, fn func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если оркестратор вернул ThrottleError (считал Retry-After)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// Иначе стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
			defer cancel()
			return fn(tCtx)
		})
		return nil, retryErr
	})
	return err
}

func (w *ReliableWorkspace) ListActiveSessions(ctx context.Context, scope TargetScope, id string) (out []string, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		out, err = w.workspace.ListActiveSessions(ctx, scope, id)
		return err
	})
	return out, err
}

func (w *ReliableWorkspace) ListActivePods(ctx context.Context, scope TargetScope, id string) (out []string, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		out, err = w.workspace.ListActivePods(ctx, scope, id)
		return err
	})
	return out, err
}

func (w *ReliableWorkspace) TerminateSession(ctx context.Context, sessionID string) error {
	return w.do(ctx, func(ctx context.Context) error {
		return w.workspace.TerminateSession(ctx, sessionID)
	})
}

func (w *ReliableWorkspace) TerminatePod(ctx context.Context, podID string) error {
	return w.do(ctx, func(ctx context.Context) error {
		return w.workspace.TerminatePod(ctx, podID)
	})
}

func (w *ReliableWorkspace) RevokeUserTokens(ctx context.Context, userID string) (n int, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		n, err = w.tokens.RevokeUserTokens(ctx, userID)
		return err
	})
	return n, err
}

func (w *ReliableWorkspace) RevokeSessionTokens(ctx context.Context, sessionID string) (n int, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		n, err = w.tokens.RevokeSessionTokens(ctx, sessionID)
		return err
	})
	return n, err
}

func (w *ReliableWorkspace) ListTenantUsers(ctx context.Context, tenantID string) (out []string, err error) {
	err = w.do(ctx, func(ctx context.Context) error {
		out, err = w.tokens.ListTenantUsers(ctx, tenantID)
		return err
	})
	return out, err
}
