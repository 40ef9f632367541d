package killswitch

/*
Файл coordinator.go — каскадный отзыв доступа по иерархии
TENANT -> USER -> POD -> SESSION.

Дизайн каскада: независимые под-операции (терминация сессии, терминация
pod-а, отзыв токенов) уходят в ограниченный пул воркеров параллельно —
цели дизъюнктны. Итоговый статус считается только после того, как все
под-операции завершились (fan-out/fan-in, без short-circuit). Частичный
отказ — это PARTIAL_FAILURE со списком ошибок, а не откат: недоделанный
kill switch строго безопаснее, чем «атомарный» rollback, оставляющий
все сессии живыми.

Начатый каскад не отменяется. Корректный способ «отменить» — явный
ReinstateAccess после завершения.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/audit"
	"github.com/skillancer/securedesk/internal/connectors"
	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/infra"
)

var (
	// ErrInvalidScopeTarget — target запроса не соответствует scope.
	// Отказ происходит до создания какого-либо состояния (fail-fast).
	ErrInvalidScopeTarget = errors.New("killswitch: target does not match scope")

	// ErrNoActiveRevocation — попытка восстановить не заблокированного пользователя
	ErrNoActiveRevocation = errors.New("killswitch: no active revocation for user")

	// ErrEventNotFound — событие не найдено
	ErrEventNotFound = errors.New("killswitch: event not found")
)

// EventRepository — персистенция событий kill switch и записей отзыва
type EventRepository interface {
	CreateEvent(ctx context.Context, e *domain.KillSwitchEvent) error
	UpdateEvent(ctx context.Context, e *domain.KillSwitchEvent) error
	GetEvent(ctx context.Context, id string) (*domain.KillSwitchEvent, error)
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.KillSwitchEvent, int64, error)
	Stats(ctx context.Context, slaMs int64) (*domain.KillSwitchStats, error)

	CreateRevocation(ctx context.Context, r *domain.RevocationRecord) error
	ActiveRevocation(ctx context.Context, userID string) (*domain.RevocationRecord, error)
	Reinstate(ctx context.Context, userID, reinstatedBy, reason string) (*domain.RevocationRecord, error)
	RevocationHistory(ctx context.Context, userID string) ([]domain.RevocationRecord, error)
}

// RevocationBroadcaster доставляет сигнал блокировки в рантайм
// (Redis SET + Pub/Sub; см. manager.go)
type RevocationBroadcaster interface {
	BroadcastRevocation(ctx context.Context, userID string, revoked bool) error
}

// Coordinator исполняет каскад и ведет жизненный цикл событий
type Coordinator struct {
	repo      EventRepository
	workspace connectors.WorkspaceController
	tokens    connectors.TokenRevoker
	broadcast RevocationBroadcaster
	auditor   audit.Auditor
	cfg       infra.KillSwitchConfig
	metrics   *infra.Metrics
	logger    *zap.Logger
}

func NewCoordinator(
	repo EventRepository,
	workspace connectors.WorkspaceController,
	tokens connectors.TokenRevoker,
	broadcast RevocationBroadcaster,
	auditor audit.Auditor,
	cfg infra.KillSwitchConfig,
	metrics *infra.Metrics,
	logger *zap.Logger,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.SLA <= 0 {
		cfg.SLA = 5 * time.Second
	}
	return &Coordinator{
		repo:      repo,
		workspace: workspace,
		tokens:    tokens,
		broadcast: broadcast,
		auditor:   auditor,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.Named("killswitch"),
	}
}

// validateScope проверяет инвариант запроса: заполнено ровно одно
// target-поле, и оно соответствует scope.
func validateScope(req *domain.KillSwitchRequest) error {
	populated := 0
	for _, id := range []string{req.TenantID, req.UserID, req.PodID, req.SessionID} {
		if id != "" {
			populated++
		}
	}
	if populated != 1 || req.TargetID() == "" {
		return ErrInvalidScopeTarget
	}
	switch req.Scope {
	case domain.ScopeTenant, domain.ScopeUser, domain.ScopePod, domain.ScopeSession:
		return nil
	}
	return ErrInvalidScopeTarget
}

// accumulator собирает исходы под-операций каскада.
// Явный result-тип вместо исключений делает путь PARTIAL_FAILURE
// первоклассным тестируемым потоком данных.
type accumulator struct {
	mu       sync.Mutex
	sessions int
	pods     int
	tokens   int
	attempts int
	errors   []domain.TargetError
}

func (a *accumulator) ok(kind string, tokens int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	switch kind {
	case "session":
		a.sessions++
	case "pod":
		a.pods++
	case "tokens":
		a.tokens += tokens
	}
}

func (a *accumulator) fail(kind, id string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	a.errors = append(a.errors, domain.TargetError{TargetKind: kind, TargetID: id, Message: err.Error()})
}

// status сводит накопленные исходы к одному статусу события
func (a *accumulator) status() domain.KillSwitchStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case len(a.errors) == 0:
		return domain.StatusCompleted
	case len(a.errors) == a.attempts:
		// Ни одна под-операция не прошла — каскад ничего не сдержал
		return domain.StatusFailed
	default:
		return domain.StatusPartialFailure
	}
}

// Execute запускает каскад. Статус события: PENDING -> IN_PROGRESS ->
// {COMPLETED, PARTIAL_FAILURE, FAILED}; терминальные статусы неизменяемы.
func (c *Coordinator) Execute(ctx context.Context, req domain.KillSwitchRequest) (*domain.KillSwitchResult, error) {
	// 1. Fail-fast валидация до любых side effects
	if err := validateScope(&req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	event := &domain.KillSwitchEvent{
		ID:          uuid.New().String(),
		Scope:       req.Scope,
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		PodID:       req.PodID,
		SessionID:   req.SessionID,
		Reason:      req.Reason,
		TriggeredBy: req.TriggeredBy,
		Status:      domain.StatusPending,
		Details:     req.Details,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.repo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create kill switch event: %w", err)
	}

	event.Status = domain.StatusInProgress
	event.UpdatedAt = time.Now().UTC()
	if err := c.repo.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("transition event to IN_PROGRESS: %w", err)
	}

	c.logger.Warn("kill switch engaged",
		zap.String("event_id", event.ID),
		zap.String("scope", string(req.Scope)),
		zap.String("target", req.TargetID()),
		zap.String("reason", string(req.Reason)),
		zap.String("triggered_by", req.TriggeredBy))

	// 2. Каскад. Начатый IN_PROGRESS не отменяется — считаем до конца.
	start := time.Now()
	acc := &accumulator{}
	c.cascade(ctx, &req, event.ID, acc)

	// 3. Fan-in: итоговый статус только после всех под-операций
	elapsed := time.Since(start)
	event.Status = acc.status()
	event.SessionsTerminated = acc.sessions
	event.PodsTerminated = acc.pods
	event.TokensRevoked = acc.tokens
	event.ExecutionTimeMs = elapsed.Milliseconds()
	event.Errors = acc.errors
	event.UpdatedAt = time.Now().UTC()

	if err := c.repo.UpdateEvent(ctx, event); err != nil {
		// Каскад УЖЕ исполнен: потеря финальной записи — проблема аудита, не каскада
		c.logger.Error("failed to persist final event state",
			zap.String("event_id", event.ID), zap.Error(err))
	}

	c.metrics.KillSwitchTotal.WithLabelValues(string(req.Scope), string(event.Status)).Inc()
	c.metrics.KillSwitchDuration.WithLabelValues(string(req.Scope)).Observe(elapsed.Seconds())
	if elapsed > c.cfg.SLA {
		// SLA-превышение — статистика для разбора, не отказ
		c.metrics.SLABreachesTotal.Inc()
		c.logger.Warn("kill switch SLA breached",
			zap.String("event_id", event.ID), zap.Duration("elapsed", elapsed))
	}

	c.auditor.Log(audit.Event{
		ID:         uuid.New().String(),
		Actor:      req.TriggeredBy,
		Action:     audit.ActionKillSwitch,
		Scope:      string(req.Scope),
		TargetID:   req.TargetID(),
		Status:     string(event.Status),
		DurationMs: event.ExecutionTimeMs,
		Details:    map[string]any{"reason": req.Reason, "errors": len(acc.errors)},
	})

	return &domain.KillSwitchResult{
		EventID:            event.ID,
		Status:             event.Status,
		SessionsTerminated: acc.sessions,
		PodsTerminated:     acc.pods,
		TokensRevoked:      acc.tokens,
		ExecutionTimeMs:    event.ExecutionTimeMs,
		Errors:             acc.errors,
	}, nil
}

// cascade разводит запрос по scope-специфичным веткам
func (c *Coordinator) cascade(ctx context.Context, req *domain.KillSwitchRequest, eventID string, acc *accumulator) {
	switch req.Scope {
	case domain.ScopeTenant:
		c.cascadeEnumerated(ctx, connectors.ByTenant, req.TenantID, acc)
		c.revokeTenantTokens(ctx, req.TenantID, acc)

	case domain.ScopeUser:
		c.cascadeEnumerated(ctx, connectors.ByUser, req.UserID, acc)
		c.revokeUserTokens(ctx, req.UserID, acc)
		c.recordRevocation(ctx, req, eventID, acc)

	case domain.ScopePod:
		// Токены POD-scope — это токены его сессий
		sessions := c.cascadeEnumerated(ctx, connectors.ByPod, req.PodID, acc)
		c.revokeSessionTokens(ctx, sessions, acc)
		if err := c.workspace.TerminatePod(ctx, req.PodID); err != nil {
			acc.fail("pod", req.PodID, err)
		} else {
			acc.ok("pod", 0)
		}

	case domain.ScopeSession:
		if err := c.workspace.TerminateSession(ctx, req.SessionID); err != nil {
			acc.fail("session", req.SessionID, err)
		} else {
			acc.ok("session", 0)
		}
		if n, err := c.tokens.RevokeSessionTokens(ctx, req.SessionID); err != nil {
			acc.fail("tokens", req.SessionID, err)
		} else {
			acc.ok("tokens", n)
		}
	}
}

// cascadeEnumerated перечисляет активные pods/sessions области и завершает их
// пулом воркеров. Терминация уже завершенной цели — no-op на стороне
// оркестратора, поэтому повторный каскад идемпотентен.
// Возвращает перечисленные сессии: POD-scope отзывает их токены.
func (c *Coordinator) cascadeEnumerated(ctx context.Context, scope connectors.TargetScope, id string, acc *accumulator) []string {
	sessions, err := c.workspace.ListActiveSessions(ctx, scope, id)
	if err != nil {
		acc.fail("session", id, fmt.Errorf("enumerate sessions: %w", err))
	}
	var pods []string
	if scope != connectors.ByPod {
		pods, err = c.workspace.ListActivePods(ctx, scope, id)
		if err != nil {
			acc.fail("pod", id, fmt.Errorf("enumerate pods: %w", err))
		}
	}

	c.fanOut(ctx, "session", sessions, acc, c.workspace.TerminateSession)
	c.fanOut(ctx, "pod", pods, acc, c.workspace.TerminatePod)
	return sessions
}

// fanOut — ограниченный пул воркеров по дизъюнктным целям.
// Исход каждой цели фиксируется независимо; пул ждет всех (fan-in).
func (c *Coordinator) fanOut(ctx context.Context, kind string, ids []string, acc *accumulator, terminate func(context.Context, string) error) {
	if len(ids) == 0 {
		return
	}
	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(targetID string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := terminate(ctx, targetID); err != nil {
				acc.fail(kind, targetID, err)
			} else {
				acc.ok(kind, 0)
			}
		}(id)
	}
	wg.Wait()
}

func (c *Coordinator) revokeUserTokens(ctx context.Context, userID string, acc *accumulator) {
	if n, err := c.tokens.RevokeUserTokens(ctx, userID); err != nil {
		acc.fail("tokens", userID, err)
	} else {
		acc.ok("tokens", n)
	}
}

func (c *Coordinator) revokeSessionTokens(ctx context.Context, sessions []string, acc *accumulator) {
	if len(sessions) == 0 {
		return
	}
	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	for _, sessionID := range sessions {
		wg.Add(1)
		sem <- struct{}{}
		go func(sid string) {
			defer wg.Done()
			defer func() { <-sem }()
			if n, err := c.tokens.RevokeSessionTokens(ctx, sid); err != nil {
				acc.fail("tokens", sid, err)
			} else {
				acc.ok("tokens", n)
			}
		}(sessionID)
	}
	wg.Wait()
}

func (c *Coordinator) revokeTenantTokens(ctx context.Context, tenantID string, acc *accumulator) {
	users, err := c.tokens.ListTenantUsers(ctx, tenantID)
	if err != nil {
		acc.fail("tokens", tenantID, fmt.Errorf("enumerate tenant users: %w", err))
		return
	}
	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	for _, userID := range users {
		wg.Add(1)
		sem <- struct{}{}
		go func(uid string) {
			defer wg.Done()
			defer func() { <-sem }()
			c.revokeUserTokens(ctx, uid, acc)
		}(userID)
	}
	wg.Wait()
}

// recordRevocation создает (или продлевает) запись об отзыве для USER scope
// и транслирует сигнал блокировки в рантайм.
func (c *Coordinator) recordRevocation(ctx context.Context, req *domain.KillSwitchRequest, eventID string, acc *accumulator) {
	existing, err := c.repo.ActiveRevocation(ctx, req.UserID)
	if err != nil {
		acc.fail("revocation", req.UserID, err)
		return
	}
	if existing == nil {
		rec := &domain.RevocationRecord{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			EventID:   eventID,
			RevokedBy: req.TriggeredBy,
			Reason:    req.Reason,
			Scope:     req.Scope,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}
		if err := c.repo.CreateRevocation(ctx, rec); err != nil {
			acc.fail("revocation", req.UserID, err)
			return
		}
		// Созданная запись — полноценная под-операция каскада: активный
		// отзыв не может ссылаться на FAILED событие
		acc.ok("revocation", 0)
	}
	// Уже активная запись не дублируется: повторный kill switch идемпотентен

	if err := c.broadcast.BroadcastRevocation(ctx, req.UserID, true); err != nil {
		// Сигнал best-effort: состояние в БД первично, кэши догонятся через warmup
		c.logger.Warn("revocation signal delivery failed",
			zap.String("user_id", req.UserID), zap.Error(err))
	}
}

// IsAccessBlocked — заблокирован ли пользователь активной записью отзыва
func (c *Coordinator) IsAccessBlocked(ctx context.Context, userID string) (*domain.BlockStatus, error) {
	rec, err := c.repo.ActiveRevocation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &domain.BlockStatus{Blocked: false}, nil
	}
	blockedAt := rec.CreatedAt
	return &domain.BlockStatus{
		Blocked:   true,
		Reason:    rec.Reason,
		BlockedAt: &blockedAt,
		EventID:   rec.EventID,
	}, nil
}

// ReinstateRequest — явное восстановление доступа оператором
type ReinstateRequest struct {
	UserID       string `json:"user_id"`
	ReinstatedBy string `json:"reinstated_by"`
	Reason       string `json:"reason"`
}

// ReinstateAccess переводит активную запись отзыва в неактивную.
// История не удаляется никогда — запись сама по себе улика аудита.
func (c *Coordinator) ReinstateAccess(ctx context.Context, req ReinstateRequest) error {
	rec, err := c.repo.Reinstate(ctx, req.UserID, req.ReinstatedBy, req.Reason)
	if err != nil {
		return err
	}

	if err := c.broadcast.BroadcastRevocation(ctx, req.UserID, false); err != nil {
		c.logger.Warn("reinstatement signal delivery failed",
			zap.String("user_id", req.UserID), zap.Error(err))
	}

	c.auditor.Log(audit.Event{
		ID:       uuid.New().String(),
		Actor:    req.ReinstatedBy,
		Action:   audit.ActionReinstatement,
		Scope:    string(rec.Scope),
		TargetID: req.UserID,
		Status:   "SUCCESS",
		Details:  map[string]any{"reason": req.Reason},
	})

	c.logger.Info("access reinstated",
		zap.String("user_id", req.UserID),
		zap.String("reinstated_by", req.ReinstatedBy))
	return nil
}

// GetEvent возвращает событие по ID
func (c *Coordinator) GetEvent(ctx context.Context, id string) (*domain.KillSwitchEvent, error) {
	return c.repo.GetEvent(ctx, id)
}

// ListEvents — выборка событий с фильтром
func (c *Coordinator) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.KillSwitchEvent, int64, error) {
	return c.repo.ListEvents(ctx, f)
}

// GetRevocationHistory — полный след по пользователю, активные и нет
func (c *Coordinator) GetRevocationHistory(ctx context.Context, userID string) ([]domain.RevocationRecord, error) {
	return c.repo.RevocationHistory(ctx, userID)
}

// GetStatistics — сводка для дашборда, включая SLA-превышения
func (c *Coordinator) GetStatistics(ctx context.Context) (*domain.KillSwitchStats, error) {
	return c.repo.Stats(ctx, c.cfg.SLA.Milliseconds())
}
