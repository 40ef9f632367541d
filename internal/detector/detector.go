package detector

/*
Файл detector.go — компонент реагирования на события безопасности из
мониторимых сессий. Классифицирует нарушение, выбирает меру, персистит
запись (append-only) и ведет оконные счетчики эскалации.

Семантика отказов: нарушение, которое не удалось durably записать,
не считается обработанным — ошибка персистенции фатальна и уходит
вызывающему. Отказ side-effect действия (терминация, инцидент) наоборот
не откатывает уже записанное нарушение: best-effort, логируется,
синхронно не ретраится.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/infra"
)

// ErrViolationNotFound — запись не найдена при review/чтении
var ErrViolationNotFound = errors.New("detector: violation not found")

// Классификационные таблицы. Осознанно явные map-ы, а не switch:
// новый тип нарушения нельзя добавить без явного policy-решения здесь.
var severityByType = map[domain.ViolationType]domain.Severity{
	domain.ViolationPolicyBypass:   domain.SeverityCritical,
	domain.ViolationSuspicious:     domain.SeverityCritical,
	domain.ViolationScreenCapture:  domain.SeverityHigh,
	domain.ViolationFileDownload:   domain.SeverityHigh,
	domain.ViolationClipboardCopy:  domain.SeverityMedium,
	domain.ViolationUSBDevice:      domain.SeverityMedium,
	domain.ViolationNetworkAccess:  domain.SeverityMedium,
	domain.ViolationIdleTimeout:    domain.SeverityLow,
	domain.ViolationSessionTimeout: domain.SeverityLow,
	domain.ViolationPrintAttempt:   domain.SeverityLow,
	domain.ViolationFileUpload:     domain.SeverityLow,
}

var actionByType = map[domain.ViolationType]domain.ViolationAction{
	domain.ViolationClipboardCopy:  domain.ActionBlocked,
	domain.ViolationScreenCapture:  domain.ActionBlocked,
	domain.ViolationFileDownload:   domain.ActionBlocked,
	domain.ViolationFileUpload:     domain.ActionBlocked,
	domain.ViolationUSBDevice:      domain.ActionBlocked,
	domain.ViolationNetworkAccess:  domain.ActionBlocked,
	domain.ViolationPrintAttempt:   domain.ActionBlocked,
	domain.ViolationIdleTimeout:    domain.ActionSessionTerminated,
	domain.ViolationSessionTimeout: domain.ActionSessionTerminated,
}

// criticalTypes — типы, всегда открывающие инцидент ИБ
var criticalTypes = map[domain.ViolationType]struct{}{
	domain.ViolationPolicyBypass: {},
	domain.ViolationSuspicious:   {},
}

var severityRank = map[domain.Severity]int{
	domain.SeverityLow:      0,
	domain.SeverityMedium:   1,
	domain.SeverityHigh:     2,
	domain.SeverityCritical: 3,
}

// ViolationRepository — долговременное хранилище записей о нарушениях
type ViolationRepository interface {
	Create(ctx context.Context, v *domain.SecurityViolation) error
	Review(ctx context.Context, id, reviewer, notes string) (*domain.SecurityViolation, error)
	List(ctx context.Context, f domain.ViolationFilter) ([]domain.SecurityViolation, int64, error)
	Summary(ctx context.Context, tenantID string, since time.Time) (*domain.ViolationSummary, error)
}

// CounterStore — атомарные оконные счетчики (Redis INCR+EXPIRE).
// Plain read-modify-write здесь небезопасен: сессии репортят конкурентно.
type CounterStore interface {
	IncrementSession(ctx context.Context, sessionID string) (int64, error)
	IncrementTenant(ctx context.Context, tenantID string) (int64, error)
	SessionCount(ctx context.Context, sessionID string) (int64, error)
}

// AlertPublisher — доставка алертов HIGH/CRITICAL внешним подписчикам
type AlertPublisher interface {
	PublishAlert(ctx context.Context, v domain.SecurityViolation) error
}

// Enforcer — исполнение мер реагирования. Реализуется координатором
// kill switch; детектор знает только контракт.
type Enforcer interface {
	TerminateSession(ctx context.Context, sessionID, tenantID string) error
	SuspendUser(ctx context.Context, userID, tenantID string) error
	OpenIncident(ctx context.Context, v domain.SecurityViolation) error
	WarnSession(ctx context.Context, sessionID string) error
}

// RecordViolationInput — входное событие от агента сессии
type RecordViolationInput struct {
	SessionID     string              `json:"session_id"`
	TenantID      string              `json:"tenant_id"`
	UserID        string              `json:"user_id,omitempty"` // Нужен эскалации до USER_SUSPENDED
	ViolationType domain.ViolationType `json:"violation_type"`
	Severity      domain.Severity     `json:"severity,omitempty"` // Переопределяет таблицу
	Description   string              `json:"description"`
	Details       map[string]any      `json:"details,omitempty"`
	SourceIP      string              `json:"source_ip,omitempty"`
	UserAgent     string              `json:"user_agent,omitempty"`
}

// Detector классифицирует и эскалирует нарушения
type Detector struct {
	repo     ViolationRepository
	counters CounterStore
	alerts   AlertPublisher
	enforcer Enforcer
	risk     *RiskAnalyzer
	cfg      infra.DetectorConfig
	metrics  *infra.Metrics
	logger   *zap.Logger
}

// SetRiskAnalyzer подключает объемный анализ риска (опционально)
func (d *Detector) SetRiskAnalyzer(a *RiskAnalyzer) { d.risk = a }

func NewDetector(
	repo ViolationRepository,
	counters CounterStore,
	alerts AlertPublisher,
	enforcer Enforcer,
	cfg infra.DetectorConfig,
	metrics *infra.Metrics,
	logger *zap.Logger,
) *Detector {
	return &Detector{
		repo:     repo,
		counters: counters,
		alerts:   alerts,
		enforcer: enforcer,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("detector"),
	}
}

// DetermineSeverity — чистая статическая классификация типа.
// Неизвестный тип трактуется как MEDIUM.
func DetermineSeverity(t domain.ViolationType) domain.Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return domain.SeverityMedium
}

// DetermineAction — чистая функция (тип, серьезность) -> мера.
// Порядок правил: критичные типы -> инцидент; серьезность CRITICAL ->
// терминация; иначе таблица по типу; по умолчанию LOGGED.
func DetermineAction(t domain.ViolationType, severity domain.Severity) domain.ViolationAction {
	if _, critical := criticalTypes[t]; critical {
		return domain.ActionIncidentCreated
	}
	if severity == domain.SeverityCritical {
		return domain.ActionSessionTerminated
	}
	if a, ok := actionByType[t]; ok {
		return a
	}
	return domain.ActionLogged
}

// thresholdAction сравнивает оконный счетчик с порогами по убыванию строгости:
// самая строгая применимая мера побеждает.
func (d *Detector) thresholdAction(count int64) (domain.ViolationAction, bool) {
	switch {
	case count >= d.cfg.UserSuspendCount:
		return domain.ActionUserSuspended, true
	case count >= d.cfg.SessionTerminateCount:
		return domain.ActionSessionTerminated, true
	case count >= d.cfg.SessionWarningCount:
		return domain.ActionWarned, true
	}
	return "", false
}

// CheckThresholds возвращает меру эскалации для текущего счетчика сессии
func (d *Detector) CheckThresholds(ctx context.Context, sessionID string) (domain.ViolationAction, bool, error) {
	count, err := d.counters.SessionCount(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("threshold check: %w", err)
	}
	action, ok := d.thresholdAction(count)
	return action, ok, nil
}

// RecordViolation — главный вход детектора.
// Порядок шагов фиксирован: classify -> persist -> count -> enforce -> alert.
func (d *Detector) RecordViolation(ctx context.Context, in RecordViolationInput) (*domain.SecurityViolation, error) {
	// 1. Классификация
	severity := in.Severity
	if severity == "" {
		severity = DetermineSeverity(in.ViolationType)
		// Объемный риск поднимает серьезность на ступень сверх таблицы.
		// Явный override от агента не трогаем.
		if d.risk != nil && d.risk.Elevated(in.ViolationType, in.Details) {
			severity = elevate(severity)
		}
	}
	action := DetermineAction(in.ViolationType, severity)

	v := &domain.SecurityViolation{
		ID:            uuid.New().String(),
		SessionID:     in.SessionID,
		TenantID:      in.TenantID,
		ViolationType: in.ViolationType,
		Severity:      severity,
		Description:   in.Description,
		Details:       in.Details,
		Action:        action,
		SourceIP:      in.SourceIP,
		UserAgent:     in.UserAgent,
		CreatedAt:     time.Now().UTC(),
	}

	// 2. Персистенция — фатальна при отказе: незаписанное нарушение
	// нельзя молча считать обработанным
	if err := d.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("persist violation: %w", err)
	}
	d.metrics.ViolationsTotal.WithLabelValues(string(v.ViolationType), string(v.Severity), string(v.Action)).Inc()

	// 3. Атомарные оконные счетчики
	sessionCount, err := d.counters.IncrementSession(ctx, in.SessionID)
	if err != nil {
		// Счетчик — вспомогательный механизм: нарушение уже записано
		d.logger.Error("session counter increment failed",
			zap.String("session_id", in.SessionID), zap.Error(err))
	}
	if _, err := d.counters.IncrementTenant(ctx, in.TenantID); err != nil {
		d.logger.Error("tenant counter increment failed",
			zap.String("tenant_id", in.TenantID), zap.Error(err))
	}

	// 4. Side-effect меры (best-effort, без отката записи)
	d.enforce(ctx, v, in.UserID)

	// 5. Эскалация по порогам: строгая мера от скользящего окна
	if escalation, ok := d.thresholdAction(sessionCount); ok && escalation != v.Action {
		d.escalate(ctx, escalation, v, in.UserID)
	}

	// 6. Алерт для HIGH/CRITICAL
	if severityRank[severity] >= severityRank[domain.SeverityHigh] {
		if err := d.alerts.PublishAlert(ctx, *v); err != nil {
			d.logger.Warn("alert delivery failed",
				zap.String("violation_id", v.ID), zap.Error(err))
		}
	}

	return v, nil
}

// enforce исполняет меру текущего нарушения
func (d *Detector) enforce(ctx context.Context, v *domain.SecurityViolation, userID string) {
	var err error
	switch v.Action {
	case domain.ActionSessionTerminated:
		err = d.enforcer.TerminateSession(ctx, v.SessionID, v.TenantID)
	case domain.ActionUserSuspended:
		err = d.enforcer.SuspendUser(ctx, userID, v.TenantID)
	case domain.ActionIncidentCreated:
		err = d.enforcer.OpenIncident(ctx, *v)
	case domain.ActionWarned:
		err = d.enforcer.WarnSession(ctx, v.SessionID)
	case domain.ActionLogged, domain.ActionBlocked:
		// BLOCKED исполняется на стороне агента сессии, здесь только запись
	}
	if err != nil {
		d.logger.Error("remediation action failed",
			zap.String("violation_id", v.ID),
			zap.String("action", string(v.Action)),
			zap.Error(err))
	}
}

// escalate исполняет пороговую меру поверх уже принятой
func (d *Detector) escalate(ctx context.Context, action domain.ViolationAction, v *domain.SecurityViolation, userID string) {
	d.logger.Warn("violation threshold breached",
		zap.String("session_id", v.SessionID),
		zap.String("escalation", string(action)))

	var err error
	switch action {
	case domain.ActionUserSuspended:
		err = d.enforcer.SuspendUser(ctx, userID, v.TenantID)
	case domain.ActionSessionTerminated:
		err = d.enforcer.TerminateSession(ctx, v.SessionID, v.TenantID)
	case domain.ActionWarned:
		err = d.enforcer.WarnSession(ctx, v.SessionID)
	}
	if err != nil {
		d.logger.Error("threshold escalation failed",
			zap.String("session_id", v.SessionID),
			zap.String("escalation", string(action)),
			zap.Error(err))
	}
}

// ReviewViolation помечает запись разобранной. Единственная разрешенная мутация.
func (d *Detector) ReviewViolation(ctx context.Context, id, reviewer, notes string) (*domain.SecurityViolation, error) {
	v, err := d.repo.Review(ctx, id, reviewer, notes)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListViolations — выборка с фильтром
func (d *Detector) ListViolations(ctx context.Context, f domain.ViolationFilter) ([]domain.SecurityViolation, int64, error) {
	return d.repo.List(ctx, f)
}

// GetViolationSummary — агрегат за окно days
func (d *Detector) GetViolationSummary(ctx context.Context, tenantID string, days int) (*domain.ViolationSummary, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return d.repo.Summary(ctx, tenantID, since)
}
