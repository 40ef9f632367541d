package killswitch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/audit"
	"github.com/skillancer/securedesk/internal/domain"
)

// Enforcer — мост между детектором нарушений и каскадом:
// меры SESSION_TERMINATED / USER_SUSPENDED исполняются как kill switch
// соответствующего scope. Реализует detector.Enforcer.
type Enforcer struct {
	coordinator *Coordinator
	auditor     audit.Auditor
	logger      *zap.Logger
}

func NewEnforcer(coordinator *Coordinator, auditor audit.Auditor, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		coordinator: coordinator,
		auditor:     auditor,
		logger:      logger.Named("enforcer"),
	}
}

func (e *Enforcer) TerminateSession(ctx context.Context, sessionID, tenantID string) error {
	_, err := e.coordinator.Execute(ctx, domain.KillSwitchRequest{
		Scope:       domain.ScopeSession,
		SessionID:   sessionID,
		Reason:      domain.ReasonViolationThreshold,
		TriggeredBy: "violation-detector",
		Details:     map[string]any{"tenant_id": tenantID},
	})
	return err
}

func (e *Enforcer) SuspendUser(ctx context.Context, userID, tenantID string) error {
	if userID == "" {
		// Эскалация до USER требует известного пользователя;
		// событие без user_id фиксируется, но не эскалирует
		return errors.New("killswitch: cannot suspend user without user_id")
	}
	_, err := e.coordinator.Execute(ctx, domain.KillSwitchRequest{
		Scope:       domain.ScopeUser,
		UserID:      userID,
		Reason:      domain.ReasonViolationThreshold,
		TriggeredBy: "violation-detector",
		Details:     map[string]any{"tenant_id": tenantID},
	})
	return err
}

// OpenIncident фиксирует инцидент в журнале аудита. Собственно тикетинг —
// внешняя система, подписанная на канал алертов.
func (e *Enforcer) OpenIncident(ctx context.Context, v domain.SecurityViolation) error {
	e.auditor.Log(audit.Event{
		ID:       uuid.New().String(),
		Actor:    "violation-detector",
		Action:   audit.ActionIncidentOpened,
		Scope:    string(domain.ScopeSession),
		TargetID: v.SessionID,
		Status:   "SUCCESS",
		Details: map[string]any{
			"violation_id":   v.ID,
			"violation_type": v.ViolationType,
			"severity":       v.Severity,
		},
	})
	e.logger.Warn("security incident opened",
		zap.String("violation_id", v.ID),
		zap.String("session_id", v.SessionID),
		zap.String("type", string(v.ViolationType)))
	return nil
}

func (e *Enforcer) WarnSession(ctx context.Context, sessionID string) error {
	e.auditor.Log(audit.Event{
		ID:       uuid.New().String(),
		Actor:    "violation-detector",
		Action:   audit.ActionSessionWarned,
		Scope:    string(domain.ScopeSession),
		TargetID: sessionID,
		Status:   "SUCCESS",
	})
	return nil
}
