package domain

import "time"

// KillSwitchScope — уровень иерархии, на котором каскадирует отзыв доступа.
// Порядок важен: TENANT > USER > POD > SESSION
type KillSwitchScope string

const (
	ScopeTenant  KillSwitchScope = "TENANT"
	ScopeUser    KillSwitchScope = "USER"
	ScopePod     KillSwitchScope = "POD"
	ScopeSession KillSwitchScope = "SESSION"
)

// KillSwitchReason — зафиксированная причина срабатывания
type KillSwitchReason string

const (
	ReasonManual             KillSwitchReason = "MANUAL"              // Ручной запуск оператором ИБ
	ReasonViolationThreshold KillSwitchReason = "VIOLATION_THRESHOLD" // Превышен порог нарушений
	ReasonSecurityIncident   KillSwitchReason = "SECURITY_INCIDENT"   // Открытый инцидент
	ReasonDataBreach         KillSwitchReason = "DATA_BREACH_SUSPECTED"
	ReasonContractEnded      KillSwitchReason = "CONTRACT_ENDED"
)

// KillSwitchStatus — состояние исполнения каскада.
// PENDING -> IN_PROGRESS -> {COMPLETED, PARTIAL_FAILURE, FAILED}; терминальные состояния неизменяемы.
type KillSwitchStatus string

const (
	StatusPending        KillSwitchStatus = "PENDING"
	StatusInProgress     KillSwitchStatus = "IN_PROGRESS"
	StatusCompleted      KillSwitchStatus = "COMPLETED"
	StatusPartialFailure KillSwitchStatus = "PARTIAL_FAILURE"
	StatusFailed         KillSwitchStatus = "FAILED"
)

// IsTerminal сообщает, достигнут ли конечный статус каскада
func (s KillSwitchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusPartialFailure || s == StatusFailed
}

// KillSwitchRequest — входной запрос на срабатывание.
// Инвариант: заполнено ровно одно target-поле, соответствующее Scope.
type KillSwitchRequest struct {
	Scope       KillSwitchScope  `json:"scope"`
	TenantID    string           `json:"tenant_id,omitempty"`
	UserID      string           `json:"user_id,omitempty"`
	PodID       string           `json:"pod_id,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
	Reason      KillSwitchReason `json:"reason"`
	TriggeredBy string           `json:"triggered_by"`
	Details     map[string]any   `json:"details,omitempty"`
}

// TargetID возвращает идентификатор цели, соответствующий Scope
func (r *KillSwitchRequest) TargetID() string {
	switch r.Scope {
	case ScopeTenant:
		return r.TenantID
	case ScopeUser:
		return r.UserID
	case ScopePod:
		return r.PodID
	case ScopeSession:
		return r.SessionID
	}
	return ""
}

// TargetError — ошибка одной под-операции каскада.
// Каскад никогда не прерывается целиком: отказы копятся здесь (PARTIAL_FAILURE).
type TargetError struct {
	TargetKind string `json:"target_kind"` // "session", "pod", "tokens"
	TargetID   string `json:"target_id"`
	Message    string `json:"message"`
}

// KillSwitchEvent описывает одно исполнение kill switch
type KillSwitchEvent struct {
	ID          string           `json:"id"`
	Scope       KillSwitchScope  `json:"scope"`
	TenantID    string           `json:"tenant_id,omitempty"`
	UserID      string           `json:"user_id,omitempty"`
	PodID       string           `json:"pod_id,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
	Reason      KillSwitchReason `json:"reason"`
	TriggeredBy string           `json:"triggered_by"`
	Status      KillSwitchStatus `json:"status"`

	SessionsTerminated int           `json:"sessions_terminated"`
	PodsTerminated     int           `json:"pods_terminated"`
	TokensRevoked      int           `json:"tokens_revoked"`
	ExecutionTimeMs    int64         `json:"execution_time_ms"`
	Errors             []TargetError `json:"errors,omitempty"`

	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RevocationRecord — одна строка на пользователя, чей доступ закрыт kill switch-ем.
// Запись никогда не удаляется физически: Reinstate переводит IsActive в false (logical delete).
type RevocationRecord struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	EventID   string           `json:"event_id"` // Ссылка на породивший KillSwitchEvent
	RevokedBy string           `json:"revoked_by"`
	Reason    KillSwitchReason `json:"reason"`
	Scope     KillSwitchScope  `json:"scope"`
	IsActive  bool             `json:"is_active"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`

	ReinstatedBy    string     `json:"reinstated_by,omitempty"`
	ReinstatedAt    *time.Time `json:"reinstated_at,omitempty"`
	ReinstateReason string     `json:"reinstate_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BlockStatus — ответ на вопрос "заблокирован ли пользователь"
type BlockStatus struct {
	Blocked   bool             `json:"blocked"`
	Reason    KillSwitchReason `json:"reason,omitempty"`
	BlockedAt *time.Time       `json:"blocked_at,omitempty"`
	EventID   string           `json:"event_id,omitempty"`
}

// KillSwitchResult — итог исполнения, отдаваемый вызывающему
type KillSwitchResult struct {
	EventID            string           `json:"event_id"`
	Status             KillSwitchStatus `json:"status"`
	SessionsTerminated int              `json:"sessions_terminated"`
	PodsTerminated     int              `json:"pods_terminated"`
	TokensRevoked      int              `json:"tokens_revoked"`
	ExecutionTimeMs    int64            `json:"execution_time_ms"`
	Errors             []TargetError    `json:"errors,omitempty"`
}

// KillSwitchStats — сводка для дашборда ИБ. SLA-превышения — статистика, не отказ.
type KillSwitchStats struct {
	TotalEvents     int64                      `json:"total_events"`
	ByStatus        map[KillSwitchStatus]int64 `json:"by_status"`
	ByScope         map[KillSwitchScope]int64  `json:"by_scope"`
	AvgExecutionMs  float64                    `json:"avg_execution_ms"`
	SLABreaches     int64                      `json:"sla_breaches"` // > 5000ms
	ActiveRevoked   int64                      `json:"active_revoked"`
}

// EventFilter — параметры выборки событий kill switch
type EventFilter struct {
	Scope    KillSwitchScope
	Status   KillSwitchStatus
	TenantID string
	Since    time.Time
	Limit    int
	Offset   int
}
