package audit

import "time"

// Категории событий containment-подсистемы
const (
	ActionViolationRecorded = "VIOLATION_RECORDED"
	ActionViolationReviewed = "VIOLATION_REVIEWED"
	ActionKillSwitch        = "KILL_SWITCH_EXECUTED"
	ActionReinstatement     = "ACCESS_REINSTATED"
	ActionIncidentOpened    = "INCIDENT_OPENED"
	ActionSessionWarned     = "SESSION_WARNED"
)

type Event struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	Actor   string `json:"actor"`    // Кто инициировал (оператор/detector)
	Action  string `json:"action"`   // Категория события

	// Контекст цели
	Scope    string `json:"scope"`     // TENANT|USER|POD|SESSION, если применимо
	TargetID string `json:"target_id"` // Идентификатор цели

	// Результат
	Status     string         `json:"status"` // "SUCCESS", "PARTIAL_FAILURE", "FAILED"
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}
