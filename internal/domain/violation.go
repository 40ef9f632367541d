package domain

import "time"

// ViolationType классифицирует событие безопасности, пришедшее из сессии
type ViolationType string

const (
	ViolationClipboardCopy  ViolationType = "CLIPBOARD_COPY_ATTEMPT"  // Попытка копирования в буфер обмена
	ViolationScreenCapture  ViolationType = "SCREEN_CAPTURE_ATTEMPT"  // Попытка снятия скриншота/записи экрана
	ViolationFileDownload   ViolationType = "FILE_DOWNLOAD_BLOCKED"   // Заблокированная выгрузка файла
	ViolationFileUpload     ViolationType = "FILE_UPLOAD_BLOCKED"     // Заблокированная загрузка файла
	ViolationUSBDevice      ViolationType = "USB_DEVICE_BLOCKED"      // Подключение USB-устройства
	ViolationNetworkAccess  ViolationType = "NETWORK_ACCESS_BLOCKED"  // Выход за пределы разрешенной сети
	ViolationPrintAttempt   ViolationType = "PRINT_ATTEMPT"           // Попытка печати
	ViolationIdleTimeout    ViolationType = "IDLE_TIMEOUT"            // Превышение лимита бездействия
	ViolationSessionTimeout ViolationType = "SESSION_TIMEOUT"         // Превышение максимальной длительности
	ViolationPolicyBypass   ViolationType = "POLICY_BYPASS_ATTEMPT"   // Попытка обхода политики (Critical)
	ViolationSuspicious     ViolationType = "SUSPICIOUS_ACTIVITY"     // Аномальное поведение (Critical)
)

// Severity — уровень опасности нарушения
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ViolationAction — принятая мера реагирования
type ViolationAction string

const (
	ActionLogged            ViolationAction = "LOGGED"             // Только запись в журнал
	ActionBlocked           ViolationAction = "BLOCKED"            // Операция перехвачена и запрещена
	ActionWarned            ViolationAction = "WARNED"             // Пользователю показано предупреждение
	ActionSessionTerminated ViolationAction = "SESSION_TERMINATED" // Сессия принудительно завершена
	ActionUserSuspended     ViolationAction = "USER_SUSPENDED"     // Пользователь заблокирован
	ActionIncidentCreated   ViolationAction = "INCIDENT_CREATED"   // Открыт инцидент ИБ
)

// SecurityViolation — неизменяемая запись о нарушении (append-only audit trail).
// Единственная разрешенная мутация — пометка Reviewed через ReviewViolation.
type SecurityViolation struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	TenantID      string          `json:"tenant_id"`
	ViolationType ViolationType   `json:"violation_type"`
	Severity      Severity        `json:"severity"`
	Description   string          `json:"description"`
	Details       map[string]any  `json:"details,omitempty"` // Произвольный контекст от агента сессии
	Action        ViolationAction `json:"action"`

	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Метаданные разбора инцидента
	Reviewed    bool       `json:"reviewed"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ViolationFilter — параметры выборки для списков и агрегатов
type ViolationFilter struct {
	TenantID  string
	SessionID string
	Type      ViolationType
	Severity  Severity
	Since     time.Time
	Limit     int
	Offset    int
}

// ViolationSummary — агрегат за окно наблюдения (read-only)
type ViolationSummary struct {
	Total            int64                     `json:"total"`
	ByType           map[ViolationType]int64   `json:"by_type"`
	BySeverity       map[Severity]int64        `json:"by_severity"`
	ByAction         map[ViolationAction]int64 `json:"by_action"`
	RecentViolations []SecurityViolation       `json:"recent_violations"`
}
