package detector

import (
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/domain"
)

// riskRule — числовой порог по полю из Details нарушения.
// Превышение поднимает серьезность на одну ступень.
type riskRule struct {
	Field     string
	Threshold float64
}

// Дефолтные правила: объемные сигналы, отличающие массовый вынос
// данных от единичной ошибки пользователя
var defaultRiskRules = map[domain.ViolationType]riskRule{
	domain.ViolationFileDownload:  {Field: "size_bytes", Threshold: 100 << 20},
	domain.ViolationClipboardCopy: {Field: "length", Threshold: 100_000},
	domain.ViolationNetworkAccess: {Field: "attempt_count", Threshold: 50},
	domain.ViolationPrintAttempt:  {Field: "page_count", Threshold: 200},
}

// RiskAnalyzer оценивает объемные характеристики нарушения.
// Работает поверх статической классификации: таблицы severity
// остаются чистыми, анализатор только добавляет ступень сверху.
type RiskAnalyzer struct {
	rules  map[domain.ViolationType]riskRule
	logger *zap.Logger
}

func NewRiskAnalyzer(logger *zap.Logger) *RiskAnalyzer {
	return &RiskAnalyzer{rules: defaultRiskRules, logger: logger.Named("risk")}
}

// Elevated проверяет, превышает ли рисковое поле порог для данного типа
func (a *RiskAnalyzer) Elevated(t domain.ViolationType, details map[string]any) bool {
	rule, ok := a.rules[t]
	if !ok || details == nil {
		return false
	}

	rawValue, ok := details[rule.Field]
	if !ok {
		return false
	}

	// Из JSON числа всегда приходят как float64
	val, ok := rawValue.(float64)
	if !ok {
		return false
	}

	if val > rule.Threshold {
		a.logger.Warn("risk threshold exceeded",
			zap.String("type", string(t)),
			zap.String("field", rule.Field),
			zap.Float64("value", val),
			zap.Float64("threshold", rule.Threshold))
		return true
	}
	return false
}

// elevate поднимает серьезность на одну ступень (CRITICAL — потолок)
func elevate(s domain.Severity) domain.Severity {
	switch s {
	case domain.SeverityLow:
		return domain.SeverityMedium
	case domain.SeverityMedium:
		return domain.SeverityHigh
	case domain.SeverityHigh:
		return domain.SeverityCritical
	}
	return s
}
