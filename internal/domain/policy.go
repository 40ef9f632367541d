package domain

import "time"

// WatermarkCodec выбирает движок встраивания для политики
type WatermarkCodec string

const (
	CodecDCT WatermarkCodec = "DCT" // Частотная область, блоки 8x8
	CodecDWT WatermarkCodec = "DWT" // Вейвлет-область, устойчивее в LL sub-band
)

// SecurityPolicy — правило изоляции, действующее на сессию.
// Хранится во внешнем Control Plane, здесь только читается (hot path — RAM-кэш).
type SecurityPolicy struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"` // "*" — глобальная политика

	// Флаги блокировок внутри сессии
	ClipboardEnabled bool `json:"clipboard_enabled"`
	FileTransferOut  bool `json:"file_transfer_out"`
	FileTransferIn   bool `json:"file_transfer_in"`
	PrintingEnabled  bool `json:"printing_enabled"`
	USBEnabled       bool `json:"usb_enabled"`

	// Форензика: незаметный watermark в кадрах сессии
	WatermarkEnabled bool           `json:"watermark_enabled"`
	WatermarkCodec   WatermarkCodec `json:"watermark_codec"`

	// Лимиты длительности
	IdleTimeout time.Duration `json:"idle_timeout"`
	MaxDuration time.Duration `json:"max_duration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Effective гарантирует валидную политику даже при отсутствии записи (Zero Trust):
// nil-политика означает максимально строгий режим.
func (p *SecurityPolicy) Effective() SecurityPolicy {
	if p == nil {
		return SecurityPolicy{
			WatermarkEnabled: true,
			WatermarkCodec:   CodecDCT,
			IdleTimeout:      15 * time.Minute,
			MaxDuration:      8 * time.Hour,
		}
	}
	out := *p
	if out.WatermarkCodec == "" {
		out.WatermarkCodec = CodecDCT
	}
	return out
}
