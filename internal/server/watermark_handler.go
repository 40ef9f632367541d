package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillancer/securedesk/internal/infra"
	"github.com/skillancer/securedesk/internal/watermark"
)

// WatermarkHandler — HTTP-обертка над кодеками DCT/DWT.
// Кодек выбирается сегментом пути {codec}; параметры запроса
// перекрывают дефолты конфигурации сервиса.
type WatermarkHandler struct {
	cfg     infra.WatermarkConfig
	metrics *infra.Metrics
}

func NewWatermarkHandler(cfg infra.WatermarkConfig, metrics *infra.Metrics) *WatermarkHandler {
	return &WatermarkHandler{cfg: cfg, metrics: metrics}
}

// watermarkRequest — общее тело embed/extract/capacity.
// Image и Payload — base64 (стандартная сериализация []byte в JSON).
// Указатели отличают "не передано" от нулевого значения.
type watermarkRequest struct {
	Image  []byte `json:"image,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	Payload []byte `json:"payload,omitempty"`

	BlockSize  *int     `json:"block_size,omitempty"` // DCT
	Levels     *int     `json:"levels,omitempty"`     // DWT
	UseHH      *bool    `json:"use_hh,omitempty"`     // DWT
	Strength   *float64 `json:"strength,omitempty"`
	Channel    *int     `json:"channel,omitempty"`
	Redundancy *int     `json:"redundancy,omitempty"`
}

// codec — общий контракт DCT и DWT кодеков для HTTP-слоя
type codec interface {
	Embed(image []byte, width, height int, payload []byte) (*watermark.EmbedResult, error)
	Extract(image []byte, width, height int) (*watermark.ExtractResult, error)
	CalculateCapacity(width, height int) (*watermark.Capacity, error)
}

func (h *WatermarkHandler) buildCodec(name string, req *watermarkRequest) (codec, error) {
	switch name {
	case "dct":
		cfg := watermark.DCTConfig{
			BlockSize:  h.cfg.DCTBlockSize,
			Strength:   h.cfg.DCTStrength,
			Channel:    h.cfg.DefaultChannel,
			Redundancy: h.cfg.Redundancy,
		}
		if req.BlockSize != nil {
			cfg.BlockSize = *req.BlockSize
		}
		if req.Strength != nil {
			cfg.Strength = *req.Strength
		}
		if req.Channel != nil {
			cfg.Channel = *req.Channel
		}
		if req.Redundancy != nil {
			cfg.Redundancy = *req.Redundancy
		}
		return watermark.NewDCTCodec(cfg)

	case "dwt":
		cfg := watermark.DWTConfig{
			Levels:     h.cfg.DWTLevels,
			Strength:   h.cfg.DWTStrength,
			Channel:    h.cfg.DefaultChannel,
			Redundancy: h.cfg.Redundancy,
		}
		if req.Levels != nil {
			cfg.Levels = *req.Levels
		}
		if req.UseHH != nil {
			cfg.UseHH = *req.UseHH
		}
		if req.Strength != nil {
			cfg.Strength = *req.Strength
		}
		if req.Channel != nil {
			cfg.Channel = *req.Channel
		}
		if req.Redundancy != nil {
			cfg.Redundancy = *req.Redundancy
		}
		return watermark.NewDWTCodec(cfg)
	}
	return nil, errors.New("unknown codec: " + name)
}

func (h *WatermarkHandler) decode(w http.ResponseWriter, r *http.Request) (codec, *watermarkRequest, bool) {
	var req watermarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, nil, false
	}

	c, err := h.buildCodec(chi.URLParam(r, "codec"), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	return c, &req, true
}

// Embed встраивает payload в кадр.
// POST /v1/watermark/{codec}/embed
func (h *WatermarkHandler) Embed(w http.ResponseWriter, r *http.Request) {
	c, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "codec")

	result, err := c.Embed(req.Image, req.Width, req.Height, req.Payload)
	if err != nil {
		h.metrics.WatermarkOps.WithLabelValues(name, "embed", "error").Inc()
		switch {
		case errors.Is(err, watermark.ErrPayloadTooLarge):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, watermark.ErrInvalidImage), errors.Is(err, watermark.ErrInvalidConfig):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.metrics.WatermarkOps.WithLabelValues(name, "embed", "ok").Inc()
	writeJSON(w, http.StatusOK, result)
}

// Extract пытается извлечь payload из кадра.
// Отсутствие водяного знака — не ошибка HTTP: payload=null, confidence=0.
// POST /v1/watermark/{codec}/extract
func (h *WatermarkHandler) Extract(w http.ResponseWriter, r *http.Request) {
	c, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "codec")

	result, err := c.Extract(req.Image, req.Width, req.Height)
	if err != nil {
		h.metrics.WatermarkOps.WithLabelValues(name, "extract", "error").Inc()
		if errors.Is(err, watermark.ErrInvalidImage) || errors.Is(err, watermark.ErrInvalidConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.metrics.WatermarkOps.WithLabelValues(name, "extract", "ok").Inc()
	writeJSON(w, http.StatusOK, result)
}

// Capacity считает вместимость кадра без самого кадра.
// POST /v1/watermark/{codec}/capacity
func (h *WatermarkHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	c, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	capacity, err := c.CalculateCapacity(req.Width, req.Height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, capacity)
}

// Analyze подбирает параметры DWT под разрешение кадра.
// POST /v1/watermark/dwt/analyze
func (h *WatermarkHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "codec") != "dwt" {
		http.Error(w, "analyze is only supported for dwt", http.StatusNotFound)
		return
	}

	c, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	dwt, _ := c.(*watermark.DWTCodec)

	levels, strength := dwt.AnalyzeParameters(req.Width, req.Height)
	writeJSON(w, http.StatusOK, map[string]any{
		"levels":   levels,
		"strength": strength,
	})
}
