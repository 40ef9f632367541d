package watermark

/*
Файл dwt.go — второй форензик-кодек: многоуровневое вейвлет-разложение Хаара.
Биты уходят в аппроксимирующий sub-band (LL) самого глубокого уровня —
он переживает перекомпрессию и масштабирование лучше всего. Опционально
остаток емкости расходуется в диагональных деталях (HH) каждого уровня
на половинной силе, чтобы не плодить видимые артефакты.

Разложение in-place: после L уровней верхний левый регион массива —
LL_L, квадранты каждого уровня — {LH, HL, HH}.
*/

// MagicDWT — константа кадра DWT-кодека
var MagicDWT = [4]byte{'S', 'D', 'W', 'T'}

// llMargin — отступ от границ sub-band, защищающий от краевых артефактов
const llMargin = 2

// DWTConfig — параметры кодека
type DWTConfig struct {
	Levels     int     `json:"levels"`     // Глубина разложения (2)
	Strength   float64 `json:"strength"`   // Шаг квантования в LL (10)
	Channel    int     `json:"channel"`    // Индекс канала 0..2
	Redundancy int     `json:"redundancy"` // Повторы каждого бита (3)
	UseHH      bool    `json:"use_hh"`     // Тратить емкость и в HH sub-bands
}

func (c DWTConfig) withDefaults() DWTConfig {
	if c.Levels == 0 {
		c.Levels = 2
	}
	if c.Strength == 0 {
		c.Strength = 10
	}
	if c.Redundancy == 0 {
		c.Redundancy = 3
	}
	return c
}

// DWTCodec — кодек вейвлет-области. Чистые вычисления без разделяемого состояния.
type DWTCodec struct {
	cfg DWTConfig
}

// NewDWTCodec валидирует конфигурацию
func NewDWTCodec(cfg DWTConfig) (*DWTCodec, error) {
	cfg = cfg.withDefaults()
	if cfg.Levels < 1 || cfg.Levels > 5 || cfg.Strength <= 0 || cfg.Redundancy < 1 || cfg.Channel < 0 || cfg.Channel > 2 {
		return nil, ErrInvalidConfig
	}
	return &DWTCodec{cfg: cfg}, nil
}

// positionPlan — общий для Embed и Extract порядок позиций:
// сначала глубокий LL, затем HH от глубокого уровня к первому.
// Чистая функция от размеров — критический инвариант кодека.
func (c *DWTCodec) positionPlan(padW, padH int) (ll []coeffPos, hh [][]coeffPos) {
	llRows := padH >> c.cfg.Levels
	llCols := padW >> c.cfg.Levels
	ll = llPositions(llRows, llCols, llMargin)

	if c.cfg.UseHH {
		for level := c.cfg.Levels; level >= 1; level-- {
			hh = append(hh, hhPositions(padH, padW, level, llMargin))
		}
	}
	return ll, hh
}

// CalculateCapacity — учет емкости по размерам, без пиксельных данных
func (c *DWTCodec) CalculateCapacity(width, height int) (*Capacity, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidImage
	}
	mult := 1 << c.cfg.Levels
	padW := ceilMultiple(width, mult)
	padH := ceilMultiple(height, mult)

	ll, hh := c.positionPlan(padW, padH)
	total := len(ll)
	for _, band := range hh {
		total += len(band)
	}

	capacityBits := total / c.cfg.Redundancy
	capacityBytes := capacityBits/8 - headerSize
	if capacityBytes < 0 {
		capacityBytes = 0
	}
	return &Capacity{CapacityBits: capacityBits, CapacityBytes: capacityBytes, Blocks: 1}, nil
}

// AnalyzeParameters выводит рекомендуемые levels/strength из размеров кадра:
// чем больше изображение, тем глубже разложение при сохранении емкости.
func (c *DWTCodec) AnalyzeParameters(width, height int) (levels int, strength float64) {
	minDim := width
	if height < minDim {
		minDim = height
	}
	switch {
	case minDim >= 1024:
		levels = 3
	case minDim >= 256:
		levels = 2
	default:
		levels = 1
	}
	strength = 10
	if minDim >= 1024 {
		// На больших кадрах LL-коэффициенты стабильнее, можно мягче
		strength = 8
	}
	return levels, strength
}

// Embed прячет payload в LL (и опционально HH) выбранного канала.
// Буфер вызывающего не мутируется; нехватка емкости — отказ до записи.
func (c *DWTCodec) Embed(image []byte, width, height int, payload []byte) (*EmbedResult, error) {
	stride, err := planeStride(len(image), width, height, c.cfg.Channel)
	if err != nil {
		return nil, err
	}
	capacity, err := c.CalculateCapacity(width, height)
	if err != nil {
		return nil, err
	}
	if len(payload) > maxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	bits := Frame(payload, MagicDWT, codecVersion, c.cfg.Redundancy)
	if len(bits) > capacity.CapacityBits*c.cfg.Redundancy {
		return nil, ErrPayloadTooLarge
	}

	mult := 1 << c.cfg.Levels
	plane := extractPlane(image, width, height, stride, c.cfg.Channel, mult)
	padH, padW := len(plane), len(plane[0])

	c.forward(plane, padW, padH)

	ll, hh := c.positionPlan(padW, padH)
	bitIdx := 0
	for _, p := range ll {
		if bitIdx >= len(bits) {
			break
		}
		plane[p.U][p.V] = qimEmbed(plane[p.U][p.V], c.cfg.Strength, bits[bitIdx])
		bitIdx++
	}
	for _, band := range hh {
		for _, p := range band {
			if bitIdx >= len(bits) {
				break
			}
			// Половинная сила в деталях: артефакты в HH заметнее на плоских участках
			plane[p.U][p.V] = qimEmbed(plane[p.U][p.V], c.cfg.Strength/2, bits[bitIdx])
			bitIdx++
		}
	}

	c.inverse(plane, padW, padH)

	out := make([]byte, len(image))
	copy(out, image)
	writePlane(out, plane, width, height, stride, c.cfg.Channel)

	return &EmbedResult{
		Image:        out,
		BlocksUsed:   1,
		BitsEmbedded: bitIdx,
		CapacityBits: capacity.CapacityBits,
	}, nil
}

// Extract зеркалит Embed: разложение, чтение четностей в том же порядке,
// делегирование протоколу кадрирования.
func (c *DWTCodec) Extract(image []byte, width, height int) (*ExtractResult, error) {
	stride, err := planeStride(len(image), width, height, c.cfg.Channel)
	if err != nil {
		return nil, err
	}

	mult := 1 << c.cfg.Levels
	plane := extractPlane(image, width, height, stride, c.cfg.Channel, mult)
	padH, padW := len(plane), len(plane[0])

	c.forward(plane, padW, padH)

	ll, hh := c.positionPlan(padW, padH)
	bits := make([]byte, 0, len(ll))
	for _, p := range ll {
		bits = append(bits, qimExtract(plane[p.U][p.V], c.cfg.Strength))
	}
	for _, band := range hh {
		for _, p := range band {
			bits = append(bits, qimExtract(plane[p.U][p.V], c.cfg.Strength/2))
		}
	}

	res := Unframe(bits, MagicDWT, codecVersion, c.cfg.Redundancy)
	return &ExtractResult{
		Payload:       res.Payload,
		Confidence:    res.Confidence,
		ErrorRate:     res.ErrorRate,
		BlocksChecked: 1,
		BitsExtracted: len(bits),
	}, nil
}

// forward — L уровней разложения Хаара in-place.
// Пара (avg, diff) с делением на 2 реконструируется в float точно.
func (c *DWTCodec) forward(plane [][]float64, padW, padH int) {
	for level := 1; level <= c.cfg.Levels; level++ {
		rows := padH >> (level - 1)
		cols := padW >> (level - 1)
		haarRows(plane, rows, cols)
		haarCols(plane, rows, cols)
	}
}

// inverse — обратная реконструкция от глубокого уровня к первому
func (c *DWTCodec) inverse(plane [][]float64, padW, padH int) {
	for level := c.cfg.Levels; level >= 1; level-- {
		rows := padH >> (level - 1)
		cols := padW >> (level - 1)
		unhaarCols(plane, rows, cols)
		unhaarRows(plane, rows, cols)
	}
}

func haarRows(plane [][]float64, rows, cols int) {
	tmp := make([]float64, cols)
	half := cols / 2
	for y := 0; y < rows; y++ {
		for x := 0; x < half; x++ {
			a, b := plane[y][2*x], plane[y][2*x+1]
			tmp[x] = (a + b) / 2
			tmp[half+x] = (a - b) / 2
		}
		copy(plane[y][:cols], tmp)
	}
}

func haarCols(plane [][]float64, rows, cols int) {
	tmp := make([]float64, rows)
	half := rows / 2
	for x := 0; x < cols; x++ {
		for y := 0; y < half; y++ {
			a, b := plane[2*y][x], plane[2*y+1][x]
			tmp[y] = (a + b) / 2
			tmp[half+y] = (a - b) / 2
		}
		for y := 0; y < rows; y++ {
			plane[y][x] = tmp[y]
		}
	}
}

func unhaarRows(plane [][]float64, rows, cols int) {
	tmp := make([]float64, cols)
	half := cols / 2
	for y := 0; y < rows; y++ {
		for x := 0; x < half; x++ {
			avg, diff := plane[y][x], plane[y][half+x]
			tmp[2*x] = avg + diff
			tmp[2*x+1] = avg - diff
		}
		copy(plane[y][:cols], tmp)
	}
}

func unhaarCols(plane [][]float64, rows, cols int) {
	tmp := make([]float64, rows)
	half := rows / 2
	for x := 0; x < cols; x++ {
		for y := 0; y < half; y++ {
			avg, diff := plane[y][x], plane[half+y][x]
			tmp[2*y] = avg + diff
			tmp[2*y+1] = avg - diff
		}
		for y := 0; y < rows; y++ {
			plane[y][x] = tmp[y]
		}
	}
}
