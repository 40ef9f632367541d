package watermark

/*
Файл dct.go реализует форензик-кодек в частотной области: идентификатор
сессии прячется в среднечастотных DCT-коэффициентах одного цветового канала,
block-by-block (по умолчанию 8x8), через QIM-квантование.

Кадр, снятый с экрана и пережатый, сохраняет средние частоты лучше высоких,
а искажение средних частот менее заметно, чем низких — отсюда выбор полосы.
*/

import (
	"math"
)

// MagicDCT — константа кадра DCT-кодека (у каждого кодека свой magic)
var MagicDCT = [4]byte{'S', 'D', 'C', 'T'}

// codecVersion — версия битового протокола обоих кодеков
const codecVersion byte = 1

// DCTConfig — параметры кодека
type DCTConfig struct {
	BlockSize  int     `json:"block_size"` // Сторона блока (8)
	Strength   float64 `json:"strength"`   // Шаг квантования QIM (25)
	Channel    int     `json:"channel"`    // Индекс канала 0..2
	Redundancy int     `json:"redundancy"` // Повторы каждого бита (3)
}

func (c DCTConfig) withDefaults() DCTConfig {
	if c.BlockSize == 0 {
		c.BlockSize = 8
	}
	if c.Strength == 0 {
		c.Strength = 25
	}
	if c.Redundancy == 0 {
		c.Redundancy = 3
	}
	return c
}

// EmbedResult — статистика встраивания
type EmbedResult struct {
	Image        []byte `json:"-"` // Копия буфера с внедренным знаком
	BlocksUsed   int    `json:"blocks_used"`
	BitsEmbedded int    `json:"bits_embedded"`
	CapacityBits int    `json:"capacity_bits"`
}

// ExtractResult — итог извлечения со статистикой
type ExtractResult struct {
	Payload       []byte  `json:"payload"`
	Confidence    float64 `json:"confidence"`
	ErrorRate     float64 `json:"error_rate"`
	BlocksChecked int     `json:"blocks_checked"`
	BitsExtracted int     `json:"bits_extracted"`
}

// Capacity — учет емкости без чтения пиксельных данных
type Capacity struct {
	CapacityBits  int `json:"capacity_bits"`  // Логические биты после избыточности
	CapacityBytes int `json:"capacity_bytes"` // Полезные байты за вычетом заголовка
	Blocks        int `json:"blocks"`
}

// DCTCodec — кодек с предвычисленными таблицами косинусов.
// Чистые синхронные вычисления, безопасен для параллельного использования.
type DCTCodec struct {
	cfg   DCTConfig
	pairs [][2]coeffPos
	cos   [][]float64 // cos[(2i+1)kπ/2N]
	alpha []float64
}

// NewDCTCodec валидирует конфигурацию и готовит таблицы
func NewDCTCodec(cfg DCTConfig) (*DCTCodec, error) {
	cfg = cfg.withDefaults()
	if cfg.BlockSize < 4 || cfg.Strength <= 0 || cfg.Redundancy < 1 || cfg.Channel < 0 || cfg.Channel > 2 {
		return nil, ErrInvalidConfig
	}

	n := cfg.BlockSize
	cos := make([][]float64, n)
	for i := range cos {
		cos[i] = make([]float64, n)
		for k := 0; k < n; k++ {
			cos[i][k] = math.Cos(float64(2*i+1) * float64(k) * math.Pi / float64(2*n))
		}
	}
	alpha := make([]float64, n)
	alpha[0] = math.Sqrt(1 / float64(n))
	for k := 1; k < n; k++ {
		alpha[k] = math.Sqrt(2 / float64(n))
	}

	return &DCTCodec{cfg: cfg, pairs: midBandPairs(n), cos: cos, alpha: alpha}, nil
}

// CalculateCapacity выполняет блочный учет для заданных размеров.
// Емкость округляется вниз (floor) на каждом шаге — осознанно консервативно.
func (c *DCTCodec) CalculateCapacity(width, height int) (*Capacity, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidImage
	}
	bs := c.cfg.BlockSize
	blocks := (ceilMultiple(width, bs) / bs) * (ceilMultiple(height, bs) / bs)

	capacityBits := blocks * len(c.pairs) / c.cfg.Redundancy
	capacityBytes := capacityBits/8 - headerSize
	if capacityBytes < 0 {
		capacityBytes = 0
	}
	return &Capacity{CapacityBits: capacityBits, CapacityBytes: capacityBytes, Blocks: blocks}, nil
}

// Embed прячет payload в канал изображения. Исходный буфер не мутируется:
// при нехватке емкости возвращается ErrPayloadTooLarge до каких-либо записей.
func (c *DCTCodec) Embed(image []byte, width, height int, payload []byte) (*EmbedResult, error) {
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

	bits := Frame(payload, MagicDCT, codecVersion, c.cfg.Redundancy)
	if len(bits) > capacity.CapacityBits*c.cfg.Redundancy {
		return nil, ErrPayloadTooLarge
	}

	bs := c.cfg.BlockSize
	plane := extractPlane(image, width, height, stride, c.cfg.Channel, bs)
	block := make([][]float64, bs)
	for i := range block {
		block[i] = make([]float64, bs)
	}

	out := make([]byte, len(image))
	copy(out, image)

	bitIdx := 0
	blocksUsed := 0
	for by := 0; by < len(plane) && bitIdx < len(bits); by += bs {
		for bx := 0; bx < len(plane[0]) && bitIdx < len(bits); bx += bs {
			for i := 0; i < bs; i++ {
				copy(block[i], plane[by+i][bx:bx+bs])
			}
			c.dct2(block)

			for _, pair := range c.pairs {
				if bitIdx >= len(bits) {
					break
				}
				p := pair[0]
				block[p.U][p.V] = qimEmbed(block[p.U][p.V], c.cfg.Strength, bits[bitIdx])
				bitIdx++
			}

			c.idct2(block)
			for i := 0; i < bs; i++ {
				copy(plane[by+i][bx:bx+bs], block[i])
			}
			blocksUsed++
		}
	}

	writePlane(out, plane, width, height, stride, c.cfg.Channel)
	return &EmbedResult{
		Image:        out,
		BlocksUsed:   blocksUsed,
		BitsEmbedded: bitIdx,
		CapacityBits: capacity.CapacityBits,
	}, nil
}

// Extract зеркалит Embed: читает четности QIM по тем же позициям и отдает
// битовый поток протоколу кадрирования. Отсутствие знака — не ошибка,
// а результат с нулевым confidence.
func (c *DCTCodec) Extract(image []byte, width, height int) (*ExtractResult, error) {
	stride, err := planeStride(len(image), width, height, c.cfg.Channel)
	if err != nil {
		return nil, err
	}

	bs := c.cfg.BlockSize
	plane := extractPlane(image, width, height, stride, c.cfg.Channel, bs)
	block := make([][]float64, bs)
	for i := range block {
		block[i] = make([]float64, bs)
	}

	bits := make([]byte, 0, (len(plane)/bs)*(len(plane[0])/bs)*len(c.pairs))
	blocksChecked := 0
	for by := 0; by < len(plane); by += bs {
		for bx := 0; bx < len(plane[0]); bx += bs {
			for i := 0; i < bs; i++ {
				copy(block[i], plane[by+i][bx:bx+bs])
			}
			c.dct2(block)
			for _, pair := range c.pairs {
				p := pair[0]
				bits = append(bits, qimExtract(block[p.U][p.V], c.cfg.Strength))
			}
			blocksChecked++
		}
	}

	res := Unframe(bits, MagicDCT, codecVersion, c.cfg.Redundancy)
	return &ExtractResult{
		Payload:       res.Payload,
		Confidence:    res.Confidence,
		ErrorRate:     res.ErrorRate,
		BlocksChecked: blocksChecked,
		BitsExtracted: len(bits),
	}, nil
}

// dct2 — сепарабельное 2D DCT-II поверх блока (in-place)
func (c *DCTCodec) dct2(block [][]float64) {
	n := c.cfg.BlockSize
	tmp := make([]float64, n)

	for i := 0; i < n; i++ { // Строки
		for k := 0; k < n; k++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += block[i][j] * c.cos[j][k]
			}
			tmp[k] = c.alpha[k] * sum
		}
		copy(block[i], tmp)
	}
	for j := 0; j < n; j++ { // Столбцы
		for k := 0; k < n; k++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += block[i][j] * c.cos[i][k]
			}
			tmp[k] = c.alpha[k] * sum
		}
		for i := 0; i < n; i++ {
			block[i][j] = tmp[i]
		}
	}
}

// idct2 — обратное преобразование
func (c *DCTCodec) idct2(block [][]float64) {
	n := c.cfg.BlockSize
	tmp := make([]float64, n)

	for j := 0; j < n; j++ { // Столбцы
		for i := 0; i < n; i++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += c.alpha[k] * block[k][j] * c.cos[i][k]
			}
			tmp[i] = sum
		}
		for i := 0; i < n; i++ {
			block[i][j] = tmp[i]
		}
	}
	for i := 0; i < n; i++ { // Строки
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += c.alpha[k] * block[i][k] * c.cos[j][k]
			}
			tmp[j] = sum
		}
		copy(block[i], tmp)
	}
}
