package watermark

/*
Файл framing.go реализует битовый протокол кадрирования payload, общий для
обоих кодеков (DCT и DWT).

Формат заголовка: magic(4B) | version(1B) | length(2B, big-endian) | payload.
Каждый логический бит повторяется redundancy раз перед встраиванием;
извлечение голосует большинством внутри каждого окна повторов (простая
коррекция ошибок). Неединогласное окно считается "ошибкой" и снижает
confidence результата.
*/

import (
	"encoding/binary"
	"errors"
	"math"
)

// headerSize — magic(4) + version(1) + length(2)
const headerSize = 7

// maxPayloadSize ограничен двухбайтовым полем длины
const maxPayloadSize = math.MaxUint16

var (
	// ErrPayloadTooLarge — payload не помещается в емкость канала при заданной
	// избыточности. Возвращается до мутации каких-либо байтов изображения.
	ErrPayloadTooLarge = errors.New("watermark: payload exceeds channel capacity")

	// ErrInvalidImage — буфер не согласуется с заявленными размерами/каналом
	ErrInvalidImage = errors.New("watermark: image buffer does not match dimensions")

	// ErrInvalidConfig — недопустимые параметры кодека
	ErrInvalidConfig = errors.New("watermark: invalid codec configuration")
)

// ExtractionResult — итог распаковки битового потока.
// Отсутствие водяного знака — не исключение, а деградированный confidence:
// изображение может легитимно не содержать ничего.
type ExtractionResult struct {
	// Payload равен nil, если кадр не распознан (magic/version/length)
	Payload []byte

	// Confidence: 1-errorRate при успехе; 0 — чужой magic; 0.3 — чужая версия;
	// 0.5 — усеченная длина
	Confidence float64

	// ErrorRate — доля неединогласных окон среди использованных
	ErrorRate float64
}

// Frame разворачивает заголовок+payload в битовую последовательность
// (MSB-first), повторяя каждый бит redundancy раз.
func Frame(payload []byte, magic [4]byte, version byte, redundancy int) []byte {
	framed := make([]byte, 0, headerSize+len(payload))
	framed = append(framed, magic[:]...)
	framed = append(framed, version)
	framed = binary.BigEndian.AppendUint16(framed, uint16(len(payload)))
	framed = append(framed, payload...)

	bits := make([]byte, 0, len(framed)*8*redundancy)
	for _, b := range framed {
		for shift := 7; shift >= 0; shift-- {
			bit := (b >> shift) & 1
			for r := 0; r < redundancy; r++ {
				bits = append(bits, bit)
			}
		}
	}
	return bits
}

// FramedBitLength — сколько бит займет payload после кадрирования
func FramedBitLength(payloadLen, redundancy int) int {
	return (headerSize + payloadLen) * 8 * redundancy
}

// Unframe сворачивает битовый поток обратно в payload.
//
// Поток может содержать мусорные биты после конца кадра (кодек читает все
// позиции подряд), поэтому errorRate считается только по окнам, реально
// покрывающим заголовок и заявленный payload.
func Unframe(bits []byte, magic [4]byte, version byte, redundancy int) ExtractionResult {
	if redundancy < 1 || len(bits)/redundancy < headerSize*8 {
		return ExtractionResult{Confidence: 0, ErrorRate: 1}
	}

	// 1. Голосование большинством по окнам повторов (ничья — в пользу 0)
	windows := len(bits) / redundancy
	votedBits := make([]byte, windows)
	noisy := make([]bool, windows)
	for w := 0; w < windows; w++ {
		ones := 0
		for r := 0; r < redundancy; r++ {
			if bits[w*redundancy+r] != 0 {
				ones++
			}
		}
		if ones*2 > redundancy {
			votedBits[w] = 1
		}
		noisy[w] = ones != 0 && ones != redundancy
	}

	// 2. Сборка байтов (MSB-first)
	raw := make([]byte, windows/8)
	for i := range raw {
		var b byte
		for j := 0; j < 8; j++ {
			b = b<<1 | votedBits[i*8+j]
		}
		raw[i] = b
	}

	// 3. Валидация заголовка
	if [4]byte(raw[0:4]) != magic {
		return ExtractionResult{Confidence: 0, ErrorRate: errorRate(noisy, headerSize*8)}
	}
	if raw[4] != version {
		return ExtractionResult{Confidence: 0.3, ErrorRate: errorRate(noisy, headerSize*8)}
	}
	length := int(binary.BigEndian.Uint16(raw[5:7]))
	if length > len(raw)-headerSize {
		return ExtractionResult{Confidence: 0.5, ErrorRate: errorRate(noisy, headerSize*8)}
	}

	rate := errorRate(noisy, (headerSize+length)*8)
	return ExtractionResult{
		Payload:    raw[headerSize : headerSize+length],
		ErrorRate:  rate,
		Confidence: 1 - math.Min(1, rate),
	}
}

// errorRate — доля зашумленных окон среди первых used
func errorRate(noisy []bool, used int) float64 {
	if used > len(noisy) {
		used = len(noisy)
	}
	if used == 0 {
		return 1
	}
	errs := 0
	for _, n := range noisy[:used] {
		if n {
			errs++
		}
	}
	return float64(errs) / float64(used)
}
