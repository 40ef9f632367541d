package watermark

import "math"

/*
QIM (Quantization Index Modulation): бит кодируется округлением модуля
коэффициента к ближайшему значению вида n*strength + strength/2, где
четность n равна значению бита. Знак коэффициента сохраняется.
*/

// qimEmbed возвращает коэффициент с вкодированным битом
func qimEmbed(value, strength float64, bit byte) float64 {
	sign := 1.0
	if value < 0 {
		sign = -1.0
	}
	mag := math.Abs(value)

	n := math.Round((mag - strength/2) / strength)
	if n < 0 {
		n = 0
	}
	if byte(int64(n)&1) != bit {
		// Сдвигаемся в соседнюю корзину нужной четности — в ту, что ближе
		if mag > n*strength+strength/2 {
			n++
		} else {
			n--
		}
		if n < 0 {
			n = float64(bit) // У нуля корзина четности bit — это n=bit
		}
	}
	return sign * (n*strength + strength/2)
}

// qimExtract читает обратно четность квантованного модуля
func qimExtract(value, strength float64) byte {
	mag := math.Abs(value)
	n := math.Round((mag - strength/2) / strength)
	if n < 0 {
		n = 0
	}
	return byte(int64(n) & 1)
}

// extractPlane вынимает один цветовой канал в 2D-массив с нулевым паддингом
// до кратности multiple по обоим измерениям.
// stride — число каналов в interleaved-буфере (1 для одноканального).
func extractPlane(image []byte, width, height, stride, channel, multiple int) [][]float64 {
	padW := ceilMultiple(width, multiple)
	padH := ceilMultiple(height, multiple)

	plane := make([][]float64, padH)
	for y := range plane {
		plane[y] = make([]float64, padW)
		if y >= height {
			continue
		}
		for x := 0; x < width; x++ {
			plane[y][x] = float64(image[(y*width+x)*stride+channel])
		}
	}
	return plane
}

// writePlane возвращает канал обратно в interleaved-буфер, срезая паддинг
// и зажимая значения в диапазон байта.
func writePlane(image []byte, plane [][]float64, width, height, stride, channel int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := math.Round(plane[y][x])
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			image[(y*width+x)*stride+channel] = byte(v)
		}
	}
}

// planeStride валидирует буфер и возвращает число interleaved-каналов
func planeStride(imageLen, width, height, channel int) (int, error) {
	if width <= 0 || height <= 0 || imageLen == 0 || imageLen%(width*height) != 0 {
		return 0, ErrInvalidImage
	}
	stride := imageLen / (width * height)
	if stride > 4 || channel < 0 || channel >= stride {
		return 0, ErrInvalidImage
	}
	return stride, nil
}

func ceilMultiple(v, multiple int) int {
	if r := v % multiple; r != 0 {
		return v + multiple - r
	}
	return v
}
