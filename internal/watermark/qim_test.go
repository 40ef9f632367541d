package watermark

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQIM_EmbedExtractRoundTrip(t *testing.T) {
	strengths := []float64{5, 10, 25}
	values := []float64{0, 0.3, 7.9, 12.5, 24.99, 25, 100.2, 333}

	for _, s := range strengths {
		for _, v := range values {
			for _, bit := range []byte{0, 1} {
				embedded := qimEmbed(v, s, bit)
				require.Equal(t, bit, qimExtract(embedded, s),
					"value=%v strength=%v bit=%d", v, s, bit)
			}
		}
	}
}

func TestQIM_PreservesSign(t *testing.T) {
	require.Negative(t, qimEmbed(-40, 25, 0))
	require.Negative(t, qimEmbed(-40, 25, 1))
	require.Positive(t, qimEmbed(40, 25, 0))
	require.Positive(t, qimEmbed(40, 25, 1))
}

// После встраивания модуль лежит точно в центре корзины: запас strength/2
// до соседней корзины — мера устойчивости к шуму квантования пикселей
func TestQIM_CenteredInBucket(t *testing.T) {
	embedded := qimEmbed(31.7, 25, 1)
	mag := math.Abs(embedded)
	n := math.Round((mag - 12.5) / 25)
	require.InDelta(t, n*25+12.5, mag, 1e-9)
	require.Equal(t, int64(1), int64(n)&1)
}

// Сдвиг меньше половины шага не меняет извлекаемый бит
func TestQIM_ToleratesSmallNoise(t *testing.T) {
	embedded := qimEmbed(47.0, 25, 0)
	for _, noise := range []float64{-12, -5, 0, 5, 12} {
		require.Equal(t, byte(0), qimExtract(embedded+noise, 25))
	}
}

func TestPlaneStride_Validation(t *testing.T) {
	tests := []struct {
		name    string
		imgLen  int
		w, h    int
		channel int
		stride  int
		wantErr bool
	}{
		{name: "grayscale", imgLen: 64, w: 8, h: 8, channel: 0, stride: 1},
		{name: "rgb interleaved", imgLen: 192, w: 8, h: 8, channel: 1, stride: 3},
		{name: "rgba interleaved", imgLen: 256, w: 8, h: 8, channel: 2, stride: 4},
		{name: "buffer mismatch", imgLen: 100, w: 8, h: 8, wantErr: true},
		{name: "channel out of stride", imgLen: 64, w: 8, h: 8, channel: 2, wantErr: true},
		{name: "zero dimensions", imgLen: 64, w: 0, h: 8, wantErr: true},
		{name: "empty buffer", imgLen: 0, w: 8, h: 8, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stride, err := planeStride(tc.imgLen, tc.w, tc.h, tc.channel)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.stride, stride)
		})
	}
}

func TestExtractPlane_PaddingAndChannel(t *testing.T) {
	// 3x2 RGB: канал 1 несет значения 10..15
	img := make([]byte, 3*2*3)
	for i := 0; i < 6; i++ {
		img[i*3+1] = byte(10 + i)
	}

	plane := extractPlane(img, 3, 2, 3, 1, 4)
	require.Len(t, plane, 4)
	require.Len(t, plane[0], 4)

	require.Equal(t, 10.0, plane[0][0])
	require.Equal(t, 12.0, plane[0][2])
	require.Equal(t, 15.0, plane[1][2])
	// Паддинг нулевой
	require.Equal(t, 0.0, plane[0][3])
	require.Equal(t, 0.0, plane[3][0])
}

func TestWritePlane_ClampsToByte(t *testing.T) {
	img := make([]byte, 4)
	plane := [][]float64{{-3.2, 77.6}, {300.0, 254.5}}

	writePlane(img, plane, 2, 2, 1, 0)
	require.Equal(t, []byte{0, 78, 255, 255}, img)
}
