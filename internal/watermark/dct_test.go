package watermark

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// testImage генерирует детерминированный кадр со средними яркостями.
// Средний диапазон важен: клиппинг у границ байта (0/255) разрушил бы
// точность реконструкции, чего в реальных кадрах рабочего стола почти нет.
func testImage(width, height, stride int) []byte {
	img := make([]byte, width*height*stride)
	state := uint32(42)
	for i := range img {
		state = state*1664525 + 1013904223
		img[i] = byte(96 + (state>>24)%64)
	}
	return img
}

func TestNewDCTCodec_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DCTConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DCTConfig{}},
		{name: "explicit classic", cfg: DCTConfig{BlockSize: 8, Strength: 25, Redundancy: 3}},
		{name: "tiny block", cfg: DCTConfig{BlockSize: 2}, wantErr: true},
		{name: "negative strength", cfg: DCTConfig{Strength: -1}, wantErr: true},
		{name: "bad channel", cfg: DCTConfig{Channel: 5}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewDCTCodec(tc.cfg)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

func TestDCTCodec_CalculateCapacity(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	capacity, err := c.CalculateCapacity(512, 512)
	require.NoError(t, err)

	// 64x64 блоков, 11 пар на блок, избыточность 3
	require.Equal(t, 4096, capacity.Blocks)
	require.Equal(t, 4096*11/3, capacity.CapacityBits)
	require.Equal(t, (4096*11/3)/8-7, capacity.CapacityBytes)
	require.GreaterOrEqual(t, capacity.CapacityBytes, 8)

	_, err = c.CalculateCapacity(0, 512)
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestDCTCodec_EmbedExtractRoundTrip(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	img := testImage(512, 512, 1)
	payload := []byte("sess-a1b2c3d4")

	embedded, err := c.Embed(img, 512, 512, payload)
	require.NoError(t, err)
	require.Positive(t, embedded.BlocksUsed)
	require.Equal(t, FramedBitLength(len(payload), 3), embedded.BitsEmbedded)

	res, err := c.Extract(embedded.Image, 512, 512)
	require.NoError(t, err)
	require.Equal(t, payload, res.Payload)
	require.Equal(t, 1.0, res.Confidence)
	require.Equal(t, 0.0, res.ErrorRate)
	require.Equal(t, 4096, res.BlocksChecked)
}

func TestDCTCodec_EmbedRGBChannel(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{Channel: 2})
	require.NoError(t, err)

	img := testImage(256, 256, 3)
	payload := []byte("rgb")

	embedded, err := c.Embed(img, 256, 256, payload)
	require.NoError(t, err)

	// Чужие каналы не тронуты
	for i := 0; i < len(img); i += 3 {
		require.Equal(t, img[i], embedded.Image[i])
		require.Equal(t, img[i+1], embedded.Image[i+1])
	}

	res, err := c.Extract(embedded.Image, 256, 256)
	require.NoError(t, err)
	require.Equal(t, payload, res.Payload)
	require.Equal(t, 1.0, res.Confidence)
}

func TestDCTCodec_EmbedDoesNotMutateSource(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	img := testImage(64, 64, 1)
	original := make([]byte, len(img))
	copy(original, img)

	_, err = c.Embed(img, 64, 64, []byte("x"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(original, img))
}

func TestDCTCodec_PayloadTooLarge(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	capacity, err := c.CalculateCapacity(512, 512)
	require.NoError(t, err)

	img := testImage(512, 512, 1)
	original := make([]byte, len(img))
	copy(original, img)

	_, err = c.Embed(img, 512, 512, make([]byte, capacity.CapacityBytes+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	// Отказ до каких-либо записей
	require.True(t, bytes.Equal(original, img))
}

// Кадр без водяного знака — легитимный вход: nil payload, нулевой confidence
func TestDCTCodec_ExtractUnmarkedImage(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	flat := make([]byte, 128*128)
	for i := range flat {
		flat[i] = 128
	}

	res, err := c.Extract(flat, 128, 128)
	require.NoError(t, err)
	require.Nil(t, res.Payload)
	require.Equal(t, 0.0, res.Confidence)
}

func TestDCTCodec_ExtractBufferMismatch(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	_, err = c.Extract(make([]byte, 100), 64, 64)
	require.ErrorIs(t, err, ErrInvalidImage)
}

// Ортонормальность преобразования: idct2(dct2(x)) == x с точностью float
func TestDCTCodec_TransformRoundTrip(t *testing.T) {
	c, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)

	block := make([][]float64, 8)
	state := uint32(7)
	for i := range block {
		block[i] = make([]float64, 8)
		for j := range block[i] {
			state = state*1664525 + 1013904223
			block[i][j] = float64(state >> 24)
		}
	}
	original := make([][]float64, 8)
	for i := range original {
		original[i] = append([]float64(nil), block[i]...)
	}

	c.dct2(block)
	c.idct2(block)

	for i := range block {
		for j := range block[i] {
			require.InDelta(t, original[i][j], block[i][j], 1e-9)
		}
	}
}
