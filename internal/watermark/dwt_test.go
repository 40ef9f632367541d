package watermark

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDWTCodec_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DWTConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DWTConfig{}},
		{name: "deep with hh", cfg: DWTConfig{Levels: 3, Strength: 8, UseHH: true}},
		{name: "too deep", cfg: DWTConfig{Levels: 6}, wantErr: true},
		{name: "negative strength", cfg: DWTConfig{Strength: -5}, wantErr: true},
		{name: "bad channel", cfg: DWTConfig{Channel: 3}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewDWTCodec(tc.cfg)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

func TestDWTCodec_CalculateCapacity(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	capacity, err := c.CalculateCapacity(512, 512)
	require.NoError(t, err)

	// LL уровня 2: 128x128, внутренние позиции с отступом 2
	require.Equal(t, 124*124/3, capacity.CapacityBits)
	require.Equal(t, (124*124/3)/8-7, capacity.CapacityBytes)

	_, err = c.CalculateCapacity(512, -1)
	require.ErrorIs(t, err, ErrInvalidImage)
}

// HH sub-bands добавляют емкость сверх глубокого LL
func TestDWTCodec_CapacityGrowsWithHH(t *testing.T) {
	plain, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)
	withHH, err := NewDWTCodec(DWTConfig{UseHH: true})
	require.NoError(t, err)

	base, err := plain.CalculateCapacity(512, 512)
	require.NoError(t, err)
	extended, err := withHH.CalculateCapacity(512, 512)
	require.NoError(t, err)

	require.Greater(t, extended.CapacityBits, base.CapacityBits)
}

func TestDWTCodec_EmbedExtractRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  DWTConfig
	}{
		{name: "ll only defaults", cfg: DWTConfig{}},
		{name: "with hh bands", cfg: DWTConfig{UseHH: true}},
		{name: "three levels", cfg: DWTConfig{Levels: 3, Strength: 8}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewDWTCodec(tc.cfg)
			require.NoError(t, err)

			img := testImage(512, 512, 1)
			payload := []byte("sess-77d0aa55")

			embedded, err := c.Embed(img, 512, 512, payload)
			require.NoError(t, err)
			require.Equal(t, FramedBitLength(len(payload), 3), embedded.BitsEmbedded)

			res, err := c.Extract(embedded.Image, 512, 512)
			require.NoError(t, err)
			require.Equal(t, payload, res.Payload)
			require.Equal(t, 1.0, res.Confidence)
			require.Equal(t, 0.0, res.ErrorRate)
		})
	}
}

func TestDWTCodec_NonSquareDimensions(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	img := testImage(320, 240, 1)
	payload := []byte("vga")

	embedded, err := c.Embed(img, 320, 240, payload)
	require.NoError(t, err)

	res, err := c.Extract(embedded.Image, 320, 240)
	require.NoError(t, err)
	require.Equal(t, payload, res.Payload)
}

func TestDWTCodec_EmbedDoesNotMutateSource(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	img := testImage(256, 256, 1)
	original := make([]byte, len(img))
	copy(original, img)

	_, err = c.Embed(img, 256, 256, []byte("ro"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(original, img))
}

func TestDWTCodec_PayloadTooLarge(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	capacity, err := c.CalculateCapacity(128, 128)
	require.NoError(t, err)

	img := testImage(128, 128, 1)
	_, err = c.Embed(img, 128, 128, make([]byte, capacity.CapacityBytes+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDWTCodec_ExtractUnmarkedImage(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	flat := make([]byte, 256*256)
	for i := range flat {
		flat[i] = 128
	}

	res, err := c.Extract(flat, 256, 256)
	require.NoError(t, err)
	require.Nil(t, res.Payload)
	require.Equal(t, 0.0, res.Confidence)
}

// DCT и DWT не читают кадры друг друга: разный magic
func TestDWTCodec_RejectsForeignWatermark(t *testing.T) {
	dct, err := NewDCTCodec(DCTConfig{})
	require.NoError(t, err)
	dwt, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	img := testImage(512, 512, 1)
	embedded, err := dct.Embed(img, 512, 512, []byte("cross"))
	require.NoError(t, err)

	res, err := dwt.Extract(embedded.Image, 512, 512)
	require.NoError(t, err)
	require.Nil(t, res.Payload)
	require.Less(t, res.Confidence, 1.0)
}

func TestDWTCodec_AnalyzeParameters(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{})
	require.NoError(t, err)

	tests := []struct {
		name         string
		w, h         int
		wantLevels   int
		wantStrength float64
	}{
		{name: "full hd", w: 1920, h: 1080, wantLevels: 3, wantStrength: 8},
		{name: "vga", w: 640, h: 480, wantLevels: 2, wantStrength: 10},
		{name: "thumbnail", w: 200, h: 120, wantLevels: 1, wantStrength: 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			levels, strength := c.AnalyzeParameters(tc.w, tc.h)
			require.Equal(t, tc.wantLevels, levels)
			require.Equal(t, tc.wantStrength, strength)
		})
	}
}

// Реконструкция Хаара точна в float: avg/diff с делением на 2
func TestDWTCodec_TransformRoundTrip(t *testing.T) {
	c, err := NewDWTCodec(DWTConfig{Levels: 2})
	require.NoError(t, err)

	plane := make([][]float64, 16)
	state := uint32(99)
	for i := range plane {
		plane[i] = make([]float64, 16)
		for j := range plane[i] {
			state = state*1664525 + 1013904223
			plane[i][j] = float64(state >> 24)
		}
	}
	original := make([][]float64, 16)
	for i := range original {
		original[i] = append([]float64(nil), plane[i]...)
	}

	c.forward(plane, 16, 16)
	c.inverse(plane, 16, 16)

	for i := range plane {
		for j := range plane[i] {
			require.InDelta(t, original[i][j], plane[i][j], 1e-9)
		}
	}
}
