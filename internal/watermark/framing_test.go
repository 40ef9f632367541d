package watermark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_BitLength(t *testing.T) {
	payload := []byte("sess-1234")
	bits := Frame(payload, MagicDCT, codecVersion, 3)

	require.Len(t, bits, FramedBitLength(len(payload), 3))
	for _, b := range bits {
		require.True(t, b == 0 || b == 1)
	}
}

func TestUnframe_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		redundancy int
	}{
		{name: "typical session id", payload: []byte("sess-deadbeef"), redundancy: 3},
		{name: "empty payload", payload: []byte{}, redundancy: 3},
		{name: "no redundancy", payload: []byte("x"), redundancy: 1},
		{name: "binary payload", payload: []byte{0x00, 0xFF, 0x80, 0x01}, redundancy: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bits := Frame(tc.payload, MagicDWT, codecVersion, tc.redundancy)
			res := Unframe(bits, MagicDWT, codecVersion, tc.redundancy)

			require.Equal(t, tc.payload, res.Payload)
			require.Equal(t, 0.0, res.ErrorRate)
			require.Equal(t, 1.0, res.Confidence)
		})
	}
}

// Одиночный перевернутый бит внутри окна повторов исправляется голосованием,
// но окно помечается зашумленным и снижает confidence.
func TestUnframe_MajorityVoteCorrectsFlips(t *testing.T) {
	payload := []byte("watermark")
	bits := Frame(payload, MagicDCT, codecVersion, 3)

	// Портим по одному биту в трех разных окнах повторов
	flipped := []int{0, 30, 63}
	for _, w := range flipped {
		bits[w*3] ^= 1
	}

	res := Unframe(bits, MagicDCT, codecVersion, 3)
	require.Equal(t, payload, res.Payload)
	require.Greater(t, res.ErrorRate, 0.0)
	require.Less(t, res.Confidence, 1.0)
	require.InDelta(t, 1.0-res.ErrorRate, res.Confidence, 1e-12)
}

// Ничья при четной избыточности трактуется как 0
func TestUnframe_TieVotesZero(t *testing.T) {
	payload := []byte{0xFF}
	bits := Frame(payload, MagicDCT, codecVersion, 2)

	// Первое окно payload: было {1,1}, делаем {1,0} — ничья
	payloadStart := headerSize * 8 * 2
	bits[payloadStart+1] = 0

	res := Unframe(bits, MagicDCT, codecVersion, 2)
	require.Equal(t, []byte{0x7F}, res.Payload)
}

func TestUnframe_WrongMagic(t *testing.T) {
	bits := Frame([]byte("abc"), MagicDCT, codecVersion, 3)

	res := Unframe(bits, MagicDWT, codecVersion, 3)
	require.Nil(t, res.Payload)
	require.Equal(t, 0.0, res.Confidence)
}

func TestUnframe_WrongVersion(t *testing.T) {
	bits := Frame([]byte("abc"), MagicDCT, codecVersion+1, 3)

	res := Unframe(bits, MagicDCT, codecVersion, 3)
	require.Nil(t, res.Payload)
	require.Equal(t, 0.3, res.Confidence)
}

// Поле length заявляет больше байтов, чем реально извлечено из канала
func TestUnframe_TruncatedPayload(t *testing.T) {
	payload := []byte("0123456789")
	bits := Frame(payload, MagicDCT, codecVersion, 3)

	truncated := bits[:(headerSize+5)*8*3]
	res := Unframe(truncated, MagicDCT, codecVersion, 3)
	require.Nil(t, res.Payload)
	require.Equal(t, 0.5, res.Confidence)
}

func TestUnframe_TooShortForHeader(t *testing.T) {
	res := Unframe(make([]byte, 10), MagicDCT, codecVersion, 3)
	require.Nil(t, res.Payload)
	require.Equal(t, 0.0, res.Confidence)
	require.Equal(t, 1.0, res.ErrorRate)
}

// Мусорные биты после конца кадра не влияют на errorRate: кодек читает все
// позиции подряд, и хвост за заявленной длиной всегда случаен.
func TestUnframe_TrailingGarbageIgnored(t *testing.T) {
	payload := []byte("tail")
	bits := Frame(payload, MagicDCT, codecVersion, 3)

	garbage := make([]byte, 90)
	for i := range garbage {
		if i%3 == 0 {
			garbage[i] = 1 // Неединогласные окна за пределами кадра
		}
	}
	res := Unframe(append(bits, garbage...), MagicDCT, codecVersion, 3)

	require.Equal(t, payload, res.Payload)
	require.Equal(t, 0.0, res.ErrorRate)
	require.Equal(t, 1.0, res.Confidence)
}
