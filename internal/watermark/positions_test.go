package watermark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMidBandPositions_ClassicEightByEight(t *testing.T) {
	positions := midBandPositions(8)

	// Полоса u+v ∈ [3..6] блока 8x8 — 22 позиции
	require.Len(t, positions, 22)
	for _, p := range positions {
		sum := p.U + p.V
		require.GreaterOrEqual(t, sum, 3)
		require.LessOrEqual(t, sum, 6)
		require.Less(t, p.U, 8)
		require.Less(t, p.V, 8)
	}
}

func TestMidBandPositions_Deterministic(t *testing.T) {
	require.Equal(t, midBandPositions(8), midBandPositions(8))
	require.Equal(t, midBandPositions(16), midBandPositions(16))
}

func TestMidBandPairs_DropsOddTail(t *testing.T) {
	pairs := midBandPairs(8)
	require.Len(t, pairs, 11)

	// Пары не пересекаются между собой
	seen := map[coeffPos]bool{}
	for _, pair := range pairs {
		require.False(t, seen[pair[0]])
		require.False(t, seen[pair[1]])
		seen[pair[0]] = true
		seen[pair[1]] = true
	}
}

func TestLLPositions_InteriorOnly(t *testing.T) {
	positions := llPositions(128, 128, 2)
	require.Len(t, positions, 124*124)

	for _, p := range positions {
		require.GreaterOrEqual(t, p.U, 2)
		require.Less(t, p.U, 126)
		require.GreaterOrEqual(t, p.V, 2)
		require.Less(t, p.V, 126)
	}
}

func TestHHPositions_RegionBoundsAndOrder(t *testing.T) {
	rows, cols, level, margin := 64, 64, 1, 2
	positions := hhPositions(rows, cols, level, margin)
	require.NotEmpty(t, positions)

	// Регион HH уровня 1: [32..64) по обоим измерениям, с отступом
	for _, p := range positions {
		require.GreaterOrEqual(t, p.U, 34)
		require.Less(t, p.U, 62)
		require.GreaterOrEqual(t, p.V, 34)
		require.Less(t, p.V, 62)
	}

	// Порядок от центра наружу: квадрат расстояния не убывает
	mid := (32 + 64) / 2
	prev := -1
	for _, p := range positions {
		d := sq(p.U-mid) + sq(p.V-mid)
		require.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

// Порядок обхода — функция только размеров: embed и extract обязаны
// видеть одинаковый план
func TestHHPositions_Deterministic(t *testing.T) {
	require.Equal(t, hhPositions(512, 512, 2, 2), hhPositions(512, 512, 2, 2))
}
