package watermark

/*
Файл positions.go — единственный источник правды о том, какие коэффициенты
несут биты водяного знака. Выбор позиций реализован как чистая функция от
(размеров, конфигурации) и ничего не знает о пиксельных данных.

Это критический инвариант корректности: embed и extract обязаны обходить
позиции в одном и том же детерминированном порядке. Любое расхождение
молча разрушает восстановление payload.
*/

import "sort"

// coeffPos — позиция коэффициента (u — строка, v — столбец) внутри блока/региона
type coeffPos struct {
	U int
	V int
}

// midBandPositions возвращает среднечастотную полосу DCT-блока в порядке
// обхода по диагоналям (u+v возрастает, внутри диагонали — по u).
//
// Почему именно средние частоты: изменения низких частот видимы глазом,
// высокие частоты уничтожаются компрессией. Для blockSize=8 полоса
// u+v ∈ [3..6] дает классические 22 позиции JPEG mid-band.
func midBandPositions(blockSize int) []coeffPos {
	lo := blockSize/2 - 1
	hi := blockSize - 2

	var out []coeffPos
	for sum := lo; sum <= hi; sum++ {
		for u := 0; u <= sum; u++ {
			v := sum - u
			if u < blockSize && v < blockSize {
				out = append(out, coeffPos{U: u, V: v})
			}
		}
	}
	return out
}

// midBandPairs группирует полосу в пары коэффициентов. Один бит кадра
// расходует одну пару (непарный хвост отбрасывается) — консервативный
// учет емкости, floor-деление зафиксировано решением по Open Question.
func midBandPairs(blockSize int) [][2]coeffPos {
	positions := midBandPositions(blockSize)

	pairs := make([][2]coeffPos, 0, len(positions)/2)
	for i := 0; i+1 < len(positions); i += 2 {
		pairs = append(pairs, [2]coeffPos{positions[i], positions[i+1]})
	}
	return pairs
}

// llPositions перечисляет внутренние позиции LL sub-band растровым порядком.
// Отступ margin от границ региона исключает краевые артефакты реконструкции.
func llPositions(llRows, llCols, margin int) []coeffPos {
	var out []coeffPos
	for u := margin; u < llRows-margin; u++ {
		for v := margin; v < llCols-margin; v++ {
			out = append(out, coeffPos{U: u, V: v})
		}
	}
	return out
}

// hhPositions перечисляет внутренние позиции HH sub-band уровня level
// для изображения rows×cols, упорядоченные от центра региона наружу.
//
// Энергия диагональных деталей статистически концентрируется к центру кадра,
// но сам порядок обязан быть независимым от данных (инвариант embed/extract),
// поэтому сортировка идет по фиксированной геометрии, а не по значениям.
func hhPositions(rows, cols, level, margin int) []coeffPos {
	rLo, rHi := rows>>level, rows>>(level-1)
	cLo, cHi := cols>>level, cols>>(level-1)

	var out []coeffPos
	for u := rLo + margin; u < rHi-margin; u++ {
		for v := cLo + margin; v < cHi-margin; v++ {
			out = append(out, coeffPos{U: u, V: v})
		}
	}

	rMid := (rLo + rHi) / 2
	cMid := (cLo + cHi) / 2
	sort.SliceStable(out, func(i, j int) bool {
		di := sq(out[i].U-rMid) + sq(out[i].V-cMid)
		dj := sq(out[j].U-rMid) + sq(out[j].V-cMid)
		if di != dj {
			return di < dj
		}
		if out[i].U != out[j].U {
			return out[i].U < out[j].U
		}
		return out[i].V < out[j].V
	})
	return out
}

func sq(x int) int { return x * x }
