package collector

import "time"

// BlockTimeEstimator оценивает средний интервал между блоками по двум
// последним наблюдениям с различной высотой.
type BlockTimeEstimator struct {
	lastHeight *int64
	lastTime   time.Time
}

// Observe принимает высоту, наблюдённую в момент at, и возвращает среднее
// время блока в миллисекундах. Результат nil, если высота отсутствует, базы
// ещё нет или высота не выросла. База сдвигается только при росте высоты.
func (e *BlockTimeEstimator) Observe(height *int64, at time.Time) *float64 {
	if height == nil {
		return nil
	}
	h := *height

	var avg *float64
	if e.lastHeight != nil && h > *e.lastHeight {
		elapsed := float64(at.Sub(e.lastTime).Milliseconds())
		v := elapsed / float64(h-*e.lastHeight)
		avg = &v
	}

	if e.lastHeight == nil || h > *e.lastHeight {
		e.lastHeight = &h
		e.lastTime = at
	}
	return avg
}
