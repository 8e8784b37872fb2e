package collector

// HistoryCapacity максимальное число хранимых замеров
const HistoryCapacity = 30

// HistoryBuffer ограниченная FIFO-очередь времени отклика (мс).
// При переполнении вытесняется самый старый замер.
type HistoryBuffer struct {
	samples []int64
	limit   int
}

// NewHistoryBuffer создаёт буфер ёмкостью HistoryCapacity
func NewHistoryBuffer() *HistoryBuffer {
	return &HistoryBuffer{limit: HistoryCapacity}
}

// Append добавляет замер
func (h *HistoryBuffer) Append(ms int64) {
	h.samples = append(h.samples, ms)
	if over := len(h.samples) - h.limit; over > 0 {
		h.samples = append(h.samples[:0], h.samples[over:]...)
	}
}

// Len текущее число замеров
func (h *HistoryBuffer) Len() int {
	return len(h.samples)
}

// Values возвращает копию замеров в порядке поступления
func (h *HistoryBuffer) Values() []int64 {
	out := make([]int64, len(h.samples))
	copy(out, h.samples)
	return out
}
