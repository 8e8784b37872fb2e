package recording

import (
	"sort"
	"sync"
)

// MemoryBackend keeps records in process memory. Data survives Close so a
// stopped recording can still be exported.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Open() error  { return nil }
func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) SaveBatch(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, records...)
	sort.SliceStable(m.records, func(i, j int) bool {
		return m.records[i].Timestamp.Before(m.records[j].Timestamp)
	})
	return nil
}

func (m *MemoryBackend) GetHistory(filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Record{}
	for _, r := range m.records {
		if filter.match(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MemoryBackend) GetLatest(target string, count int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Record
	for _, r := range m.records {
		if r.Target == target {
			matched = append(matched, r)
		}
	}

	if len(matched) > count {
		matched = matched[len(matched)-count:]
	}
	result := make([]Record, len(matched))
	copy(result, matched)
	return result, nil
}

func (m *MemoryBackend) GetStats() (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{RecordCount: int64(len(m.records))}
	if n := len(m.records); n > 0 {
		stats.OldestRecord = m.records[0].Timestamp
		stats.NewestRecord = m.records[n-1].Timestamp
	}
	return stats, nil
}

func (m *MemoryBackend) Cleanup(maxRecords int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if over := int64(len(m.records)) - maxRecords; maxRecords > 0 && over > 0 {
		m.records = append([]Record(nil), m.records[over:]...)
	}
	return nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}
