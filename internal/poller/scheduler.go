package poller

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Category независимо опрашиваемая группа данных
type Category string

const (
	CategoryNode          Category = "node"
	CategoryIndexer       Category = "indexer"
	CategoryProofServer   Category = "proofServer"
	CategoryProofVersions Category = "proofVersions"
	CategoryDocker        Category = "docker"
	CategoryHealth        Category = "health"
)

// Categories все категории в порядке отображения
var Categories = []Category{
	CategoryNode,
	CategoryIndexer,
	CategoryProofServer,
	CategoryProofVersions,
	CategoryDocker,
	CategoryHealth,
}

const (
	// MinInterval минимальный интервал опроса категории
	MinInterval = time.Second
	// TickInterval период цикла; меньше любого допустимого интервала,
	// поэтому фактический период опроса кратен секунде
	TickInterval = time.Second
	// MaxInterval максимальный интервал опроса категории
	MaxInterval = 24 * time.Hour

	// dueTolerance поглощает дрожание тиков относительно времени отметки
	dueTolerance = TickInterval / 2
)

var (
	ErrUnknownCategory  = errors.New("unknown polling category")
	ErrIntervalTooShort = errors.New("polling interval is below minimum")
	ErrIntervalTooLong  = errors.New("polling interval is above maximum")
)

// Setting настройка опроса одной категории
type Setting struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"-"`
}

// Policy политика опроса по категориям
type Policy map[Category]Setting

// DefaultPolicy все категории включены со своими интервалами
func DefaultPolicy() Policy {
	return Policy{
		CategoryNode:          {Enabled: true, Interval: 3 * time.Second},
		CategoryIndexer:       {Enabled: true, Interval: 5 * time.Second},
		CategoryProofServer:   {Enabled: true, Interval: 5 * time.Second},
		CategoryProofVersions: {Enabled: true, Interval: time.Minute},
		CategoryDocker:        {Enabled: true, Interval: 5 * time.Second},
		CategoryHealth:        {Enabled: true, Interval: 3 * time.Second},
	}
}

// ParseCategory проверяет имя категории
func ParseCategory(name string) (Category, error) {
	for _, c := range Categories {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// Scheduler решает, какие категории пора опрашивать
type Scheduler struct {
	mu        sync.Mutex
	policy    Policy
	lastFetch map[Category]time.Time
}

// NewScheduler создаёт планировщик с политикой по умолчанию
func NewScheduler() *Scheduler {
	return &Scheduler{
		policy:    DefaultPolicy(),
		lastFetch: make(map[Category]time.Time),
	}
}

// Due возвращает признак "пора опрашивать" для каждой категории.
// Отмеченной категории сразу записывается now как время последнего опроса,
// независимо от успеха самого запроса.
func (s *Scheduler) Due(now time.Time) map[Category]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		setting := s.policy[c]
		if !setting.Enabled {
			due[c] = false
			continue
		}

		last, fetched := s.lastFetch[c]
		if !fetched || now.Sub(last) >= setting.Interval-dueTolerance {
			due[c] = true
			s.lastFetch[c] = now
			continue
		}
		due[c] = false
	}
	return due
}

// SetInterval меняет интервал категории и включает её.
// При ошибке состояние не меняется.
func (s *Scheduler) SetInterval(c Category, interval time.Duration) error {
	if _, err := ParseCategory(string(c)); err != nil {
		return err
	}
	if interval < MinInterval {
		return fmt.Errorf("%w: %dms < %dms", ErrIntervalTooShort, interval.Milliseconds(), MinInterval.Milliseconds())
	}
	if interval > MaxInterval {
		return fmt.Errorf("%w: %dms > %dms", ErrIntervalTooLong, interval.Milliseconds(), MaxInterval.Milliseconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy[c] = Setting{Enabled: true, Interval: interval}
	return nil
}

// SetEnabled включает или выключает опрос категории
func (s *Scheduler) SetEnabled(c Category, enabled bool) error {
	if _, err := ParseCategory(string(c)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	setting := s.policy[c]
	setting.Enabled = enabled
	s.policy[c] = setting
	return nil
}

// Policy возвращает копию текущей политики
func (s *Scheduler) Policy() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(Policy, len(s.policy))
	for c, setting := range s.policy {
		out[c] = setting
	}
	return out
}
