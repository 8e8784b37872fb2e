package client

import (
	"sync"
	"time"
)

const (
	// InitialBackoff первая задержка переподключения
	InitialBackoff = time.Second
	// MaxBackoff верхняя граница задержки
	MaxBackoff = 30 * time.Second
)

// Backoff экспоненциальная задержка: 1s, 2s, 4s ... 30s
type Backoff struct {
	mu      sync.Mutex
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff создаёт задержку с параметрами по умолчанию
func NewBackoff() *Backoff {
	return &Backoff{
		initial: InitialBackoff,
		max:     MaxBackoff,
		current: InitialBackoff,
	}
}

// Next возвращает текущую задержку и удваивает следующую
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset возвращает задержку к начальной после успешного подключения
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
}

// Peek текущая задержка без изменения состояния
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
