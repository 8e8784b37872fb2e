package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickFunc вызывается на каждом тике цикла
type TickFunc func(ctx context.Context, now time.Time)

// Loop владеет единственным периодическим таймером.
// Start и Stop идемпотентны.
type Loop struct {
	interval time.Duration
	tick     TickFunc
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLoop создаёт цикл с заданным периодом
func NewLoop(interval time.Duration, tick TickFunc, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// Start запускает цикл; первый тик выполняется сразу
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.run(ctx)
	l.logger.Info("Poll loop started", "interval", l.interval)
}

// Stop останавливает цикл и дожидается завершения текущего тика
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info("Poll loop stopped")
}

// Running сообщает, запущен ли цикл
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	// базовое время до создания тикера: последующие тики кратны ему
	base := time.Now()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// Первый опрос сразу
	l.tick(ctx, base)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.tick(ctx, now)
		}
	}
}
