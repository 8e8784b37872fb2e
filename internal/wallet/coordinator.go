// Package wallet coordinates background wallet synchronisation and talks to
// the external wallet service that owns all key material.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the wallet sync state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// ErrSyncInProgress is reported when a sync is requested while one runs.
var ErrSyncInProgress = errors.New("wallet sync already in progress")

// Balances are the amounts reported by the wallet service.
type Balances struct {
	Unshielded Amount `json:"unshielded"`
	Shielded   Amount `json:"shielded"`
	Dust       Amount `json:"dust"`
	Total      Amount `json:"total"`
}

// Map returns the balances keyed by kind.
func (b Balances) Map() map[string]Amount {
	return map[string]Amount{
		"unshielded": b.Unshielded,
		"shielded":   b.Shielded,
		"dust":       b.Dust,
		"total":      b.Total,
	}
}

// Source provides the data a sync gathers.
type Source interface {
	Balances(ctx context.Context) (Balances, error)
	Address(ctx context.Context) (string, error)
}

// StatusFunc is called on every status transition.
type StatusFunc func(status Status, err error)

// Info is the cached result of the last sync.
type Info struct {
	Status   Status
	Address  *string
	Balances map[string]Amount
	LastErr  string
}

// Coordinator runs at most one wallet sync at a time.
type Coordinator struct {
	source   Source
	timeout  time.Duration
	onStatus StatusFunc
	logger   *slog.Logger

	inflight atomic.Bool

	mu       sync.RWMutex
	status   Status
	address  string
	balances map[string]Amount
	lastErr  error
	wg       sync.WaitGroup
}

// NewCoordinator creates an idle coordinator. onStatus may be nil.
func NewCoordinator(source Source, timeout time.Duration, onStatus StatusFunc, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		source:   source,
		timeout:  timeout,
		onStatus: onStatus,
		logger:   logger.With("component", "wallet-sync"),
		status:   StatusIdle,
	}
}

// SetOnStatus replaces the status callback.
func (c *Coordinator) SetOnStatus(fn StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Request starts a sync in the background. It returns false, doing nothing,
// when a sync is already running.
func (c *Coordinator) Request(ctx context.Context) bool {
	if !c.inflight.CompareAndSwap(false, true) {
		c.logger.Debug("sync request ignored, already syncing")
		return false
	}

	c.mu.Lock()
	c.status = StatusSyncing
	c.lastErr = nil
	c.mu.Unlock()
	c.notify(StatusSyncing, nil)

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx))
	return true
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	status := StatusError
	var err error
	defer func() {
		if r := recover(); r != nil {
			status, err = StatusError, fmt.Errorf("wallet sync panicked: %v", r)
		}
		c.finish(status, err)
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	balances, err := c.source.Balances(ctx)
	if err != nil {
		err = fmt.Errorf("get balances: %w", err)
		return
	}
	address, err := c.source.Address(ctx)
	if err != nil {
		err = fmt.Errorf("get address: %w", err)
		return
	}

	c.mu.Lock()
	c.address = address
	c.balances = balances.Map()
	c.mu.Unlock()

	status = StatusSynced
}

// finish records the terminal status, releases the in-flight flag and only
// then publishes the status.
func (c *Coordinator) finish(status Status, err error) {
	c.mu.Lock()
	c.status = status
	c.lastErr = err
	c.mu.Unlock()

	c.inflight.Store(false)

	if err != nil {
		c.logger.Warn("wallet sync failed", "error", err)
	} else {
		c.logger.Info("wallet synced")
	}
	c.notify(status, err)
}

func (c *Coordinator) notify(status Status, err error) {
	c.mu.RLock()
	fn := c.onStatus
	c.mu.RUnlock()

	if fn != nil {
		fn(status, err)
	}
}

// Status returns the current status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Syncing reports whether a sync is in flight.
func (c *Coordinator) Syncing() bool {
	return c.inflight.Load()
}

// Info returns a copy of the cached sync result.
func (c *Coordinator) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := Info{Status: c.status}
	if c.address != "" {
		addr := c.address
		info.Address = &addr
	}
	if c.balances != nil {
		info.Balances = CloneAmounts(c.balances)
	}
	if c.lastErr != nil {
		info.LastErr = c.lastErr.Error()
	}
	return info
}

// Wait blocks until every started sync has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
