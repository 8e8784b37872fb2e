package recording

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pv/devnet-panel/internal/health"
)

// cleanupInterval how often SaveBatch trims the backend to maxRecords
const cleanupInterval = time.Minute

// Manager manages recording through a backend
type Manager struct {
	mu          sync.RWMutex
	enabled     bool
	backendOpen bool
	backend     Backend
	maxRecords  int64
	lastCleanup time.Time
	logger      *slog.Logger
}

// NewManager creates a new recording manager
func NewManager(backend Backend, maxRecords int64, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:    backend,
		maxRecords: maxRecords,
		logger:     logger.With("component", "recording"),
	}
}

// Start begins recording
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled {
		return nil // Already recording
	}

	if err := m.backend.Open(); err != nil {
		return fmt.Errorf("open backend: %w", err)
	}

	m.enabled = true
	m.backendOpen = true
	m.logger.Info("Recording started")
	return nil
}

// Stop stops recording
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return nil // Already stopped
	}

	m.enabled = false
	m.backendOpen = false

	if err := m.backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}

	m.logger.Info("Recording stopped")
	return nil
}

// IsRecording returns whether recording is active
func (m *Manager) IsRecording() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SaveBatch records multiple probe samples (if recording is enabled)
func (m *Manager) SaveBatch(records []Record) error {
	m.mu.RLock()
	enabled := m.enabled
	m.mu.RUnlock()

	if !enabled || len(records) == 0 {
		return nil
	}

	if err := m.backend.SaveBatch(records); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}

	// Periodic cleanup
	m.mu.Lock()
	if time.Since(m.lastCleanup) > cleanupInterval {
		m.lastCleanup = time.Now()
		m.mu.Unlock()

		if err := m.backend.Cleanup(m.maxRecords); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	} else {
		m.mu.Unlock()
	}

	return nil
}

// RecordReport stores one probe report. Its signature matches
// collector.ProbeFunc so it can be installed as the probe hook.
func (m *Manager) RecordReport(at time.Time, report health.Report) {
	if err := m.SaveBatch(FromReport(at, report)); err != nil {
		m.logger.Warn("Save probe samples failed", "error", err)
	}
}

// withBackend opens the backend temporarily when recording is stopped
func (m *Manager) withBackend(fn func() error) error {
	m.mu.RLock()
	backendOpen := m.backendOpen
	m.mu.RUnlock()

	if !backendOpen {
		if err := m.backend.Open(); err != nil {
			return fmt.Errorf("open backend: %w", err)
		}
		defer m.backend.Close()
	}
	return fn()
}

// GetStats returns recording statistics
func (m *Manager) GetStats() (Stats, error) {
	var stats Stats
	err := m.withBackend(func() error {
		var err error
		stats, err = m.backend.GetStats()
		return err
	})
	if err != nil {
		return Stats{IsRecording: m.IsRecording()}, fmt.Errorf("get stats: %w", err)
	}

	stats.IsRecording = m.IsRecording()
	return stats, nil
}

// GetHistory retrieves recorded samples with optional filters
func (m *Manager) GetHistory(filter Filter) ([]Record, error) {
	var records []Record
	err := m.withBackend(func() error {
		var err error
		records, err = m.backend.GetHistory(filter)
		return err
	})
	return records, err
}

// GetLatest returns the last count samples of a target
func (m *Manager) GetLatest(target string, count int) ([]Record, error) {
	var records []Record
	err := m.withBackend(func() error {
		var err error
		records, err = m.backend.GetLatest(target, count)
		return err
	})
	return records, err
}

// Clear removes all recorded data
func (m *Manager) Clear() error {
	return m.withBackend(m.backend.Clear)
}
