// Package recording persists health probe samples with pluggable backends
package recording

import (
	"errors"
	"time"

	"github.com/pv/devnet-panel/internal/health"
)

// Backend defines the interface for recording storage backends.
type Backend interface {
	// Open initializes the backend; repeated calls are no-ops
	Open() error

	// Close releases the backend
	Close() error

	// SaveBatch stores multiple records in a single transaction
	SaveBatch(records []Record) error

	// GetHistory retrieves records matching the filter, oldest first
	GetHistory(filter Filter) ([]Record, error)

	// GetLatest returns the last count records of a target, oldest first
	GetLatest(target string, count int) ([]Record, error)

	// GetStats returns storage statistics
	GetStats() (Stats, error)

	// Cleanup removes oldest records to maintain maxRecords limit
	Cleanup(maxRecords int64) error

	// Clear removes all records
	Clear() error
}

// Record is one probe result of one target
type Record struct {
	Target         string    `json:"target"`
	Healthy        bool      `json:"healthy"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Filter defines criteria for filtering records during export
type Filter struct {
	From   *time.Time // nil = no lower bound
	To     *time.Time // nil = no upper bound
	Target string     // empty = all targets
}

func (f Filter) match(r Record) bool {
	if f.Target != "" && r.Target != f.Target {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// Stats contains storage statistics
type Stats struct {
	RecordCount  int64     `json:"recordCount"`
	SizeBytes    int64     `json:"sizeBytes"`
	OldestRecord time.Time `json:"oldestRecord,omitempty"`
	NewestRecord time.Time `json:"newestRecord,omitempty"`
	IsRecording  bool      `json:"isRecording"`
}

// ErrNotOpen is returned by a backend used before Open
var ErrNotOpen = errors.New("recording backend is not open")

// FromReport converts a probe report into one record per target
func FromReport(at time.Time, report health.Report) []Record {
	records := make([]Record, 0, len(health.Targets))
	for _, t := range health.Targets {
		r := report.Get(t)
		rec := Record{
			Target:    string(t),
			Healthy:   r.Healthy,
			Error:     r.Error,
			Timestamp: at,
		}
		if r.ResponseTimeMs != nil {
			ms := *r.ResponseTimeMs
			rec.ResponseTimeMs = &ms
		}
		records = append(records, rec)
	}
	return records
}
