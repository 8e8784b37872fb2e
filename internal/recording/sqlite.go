package recording

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores records in a SQLite database file
type SQLiteBackend struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend creates a backend for dbPath; the file is opened by Open
func NewSQLiteBackend(dbPath string) *SQLiteBackend {
	return &SQLiteBackend{path: dbPath}
}

func (s *SQLiteBackend) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return err
	}

	s.db = db
	return nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS probes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target TEXT NOT NULL,
			healthy INTEGER NOT NULL,
			response_time_ms INTEGER,
			error TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_probes_lookup
			ON probes(target, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteBackend) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.db, nil
}

func (s *SQLiteBackend) SaveBatch(records []Record) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO probes (target, healthy, response_time_ms, error, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var rt sql.NullInt64
		if r.ResponseTimeMs != nil {
			rt = sql.NullInt64{Int64: *r.ResponseTimeMs, Valid: true}
		}
		if _, err := stmt.Exec(r.Target, r.Healthy, rt, r.Error, r.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) GetHistory(filter Filter) ([]Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Target != "" {
		where = append(where, "target = ?")
		args = append(args, filter.Target)
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.From.UnixMilli())
	}
	if filter.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.To.UnixMilli())
	}

	query := `SELECT target, healthy, response_time_ms, error, timestamp FROM probes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteBackend) GetLatest(target string, count int) ([]Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT target, healthy, response_time_ms, error, timestamp FROM (
			SELECT id, target, healthy, response_time_ms, error, timestamp FROM probes
			WHERE target = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`,
		target, count,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var (
			r  Record
			rt sql.NullInt64
			ts int64
		)
		if err := rows.Scan(&r.Target, &r.Healthy, &rt, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if rt.Valid {
			v := rt.Int64
			r.ResponseTimeMs = &v
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteBackend) GetStats() (Stats, error) {
	db, err := s.conn()
	if err != nil {
		return Stats{}, err
	}

	var (
		stats          Stats
		oldest, newest sql.NullInt64
	)
	err = db.QueryRow(`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM probes`).
		Scan(&stats.RecordCount, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestRecord = time.UnixMilli(oldest.Int64).UTC()
	}
	if newest.Valid {
		stats.NewestRecord = time.UnixMilli(newest.Int64).UTC()
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (s *SQLiteBackend) Cleanup(maxRecords int64) error {
	if maxRecords <= 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		DELETE FROM probes WHERE id IN (
			SELECT id FROM probes ORDER BY timestamp ASC, id ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM probes) - ?)
		)`, maxRecords)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Clear() error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM probes`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}
