// Package sqlite is the SQLite implementation of the access log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ooyeku/crux/internal/storage"
)

// Store is a SQLite-backed access log.
type Store struct {
	db *sql.DB
}

var _ storage.AccessLog = (*Store)(nil)

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS access_log (
			request_id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			route TEXT,
			status INTEGER NOT NULL,
			client_ip TEXT,
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_log_created_at ON access_log(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record implements storage.AccessLog.
func (s *Store) Record(ctx context.Context, rec storage.AccessRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO access_log
		 (request_id, method, path, route, status, client_ip, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Method, rec.Path, rec.Route, rec.Status,
		rec.ClientIP, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record access log entry: %w", err)
	}
	return nil
}

// Recent implements storage.AccessLog, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]storage.AccessRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, method, path, route, status, client_ip, duration_ms, created_at
		 FROM access_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query access log: %w", err)
	}
	defer rows.Close()

	var records []storage.AccessRecord
	for rows.Next() {
		var rec storage.AccessRecord
		if err := rows.Scan(&rec.RequestID, &rec.Method, &rec.Path, &rec.Route,
			&rec.Status, &rec.ClientIP, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan access log row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
