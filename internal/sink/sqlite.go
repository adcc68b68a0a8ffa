package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/spherepack/api"
)

// SQLite stores rows in a results table. Rows become durable at every Flush,
// which the scheduler calls after each batch.
type SQLite struct {
	db     *sql.DB
	tx     *sql.Tx
	stmt   *sql.Stmt
	runID  string
	source string
	mu     sync.Mutex
}

// NewSQLite creates a fresh database at path, replacing any existing file.
func NewSQLite(path, runID string) (*SQLite, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		files INTEGER,
		records INTEGER,
		succeeded INTEGER,
		failed INTEGER
	);
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source TEXT,
		mol_name TEXT NOT NULL,
		volume TEXT NOT NULL,
		sphere_count INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec("INSERT INTO runs (id, started_at) VALUES (?, ?)", runID, time.Now().UnixNano()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}

	s := &SQLite{db: db, runID: runID}
	if err := s.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) beginTx() error {
	var err error
	s.tx, err = s.db.Begin()
	if err != nil {
		return err
	}
	s.stmt, err = s.tx.Prepare(`
		INSERT INTO results (run_id, source, mol_name, volume, sphere_count)
		VALUES (?, ?, ?, ?, ?)
	`)
	return err
}

func (s *SQLite) commitTx() error {
	if s.stmt != nil {
		_ = s.stmt.Close()
		s.stmt = nil
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// SetSource implements SourceSetter.
func (s *SQLite) SetSource(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = path
}

// Append implements Sink.
func (s *SQLite) Append(row api.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stmt == nil {
		return fmt.Errorf("sqlite sink closed")
	}
	_, err := s.stmt.Exec(s.runID, s.source, row.Name, row.Volume, row.SphereCount)
	if err != nil {
		return fmt.Errorf("insert %s: %w", row.Name, err)
	}
	return nil
}

// Flush implements Sink by committing the open transaction.
func (s *SQLite) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitTx(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return s.beginTx()
}

// RecordSummary implements SummaryRecorder.
func (s *SQLite) RecordSummary(sum api.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return fmt.Errorf("sqlite sink closed")
	}
	// The open transaction holds the only connection.
	_, err := s.tx.Exec(`UPDATE runs SET finished_at = ?, files = ?, records = ?, succeeded = ?, failed = ? WHERE id = ?`,
		time.Now().UnixNano(), sum.Files, sum.Records, sum.Succeeded, sum.Failed, s.runID)
	return err
}

// Close implements Sink.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitTx(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

var (
	_ Sink            = (*SQLite)(nil)
	_ SourceSetter    = (*SQLite)(nil)
	_ SummaryRecorder = (*SQLite)(nil)
)
