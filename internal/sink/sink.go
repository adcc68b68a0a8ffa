// Package sink persists result rows as they arrive.
package sink

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentic-research/spherepack/api"
)

// Sink is an append-only results table. Rows are persisted by Append (or, for
// transactional backends, by the next Flush) without buffering the whole run.
type Sink interface {
	Append(row api.Row) error
	Flush() error
	Close() error
}

// SourceSetter is implemented by sinks that record which input file a row came from.
type SourceSetter interface {
	SetSource(path string)
}

// SummaryRecorder is implemented by sinks that store run metadata.
type SummaryRecorder interface {
	RecordSummary(s api.Summary) error
}

// Format is an output table encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
	FormatJSONL  Format = "jsonl"
)

// FormatFor picks the format from a path's extension. Unknown extensions are CSV.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// Open creates the sink for path, replacing any existing file.
func Open(path, runID string) (Sink, error) {
	var (
		s   Sink
		err error
	)
	switch FormatFor(path) {
	case FormatSQLite:
		s, err = NewSQLite(path, runID)
	case FormatJSONL:
		s, err = NewJSONL(path)
	case FormatCSV:
		s, err = NewCSV(path)
	default:
		return nil, fmt.Errorf("unsupported output %s", path)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Memory keeps rows in memory. It is safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	rows []api.Row
}

// Append implements Sink.
func (m *Memory) Append(row api.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

// Flush implements Sink.
func (m *Memory) Flush() error { return nil }

// Close implements Sink.
func (m *Memory) Close() error { return nil }

// Rows returns a copy of the collected rows in arrival order.
func (m *Memory) Rows() []api.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.Row(nil), m.rows...)
}
