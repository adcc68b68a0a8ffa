package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/spherepack/api"
)

var jsonOpts = &oj.Options{Sort: true}

// JSONL writes one JSON object per row.
type JSONL struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewJSONL creates (or truncates) path.
func NewJSONL(path string) (*JSONL, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &JSONL{w: f, closer: f}, nil
}

// NewJSONLWriter writes rows to w. Close does not close w.
func NewJSONLWriter(w io.Writer) *JSONL {
	return &JSONL{w: w}
}

// RowJSON renders a row as a single-line JSON object.
func RowJSON(row api.Row) string {
	return oj.JSON(map[string]any{
		"mol_name":     row.Name,
		"volume":       row.Volume,
		"sphere_count": row.SphereCount,
	}, jsonOpts)
}

// Append implements Sink.
func (j *JSONL) Append(row api.Row) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := io.WriteString(j.w, RowJSON(row)+"\n"); err != nil {
		return fmt.Errorf("write %s: %w", row.Name, err)
	}
	return nil
}

// Flush implements Sink.
func (j *JSONL) Flush() error { return nil }

// Close implements Sink.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closer == nil {
		return nil
	}
	err := j.closer.Close()
	j.closer = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
