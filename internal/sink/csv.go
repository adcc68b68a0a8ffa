package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/agentic-research/spherepack/api"
)

// ErrLocked is returned when another process holds the output file.
var ErrLocked = errors.New("output file is locked by another run")

// CSV writes rows to a comma-separated table. Every Append reaches the
// underlying writer before it returns.
type CSV struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	unlock func() error
}

// NewCSV truncates path, takes an exclusive lock on it and writes the header.
func NewCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	unlock, err := lockFile(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	// Truncate only once the lock is held so a concurrent run keeps its rows.
	if err := f.Truncate(0); err != nil {
		_ = unlock()
		_ = f.Close()
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}
	c, err := newCSV(f, f)
	if err != nil {
		_ = unlock()
		_ = f.Close()
		return nil, err
	}
	c.unlock = unlock
	return c, nil
}

// NewCSVWriter writes a table to w. Close does not close w.
func NewCSVWriter(w io.Writer) (*CSV, error) {
	return newCSV(w, nil)
}

func newCSV(w io.Writer, closer io.Closer) (*CSV, error) {
	c := &CSV{w: csv.NewWriter(w), closer: closer}
	if err := c.w.Write(api.Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return c, nil
}

// Append implements Sink.
func (c *CSV) Append(row api.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write([]string{row.Name, row.Volume, strconv.Itoa(row.SphereCount)}); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Flush implements Sink.
func (c *CSV) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	return c.w.Error()
}

// Close implements Sink.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	err := c.w.Error()
	if c.unlock != nil {
		err = errors.Join(err, c.unlock())
		c.unlock = nil
	}
	if c.closer != nil {
		err = errors.Join(err, c.closer.Close())
		c.closer = nil
	}
	return err
}
