// Package progress reports scheduler activity to logs or a terminal bar.
package progress

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/agentic-research/spherepack/internal/schedule"
)

// Log writes scheduler events to a logger.
type Log struct {
	log logrus.FieldLogger
}

// NewLog returns an observer logging to log.
func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (l *Log) FileStarted(path string, records int) {
	l.log.WithFields(logrus.Fields{"file": path, "records": records}).Info("processing file")
}

func (l *Log) Progress(processed, total int) {
	l.log.WithFields(logrus.Fields{"processed": processed, "total": total}).Info("batch complete")
}

func (l *Log) RecordFailed(ordinal int, name string, err error) {
	l.log.WithFields(logrus.Fields{"ordinal": ordinal, "mol": name}).WithError(err).Warn("molecule skipped")
}

func (l *Log) BatchDispatched(batch int, indices []int) {
	l.log.WithFields(logrus.Fields{"batch": batch, "indices": indices}).Debug("batch dispatched")
}

func (l *Log) StateChanged(s schedule.State) {
	l.log.WithField("state", s.String()).Debug("scheduler state")
}

// Bar draws a progress bar per input file.
type Bar struct {
	mu     sync.Mutex
	w      io.Writer
	bar    *progressbar.ProgressBar
	file   string
	failed int
}

// NewBar returns an observer drawing to w.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

func (b *Bar) FileStarted(path string, records int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
	}
	b.file = filepath.Base(path)
	b.failed = 0
	b.bar = progressbar.NewOptions(records,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(b.file),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(b.w) }),
	)
}

func (b *Bar) Progress(processed, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total, progressbar.OptionSetWriter(b.w), progressbar.OptionShowCount())
	}
	_ = b.bar.Set(processed)
}

func (b *Bar) RecordFailed(int, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed++
	if b.bar != nil {
		b.bar.Describe(fmt.Sprintf("%s (%d failed)", b.file, b.failed))
	}
}

// Finish completes the current bar.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}

var (
	_ schedule.Observer      = (*Log)(nil)
	_ schedule.BatchObserver = (*Log)(nil)
	_ schedule.StateObserver = (*Log)(nil)
	_ schedule.FileObserver  = (*Log)(nil)
	_ schedule.Observer      = (*Bar)(nil)
	_ schedule.FileObserver  = (*Bar)(nil)
)
