// Package ingest resolves input files and drives them through the scheduler
// into a single results sink.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/agentic-research/spherepack/api"
	"github.com/agentic-research/spherepack/internal/config"
	"github.com/agentic-research/spherepack/internal/geometry"
	"github.com/agentic-research/spherepack/internal/packing"
	"github.com/agentic-research/spherepack/internal/schedule"
	"github.com/agentic-research/spherepack/internal/sdf"
	"github.com/agentic-research/spherepack/internal/sink"
)

// ErrUnsupportedInput is wrapped by the ConfigError for a path that is neither
// a directory nor an SDF file.
var ErrUnsupportedInput = errors.New("input must be a directory or an .sdf file")

// ConfigError reports a run that cannot start. It is returned before any input
// file is opened.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("bad input %q: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsInputFile reports whether name is a plain or zstd-compressed SDF file.
func IsInputFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".sdf") || strings.HasSuffix(lower, ".sdf.zst")
}

// ResolveInputs expands path into the files to process. A directory yields its
// regular SDF files in listing order, without descending into subdirectories.
func ResolveInputs(fs billy.Filesystem, path string) ([]string, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if !info.IsDir() {
		if !IsInputFile(path) {
			return nil, &ConfigError{Path: path, Err: ErrUnsupportedInput}
		}
		return []string{path}, nil
	}

	entries, err := fs.ReadDir(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	var files []string
	for _, e := range entries {
		if e.Mode().IsRegular() && IsInputFile(e.Name()) {
			files = append(files, fs.Join(path, e.Name()))
		}
	}
	return files, nil
}

// OSFS returns the host filesystem rooted at "/". Paths resolved against it
// must be absolute; see Abs.
func OSFS() billy.Filesystem {
	return osfs.New("/")
}

// Abs makes a host path absolute for use with OSFS. An empty path stays empty.
func Abs(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}

// Driver runs every input file through one scheduler into Sink.
type Driver struct {
	// FS resolves inputs and the rejects file. Defaults to OSFS, in which case
	// relative paths are resolved against the working directory.
	FS billy.Filesystem
	// Engine defaults to the built-in molfile engine.
	Engine geometry.Engine
	// Sink receives rows. The caller owns it and closes it after Run.
	Sink     schedule.Appender
	Config   config.Config
	Observer schedule.Observer
	Log      logrus.FieldLogger
	// RunID identifies the run in logs and stored metadata. Generated when empty.
	RunID string
}

// Run processes path, a single file or a directory of files.
func (d *Driver) Run(ctx context.Context, path string) (api.Summary, error) {
	start := time.Now()
	fs := d.FS
	rejectsPath := d.Config.Rejects
	if fs == nil {
		fs = OSFS()
		abs, err := Abs(path)
		if err != nil {
			return api.Summary{}, &ConfigError{Path: path, Err: err}
		}
		path = abs
		if rejectsPath, err = Abs(rejectsPath); err != nil {
			return api.Summary{}, fmt.Errorf("rejects path: %w", err)
		}
	}
	files, err := ResolveInputs(fs, path)
	if err != nil {
		return api.Summary{}, err
	}

	runID := d.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := d.logger().WithField("run", runID)
	engine := d.Engine
	if engine == nil {
		engine = geometry.NewMolfileEngine()
	}
	worker := packing.NewWorker(engine, d.Config.WorkerOptions(), log)

	seed := d.Config.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var rejects *bufio.Writer
	if rejectsPath != "" {
		f, err := fs.Create(rejectsPath)
		if err != nil {
			return api.Summary{}, fmt.Errorf("create rejects file: %w", err)
		}
		defer func() { _ = f.Close() }() // safe to ignore
		rejects = bufio.NewWriter(f)
	}

	summary := api.Summary{RunID: runID, Files: len(files)}
	log.WithFields(logrus.Fields{"input": path, "files": len(files), "seed": seed}).Info("run started")

	for _, file := range files {
		records, err := readRecords(fs, file)
		if err != nil {
			return d.finish(summary, start), fmt.Errorf("read %s: %w", file, err)
		}
		if ss, ok := d.Sink.(sink.SourceSetter); ok {
			ss.SetSource(file)
		}
		if fo, ok := d.Observer.(schedule.FileObserver); ok {
			fo.FileStarted(file, len(records))
		}

		sched := schedule.New(schedule.Config{
			BatchSize:  d.Config.BatchSize,
			Workers:    d.Config.Workers,
			Radius:     d.Config.SphereRadius,
			BatchDelay: d.Config.Delay(),
		}, worker, d.Sink, d.Observer, rng, log.WithField("file", file))

		rep, runErr := sched.Run(ctx, records)
		summary.Records += rep.Total
		summary.Succeeded += rep.Succeeded
		summary.Failed += rep.Failed

		if rejects != nil {
			if err := writeRejects(rejects, records, rep); err != nil {
				return d.finish(summary, start), fmt.Errorf("write rejects: %w", err)
			}
		}
		if runErr != nil {
			return d.finish(summary, start), fmt.Errorf("%s: %w", file, runErr)
		}
		log.WithFields(logrus.Fields{
			"file":      file,
			"records":   rep.Total,
			"batches":   rep.Batches,
			"succeeded": rep.Succeeded,
			"failed":    rep.Failed,
		}).Info("file complete")
	}

	summary = d.finish(summary, start)
	if rec, ok := d.Sink.(sink.SummaryRecorder); ok {
		if err := rec.RecordSummary(summary); err != nil {
			return summary, fmt.Errorf("record summary: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"records":   summary.Records,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"elapsed":   time.Duration(summary.Seconds * float64(time.Second)).Round(time.Millisecond),
	}).Info("run complete")
	return summary, nil
}

func (d *Driver) logger() logrus.FieldLogger {
	if d.Log != nil {
		return d.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (d *Driver) finish(s api.Summary, start time.Time) api.Summary {
	s.Seconds = time.Since(start).Seconds()
	return s
}

// readRecords loads one input file, decompressing .sdf.zst files.
func readRecords(fs billy.Filesystem, path string) ([]sdf.Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() // safe to ignore

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return sdf.Parse(r)
}

func writeRejects(w *bufio.Writer, records []sdf.Record, rep schedule.Report) error {
	it := rep.FailedSet.Iterator()
	for it.HasNext() {
		if err := sdf.Write(w, records[it.Next()]); err != nil {
			return err
		}
	}
	return w.Flush()
}
