// Package packing turns one molecule record into a sphere-packing estimate.
package packing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentic-research/spherepack/api"
	"github.com/agentic-research/spherepack/internal/geometry"
)

const (
	// PackingEfficiency is the volume fraction occupied by randomly packed equal spheres.
	PackingEfficiency = 0.64
	DefaultRadius     = 1.5
	DefaultSeed       = int64(0xf00d)
	DefaultMaxIters   = 200
)

// Stage identifies where a record failed.
type Stage string

const (
	StageParse    Stage = "parse"
	StageSanitize Stage = "sanitize"
	StageEmbed    Stage = "embed"
	StageOptimize Stage = "optimize"
	StageVolume   Stage = "volume"
	StageTimeout  Stage = "timeout"
	StagePanic    Stage = "panic"
)

// Task is one dispatched record.
type Task struct {
	// Ordinal is 1-based and only used for logging.
	Ordinal int
	Name    string
	Block   string
	Radius  float64
}

// RecordError is a per-molecule failure. It never aborts a run.
type RecordError struct {
	Ordinal int
	Name    string
	Stage   Stage
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("molecule #%d (%s): %s failed: %v", e.Ordinal, e.Name, e.Stage, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Result is the outcome of one Task: Row on success, Err otherwise.
type Result struct {
	Task Task
	Row  *api.Row
	Err  error
}

// OK reports whether the task produced a row.
func (r Result) OK() bool { return r.Row != nil }

// Options tune the engine calls.
type Options struct {
	Seed     int64
	MaxIters int
	// Timeout bounds one task. Zero means no limit.
	Timeout time.Duration
}

// DefaultOptions returns the deployment defaults.
func DefaultOptions() Options {
	return Options{Seed: DefaultSeed, MaxIters: DefaultMaxIters}
}

// Worker runs tasks through a geometry engine. It holds no per-task state and
// is safe for concurrent use.
type Worker struct {
	engine geometry.Engine
	opts   Options
	log    logrus.FieldLogger
}

// NewWorker creates a worker.
func NewWorker(engine geometry.Engine, opts Options, log logrus.FieldLogger) *Worker {
	if opts.MaxIters <= 0 {
		opts.MaxIters = DefaultMaxIters
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Worker{engine: engine, opts: opts, log: log}
}

// Process runs the full engine pass for t. Every failure, including a panic in
// the engine, comes back as a Result carrying a *RecordError.
func (w *Worker) Process(ctx context.Context, t Task) (res Result) {
	res.Task = t
	log := w.log.WithFields(logrus.Fields{"ordinal": t.Ordinal, "molecule": t.Name})

	fail := func(stage Stage, err error) Result {
		if errors.Is(err, context.DeadlineExceeded) {
			stage = StageTimeout
		}
		rerr := &RecordError{Ordinal: t.Ordinal, Name: t.Name, Stage: stage, Err: err}
		log.WithField("stage", stage).WithError(err).Warn("molecule failed")
		return Result{Task: t, Err: rerr}
	}

	defer func() {
		if p := recover(); p != nil {
			res = fail(StagePanic, fmt.Errorf("%v", p))
		}
	}()

	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	s, err := w.engine.Parse(t.Block)
	if err != nil || s == nil {
		if err == nil {
			err = geometry.ErrUnparsable
		}
		return fail(StageParse, err)
	}
	if err := w.engine.Sanitize(s); err != nil {
		return fail(StageSanitize, err)
	}
	conf, err := w.engine.Embed3D(ctx, s, w.opts.Seed)
	if err != nil {
		return fail(StageEmbed, err)
	}
	log.Debug("embedded conformer")
	if err := w.engine.Optimize(ctx, s, conf, w.opts.MaxIters); err != nil {
		return fail(StageOptimize, err)
	}
	volume, err := w.engine.Volume(ctx, s, conf)
	if err != nil {
		return fail(StageVolume, err)
	}
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
		return fail(StageVolume, fmt.Errorf("invalid volume %v", volume))
	}

	row := &api.Row{
		Name:        t.Name,
		Volume:      FormatVolume(volume),
		SphereCount: SphereCount(volume, t.Radius),
	}
	log.WithFields(logrus.Fields{"volume": row.Volume, "sphere_count": row.SphereCount}).Info("molecule processed")
	return Result{Task: t, Row: row}
}

// SphereVolume is the volume of one sphere of radius r.
func SphereVolume(r float64) float64 {
	return 4.0 / 3.0 * math.Pi * r * r * r
}

// SphereCount is floor(volume*PackingEfficiency / SphereVolume(radius)).
func SphereCount(volume, radius float64) int {
	sv := SphereVolume(radius)
	if sv <= 0 {
		return 0
	}
	return int(math.Floor(volume * PackingEfficiency / sv))
}

// FormatVolume renders v with exactly two decimals.
func FormatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
