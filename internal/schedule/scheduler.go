package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/sirupsen/logrus"

	"github.com/agentic-research/spherepack/api"
	"github.com/agentic-research/spherepack/internal/packing"
	"github.com/agentic-research/spherepack/internal/sdf"
)

// DefaultBatchSize is the number of records drawn per batch.
const DefaultBatchSize = 4

// State is a scheduler lifecycle state.
type State int

const (
	Idle State = iota
	Scheduling
	Dispatched
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduling:
		return "scheduling"
	case Dispatched:
		return "dispatched"
	case Draining:
		return "draining"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Appender receives successful rows. The scheduler is its only caller.
type Appender interface {
	Append(row api.Row) error
	Flush() error
}

// Config controls batching.
type Config struct {
	BatchSize int
	Workers   int
	Radius    float64
	// BatchDelay is slept between batches. It has no effect on results.
	BatchDelay time.Duration
}

// Report summarizes one scheduled file.
type Report struct {
	Total     int
	Batches   int
	Succeeded int
	Failed    int
	// Dispatched holds every record index that was drawn.
	Dispatched *roaring.Bitmap
	// FailedSet holds the indices of records that produced no row.
	FailedSet *roaring.Bitmap
}

// Scheduler runs the records of one file through a worker pool in random
// batches.
type Scheduler struct {
	cfg  Config
	proc Processor
	out  Appender
	obs  Observer
	rng  *rand.Rand
	log  logrus.FieldLogger

	state State
}

// New creates a scheduler. obs and log may be nil.
func New(cfg Config, proc Processor, out Appender, obs Observer, rng *rand.Rand, log logrus.FieldLogger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultBatchSize
	}
	if cfg.Radius <= 0 {
		cfg.Radius = packing.DefaultRadius
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Scheduler{cfg: cfg, proc: proc, out: out, obs: obs, rng: rng, log: log}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return s.state }

func (s *Scheduler) setState(st State) {
	s.state = st
	if so, ok := s.obs.(StateObserver); ok {
		so.StateChanged(st)
	}
}

// Run processes records until every index has been drawn exactly once.
//
// Cancelling ctx stops new batches from being drawn; a batch that is already
// dispatched always runs to completion. Record failures are counted and
// reported, never returned. Errors from the Appender abort the run.
func (s *Scheduler) Run(ctx context.Context, records []sdf.Record) (rep Report, err error) {
	s.setState(Idle)
	sampler := NewSampler(len(records), s.rng)
	rep = Report{Total: len(records), FailedSet: roaring.New()}
	defer func() { rep.Dispatched = sampler.Drawn() }()

	pool, err := NewPool(context.WithoutCancel(ctx), s.cfg.Workers, s.proc)
	if err != nil {
		return rep, err
	}
	defer func() { _ = pool.Close() }()

	for sampler.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("scheduling stopped after %d batches: %w", rep.Batches, err)
		}
		if rep.Batches > 0 && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(s.cfg.BatchDelay):
			}
		}

		s.setState(Scheduling)
		indices, err := sampler.Draw(s.cfg.BatchSize)
		if err != nil {
			return rep, err
		}
		tasks := make([]packing.Task, len(indices))
		for i, idx := range indices {
			r := records[idx]
			tasks[i] = packing.Task{Ordinal: idx + 1, Name: r.Name, Block: r.Block, Radius: s.cfg.Radius}
		}
		rep.Batches++
		if b, ok := s.obs.(BatchObserver); ok {
			b.BatchDispatched(rep.Batches, indices)
		}

		s.setState(Dispatched)
		results, err := pool.RunBatch(tasks)
		if err != nil {
			return rep, err
		}
		for _, res := range results {
			if !res.OK() {
				rep.Failed++
				rep.FailedSet.Add(uint32(res.Task.Ordinal - 1))
				s.obs.RecordFailed(res.Task.Ordinal, res.Task.Name, res.Err)
				continue
			}
			if err := s.out.Append(*res.Row); err != nil {
				return rep, fmt.Errorf("append %q: %w", res.Row.Name, err)
			}
			rep.Succeeded++
		}
		if err := s.out.Flush(); err != nil {
			return rep, fmt.Errorf("flush results: %w", err)
		}

		processed := sampler.Total() - sampler.Remaining()
		s.obs.Progress(processed, sampler.Total())
		s.log.WithFields(logrus.Fields{
			"batch":     rep.Batches,
			"processed": processed,
			"total":     sampler.Total(),
		}).Debug("batch complete")
	}

	s.setState(Draining)
	if err := s.out.Flush(); err != nil {
		return rep, fmt.Errorf("flush results: %w", err)
	}
	s.setState(Done)
	return rep, nil
}
