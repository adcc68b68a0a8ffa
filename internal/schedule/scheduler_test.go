package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/spherepack/api"
	"github.com/agentic-research/spherepack/internal/geometry/geometrytest"
	"github.com/agentic-research/spherepack/internal/packing"
	"github.com/agentic-research/spherepack/internal/sdf"
)

type rowCollector struct {
	rows    []api.Row
	flushes int
	failOn  string
}

func (c *rowCollector) Append(r api.Row) error {
	if c.failOn != "" && r.Name == c.failOn {
		return fmt.Errorf("disk full")
	}
	c.rows = append(c.rows, r)
	return nil
}

func (c *rowCollector) Flush() error {
	c.flushes++
	return nil
}

func (c *rowCollector) names() []string {
	out := make([]string, len(c.rows))
	for i, r := range c.rows {
		out[i] = r.Name
	}
	sort.Strings(out)
	return out
}

type recorder struct {
	batches  [][]int
	progress [][2]int
	failed   []int
	states   []State
}

func (r *recorder) Progress(p, t int) { r.progress = append(r.progress, [2]int{p, t}) }

func (r *recorder) RecordFailed(ordinal int, _ string, _ error) { r.failed = append(r.failed, ordinal) }

func (r *recorder) BatchDispatched(_ int, idx []int) {
	r.batches = append(r.batches, append([]int(nil), idx...))
}

func (r *recorder) StateChanged(s State) { r.states = append(r.states, s) }

func makeRecords(n int) []sdf.Record {
	recs := make([]sdf.Record, n)
	for i := range recs {
		name := fmt.Sprintf("mol-%03d", i)
		recs[i] = sdf.Record{Index: i, Name: name, Block: name + "\nbody\n"}
	}
	return recs
}

func newWorker(e *geometrytest.Scripted) Processor {
	return packing.NewWorker(e, packing.DefaultOptions(), nil)
}

func TestSampler_DrawsEveryIndexOnce(t *testing.T) {
	s := NewSampler(103, rand.New(rand.NewSource(1)))
	seen := map[int]bool{}
	for s.Remaining() > 0 {
		batch, err := s.Draw(4)
		require.NoError(t, err)
		for _, i := range batch {
			require.False(t, seen[i], "index %d drawn twice", i)
			seen[i] = true
		}
	}
	assert.Len(t, seen, 103)
	assert.Equal(t, uint64(103), s.Drawn().GetCardinality())

	batch, err := s.Draw(4)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestSampler_IsNotSequential(t *testing.T) {
	s := NewSampler(1000, rand.New(rand.NewSource(7)))
	first, err := s.Draw(10)
	require.NoError(t, err)
	assert.NotEqual(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, first)
}

func TestScheduler_BatchShape(t *testing.T) {
	for _, tc := range []struct{ total, batch int }{
		{0, 4}, {1, 4}, {4, 4}, {5, 4}, {8, 4}, {13, 4}, {10, 3}, {7, 1},
	} {
		t.Run(fmt.Sprintf("T%d_B%d", tc.total, tc.batch), func(t *testing.T) {
			rec := &recorder{}
			out := &rowCollector{}
			s := New(Config{BatchSize: tc.batch, Workers: 2}, newWorker(&geometrytest.Scripted{DefaultVolume: 100}),
				out, rec, rand.New(rand.NewSource(int64(tc.total))), nil)

			rep, err := s.Run(context.Background(), makeRecords(tc.total))
			require.NoError(t, err)

			wantBatches := (tc.total + tc.batch - 1) / tc.batch
			require.Len(t, rec.batches, wantBatches)
			assert.Equal(t, wantBatches, rep.Batches)

			seen := map[int]int{}
			for i, b := range rec.batches {
				if i < len(rec.batches)-1 {
					assert.Len(t, b, tc.batch)
				} else {
					want := tc.total % tc.batch
					if want == 0 {
						want = tc.batch
					}
					assert.Len(t, b, want)
				}
				for _, idx := range b {
					seen[idx]++
				}
			}
			for i := 0; i < tc.total; i++ {
				assert.Equal(t, 1, seen[i], "index %d", i)
			}
			assert.Equal(t, uint64(tc.total), rep.Dispatched.GetCardinality())
			assert.Equal(t, tc.total, rep.Succeeded)
		})
	}
}

func TestScheduler_ProgressAfterEachBarrier(t *testing.T) {
	rec := &recorder{}
	s := New(Config{BatchSize: 4, Workers: 4}, newWorker(&geometrytest.Scripted{}), &rowCollector{}, rec, nil, nil)
	_, err := s.Run(context.Background(), makeRecords(10))
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{4, 10}, {8, 10}, {10, 10}}, rec.progress)
}

func TestScheduler_NoRetryOnFailure(t *testing.T) {
	records := makeRecords(23)
	failures := map[string]geometrytest.Stage{
		"mol-000": geometrytest.FailParse,
		"mol-005": geometrytest.FailSanitize,
		"mol-010": geometrytest.FailEmbed,
		"mol-015": geometrytest.FailOptimize,
		"mol-020": geometrytest.Panic,
		"mol-022": geometrytest.FailVolume,
	}
	engine := &geometrytest.Scripted{Failures: failures, DefaultVolume: 300}
	rec := &recorder{}
	out := &rowCollector{}
	s := New(Config{BatchSize: 4, Workers: 3}, newWorker(engine), out, rec, rand.New(rand.NewSource(3)), nil)

	rep, err := s.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, len(failures), rep.Failed)
	assert.Equal(t, len(records)-len(failures), rep.Succeeded)
	assert.Equal(t, len(records), rep.Succeeded+rep.Failed)
	assert.Len(t, out.rows, rep.Succeeded)

	for _, r := range records {
		assert.Equal(t, 1, engine.Calls(r.Name), "molecule %s", r.Name)
	}
	assert.Equal(t, len(records), engine.TotalCalls())

	wantFailed := []uint32{0, 5, 10, 15, 20, 22}
	assert.Equal(t, wantFailed, rep.FailedSet.ToArray())
	sort.Ints(rec.failed)
	assert.Equal(t, []int{1, 6, 11, 16, 21, 23}, rec.failed)
}

func TestScheduler_OutputIsASet(t *testing.T) {
	records := makeRecords(12)
	var orders [][]string
	for seed := int64(1); seed <= 5; seed++ {
		out := &rowCollector{}
		s := New(Config{BatchSize: 4, Workers: 4}, newWorker(&geometrytest.Scripted{DefaultVolume: 50}),
			out, nil, rand.New(rand.NewSource(seed)), nil)
		_, err := s.Run(context.Background(), records)
		require.NoError(t, err)

		raw := make([]string, len(out.rows))
		for i, r := range out.rows {
			raw[i] = r.Name
		}
		orders = append(orders, raw)
		assert.Len(t, out.names(), 12)
		assert.Equal(t, makeRecordsNames(12), out.names())
	}

	distinct := map[string]bool{}
	for _, o := range orders {
		distinct[fmt.Sprint(o)] = true
	}
	assert.Greater(t, len(distinct), 1, "row order should vary with the shuffle seed")
}

func makeRecordsNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("mol-%03d", i)
	}
	return out
}

func TestScheduler_StateMachine(t *testing.T) {
	rec := &recorder{}
	s := New(Config{BatchSize: 4}, newWorker(&geometrytest.Scripted{}), &rowCollector{}, rec, nil, nil)
	_, err := s.Run(context.Background(), makeRecords(5))
	require.NoError(t, err)

	assert.Equal(t, []State{Idle, Scheduling, Dispatched, Scheduling, Dispatched, Draining, Done}, rec.states)
	assert.Equal(t, Done, s.State())
	assert.Equal(t, "dispatched", Dispatched.String())
}

func TestScheduler_BarrierBoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	batchOf := map[int]int{}
	current := 0

	proc := ProcessorFunc(func(ctx context.Context, t packing.Task) packing.Result {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		batchOf[t.Ordinal] = current
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return packing.Result{Task: t, Row: &api.Row{Name: t.Name, Volume: "1.00"}}
	})

	obs := &barrierObserver{onBatch: func(b int) {
		require.Equal(t, int32(0), inFlight.Load(), "batch %d drawn while tasks were running", b)
		mu.Lock()
		current = b
		mu.Unlock()
	}}
	s := New(Config{BatchSize: 3, Workers: 8}, proc, &rowCollector{}, obs, nil, nil)
	rep, err := s.Run(context.Background(), makeRecords(10))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Batches)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

type barrierObserver struct {
	nopObserver
	onBatch func(int)
}

func (b *barrierObserver) BatchDispatched(batch int, _ []int) { b.onBatch(batch) }

func TestScheduler_AppendErrorAborts(t *testing.T) {
	out := &rowCollector{failOn: "mol-002"}
	s := New(Config{BatchSize: 4}, newWorker(&geometrytest.Scripted{}), out, nil, nil, nil)
	rep, err := s.Run(context.Background(), makeRecords(8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	// The ledger still covers the batch that was in flight.
	require.NotNil(t, rep.Dispatched)
	assert.Equal(t, uint64(4*rep.Batches), rep.Dispatched.GetCardinality())
}

func TestScheduler_CancelStopsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &barrierObserver{onBatch: func(b int) {
		if b == 2 {
			cancel()
		}
	}}
	out := &rowCollector{}
	s := New(Config{BatchSize: 4, Workers: 4}, newWorker(&geometrytest.Scripted{}), out, obs, nil, nil)
	rep, err := s.Run(ctx, makeRecords(20))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, rep.Batches)
	// The batch that was already dispatched still completed.
	assert.Len(t, out.rows, 8)
	assert.Equal(t, uint64(8), rep.Dispatched.GetCardinality())
}

func TestPool_Lifecycle(t *testing.T) {
	_, err := NewPool(context.Background(), 0, nil)
	require.Error(t, err)

	p, err := NewPool(context.Background(), 2, ProcessorFunc(func(_ context.Context, t packing.Task) packing.Result {
		return packing.Result{Task: t}
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())

	res, err := p.RunBatch([]packing.Task{{Ordinal: 1}, {Ordinal: 2}, {Ordinal: 3}})
	require.NoError(t, err)
	assert.Len(t, res, 3)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.RunBatch(nil)
	require.Error(t, err)
}
