// Package schedule draws random batches of records and dispatches them to a
// fixed-size worker pool, one batch at a time.
package schedule

import (
	"fmt"
	"math/rand"

	"github.com/RoaringBitmap/roaring"
)

// Sampler is the set of not-yet-drawn record indices. Indices leave the set
// when they are drawn, never when their result comes back, so no index is
// handed out twice.
type Sampler struct {
	idx    []uint32
	cursor int
	rng    *rand.Rand
	drawn  *roaring.Bitmap
}

// NewSampler creates a sampler over [0, total).
func NewSampler(total int, rng *rand.Rand) *Sampler {
	idx := make([]uint32, total)
	for i := range idx {
		idx[i] = uint32(i)
	}
	return &Sampler{idx: idx, rng: rng, drawn: roaring.New()}
}

// Total is the size of the index space.
func (s *Sampler) Total() int { return len(s.idx) }

// Remaining is the number of indices not yet drawn.
func (s *Sampler) Remaining() int { return len(s.idx) - s.cursor }

// Draw removes min(n, Remaining()) indices chosen uniformly at random without
// replacement (a partial Fisher-Yates shuffle).
func (s *Sampler) Draw(n int) ([]int, error) {
	n = min(n, s.Remaining())
	out := make([]int, 0, n)
	for k := 0; k < n; k++ {
		j := s.cursor + s.rng.Intn(len(s.idx)-s.cursor)
		s.idx[s.cursor], s.idx[j] = s.idx[j], s.idx[s.cursor]
		v := s.idx[s.cursor]
		s.cursor++
		if !s.drawn.CheckedAdd(v) {
			return nil, fmt.Errorf("sampler: index %d drawn twice", v)
		}
		out = append(out, int(v))
	}
	return out, nil
}

// Drawn returns a copy of the set of indices handed out so far.
func (s *Sampler) Drawn() *roaring.Bitmap {
	return s.drawn.Clone()
}
