// Package geometrytest provides a deterministic geometry.Engine whose outcome
// is scripted per molecule name.
package geometrytest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/agentic-research/spherepack/internal/geometry"
)

// Stage names the step at which a scripted molecule fails.
type Stage string

const (
	FailParse    Stage = "parse"
	FailSanitize Stage = "sanitize"
	FailEmbed    Stage = "embed"
	FailOptimize Stage = "optimize"
	FailVolume   Stage = "volume"
	Panic        Stage = "panic"
	// Hang blocks in Optimize until the context is done.
	Hang Stage = "hang"
)

// ErrScriptedVolume is returned by Volume for molecules scripted with FailVolume.
var ErrScriptedVolume = errors.New("scripted volume failure")

// Scripted is a geometry.Engine driven by per-name scripts. Molecules without a
// script succeed with DefaultVolume.
type Scripted struct {
	Failures      map[string]Stage
	Volumes       map[string]float64
	DefaultVolume float64
	// Delay is slept in Optimize, to widen concurrency windows in tests.
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

type structure struct {
	name string
}

func (s *structure) AtomCount() int { return 1 }

// Calls returns how many times Parse saw the named molecule.
func (e *Scripted) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

// TotalCalls returns the number of Parse calls across all molecules.
func (e *Scripted) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

func (e *Scripted) stage(s geometry.Structure) Stage {
	st, ok := s.(*structure)
	if !ok {
		return ""
	}
	return e.Failures[st.name]
}

// Parse implements geometry.Engine. The name is the first line of the block.
func (e *Scripted) Parse(block string) (geometry.Structure, error) {
	name, _, _ := strings.Cut(block, "\n")
	name = strings.TrimSpace(name)

	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[name]++
	e.mu.Unlock()

	if e.Failures[name] == FailParse {
		return nil, geometry.ErrUnparsable
	}
	return &structure{name: name}, nil
}

// Sanitize implements geometry.Engine.
func (e *Scripted) Sanitize(s geometry.Structure) error {
	if e.stage(s) == FailSanitize {
		return geometry.ErrSanitize
	}
	return nil
}

// Embed3D implements geometry.Engine.
func (e *Scripted) Embed3D(ctx context.Context, s geometry.Structure, seed int64) (geometry.ConformerID, error) {
	switch e.stage(s) {
	case FailEmbed:
		return -1, geometry.ErrNoEmbedding
	case Panic:
		panic("scripted engine panic")
	}
	return 0, nil
}

// Optimize implements geometry.Engine.
func (e *Scripted) Optimize(ctx context.Context, s geometry.Structure, conf geometry.ConformerID, maxIters int) error {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	switch e.stage(s) {
	case FailOptimize:
		return geometry.ErrOptimize
	case Hang:
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Volume implements geometry.Engine.
func (e *Scripted) Volume(ctx context.Context, s geometry.Structure, conf geometry.ConformerID) (float64, error) {
	if e.stage(s) == FailVolume {
		return 0, ErrScriptedVolume
	}
	if st, ok := s.(*structure); ok {
		if v, ok := e.Volumes[st.name]; ok {
			return v, nil
		}
	}
	return e.DefaultVolume, nil
}

var _ geometry.Engine = (*Scripted)(nil)
