// Package geometry defines the structure-to-volume capability the pipeline depends on,
// together with a small built-in implementation for V2000 molfile blocks.
package geometry

import (
	"context"
	"errors"
)

// Sentinel failures reported by engines. Callers treat every one of them as a
// per-molecule failure.
var (
	ErrUnparsable  = errors.New("structure could not be constructed")
	ErrSanitize    = errors.New("structure failed sanitization")
	ErrNoEmbedding = errors.New("no 3D embedding found")
	ErrOptimize    = errors.New("geometry optimization failed")
)

// Structure is an engine-owned molecule representation. Only the engine that
// produced it can interpret it.
type Structure interface {
	AtomCount() int
}

// ConformerID identifies one 3D coordinate set of a Structure.
type ConformerID int

// Engine turns a raw record into a volume. Every step may fail.
//
// Engines must be safe for concurrent use by multiple workers as long as each
// worker operates on its own Structure.
type Engine interface {
	// Parse constructs a structure from a raw block without validating it.
	Parse(block string) (Structure, error)
	// Sanitize validates and normalizes s in place.
	Sanitize(s Structure) error
	// Embed3D generates one conformer using a deterministic seed.
	Embed3D(ctx context.Context, s Structure, seed int64) (ConformerID, error)
	// Optimize runs a bounded force-field optimization of the conformer.
	Optimize(ctx context.Context, s Structure, conf ConformerID, maxIters int) error
	// Volume computes the enclosed volume of the conformer in cubic Angstrom.
	Volume(ctx context.Context, s Structure, conf ConformerID) (float64, error)
}
