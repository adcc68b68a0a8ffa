package geometry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

const (
	gridSpacing = 0.2 // Angstrom
	gridMargin  = 2.0 // Angstrom
)

// MolfileEngine is the built-in Engine for V2000 molfile records. It uses the
// coordinates already present in the record, a harmonic bond model for the
// optimization and a grid-sampled union of van der Waals spheres for the volume.
type MolfileEngine struct{}

// NewMolfileEngine returns the built-in engine.
func NewMolfileEngine() *MolfileEngine {
	return &MolfileEngine{}
}

func asMolecule(s Structure) (*Molecule, error) {
	m, ok := s.(*Molecule)
	if !ok || m == nil {
		return nil, fmt.Errorf("molfile engine: foreign structure %T", s)
	}
	return m, nil
}

// Parse implements Engine.
func (e *MolfileEngine) Parse(block string) (Structure, error) {
	return ParseMolBlock(block)
}

// Sanitize implements Engine.
func (e *MolfileEngine) Sanitize(s Structure) error {
	m, err := asMolecule(s)
	if err != nil {
		return err
	}
	valence := make([]float64, len(m.Atoms))
	for i, b := range m.Bonds {
		if b.From < 0 || b.From >= len(m.Atoms) || b.To < 0 || b.To >= len(m.Atoms) {
			return fmt.Errorf("%w: bond %d references a missing atom", ErrSanitize, i+1)
		}
		if b.From == b.To {
			return fmt.Errorf("%w: bond %d is a self bond", ErrSanitize, i+1)
		}
		order := float64(b.Order)
		switch b.Order {
		case 1, 2, 3:
		case 4:
			order = 1.5
		default:
			return fmt.Errorf("%w: bond %d has unsupported order %d", ErrSanitize, i+1, b.Order)
		}
		valence[b.From] += order
		valence[b.To] += order
	}
	for i, a := range m.Atoms {
		el, ok := lookupElement(a.Element)
		if !ok {
			return fmt.Errorf("%w: atom %d has unknown element %q", ErrSanitize, i+1, a.Element)
		}
		if el.valence > 0 && math.Floor(valence[i]) > float64(el.valence) {
			return fmt.Errorf("%w: explicit valence %.1f for atom %d %s exceeds %d",
				ErrSanitize, valence[i], i+1, a.Element, el.valence)
		}
	}
	return nil
}

// Embed3D implements Engine. Input coordinates are reused; flat 2D depictions
// are lifted out of the plane with a seeded perturbation so the result only
// depends on the input and the seed.
func (e *MolfileEngine) Embed3D(ctx context.Context, s Structure, seed int64) (ConformerID, error) {
	m, err := asMolecule(s)
	if err != nil {
		return -1, err
	}
	if len(m.Atoms) == 0 {
		return -1, ErrNoEmbedding
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	coords := make([]vec3, len(m.Atoms))
	flat := true
	for i, a := range m.Atoms {
		coords[i] = vec3{a.X, a.Y, a.Z}
		if a.Z != 0 {
			flat = false
		}
	}
	if flat && len(coords) > 1 {
		rng := rand.New(rand.NewSource(seed))
		for i := range coords {
			coords[i][0] += (rng.Float64() - 0.5) * 0.1
			coords[i][1] += (rng.Float64() - 0.5) * 0.1
			coords[i][2] += (rng.Float64() - 0.5) * 1.0
		}
	}
	for _, c := range coords {
		if !c.finite() {
			return -1, fmt.Errorf("%w: non-finite input coordinates", ErrNoEmbedding)
		}
	}

	m.conformers = append(m.conformers, coords)
	return ConformerID(len(m.conformers) - 1), nil
}

// Optimize implements Engine with a steepest-descent minimization of bond
// stretch plus soft repulsion between atoms that are not bonded to each other.
// Not converging within maxIters is not a failure.
func (e *MolfileEngine) Optimize(ctx context.Context, s Structure, conf ConformerID, maxIters int) error {
	m, err := asMolecule(s)
	if err != nil {
		return err
	}
	if int(conf) < 0 || int(conf) >= len(m.conformers) {
		return fmt.Errorf("%w: no conformer %d", ErrOptimize, conf)
	}
	ff := newForceField(m)
	coords := m.conformers[conf]

	step := 0.05
	energy := ff.energy(coords)
	grad := make([]vec3, len(coords))
	trial := make([]vec3, len(coords))
	for iter := 0; iter < maxIters; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ff.gradient(coords, grad)
		var gmax float64
		for _, g := range grad {
			gmax = math.Max(gmax, g.norm())
		}
		if gmax < 1e-4 {
			break
		}
		for i := range coords {
			trial[i] = coords[i].sub(grad[i].scale(step / gmax))
		}
		next := ff.energy(trial)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return fmt.Errorf("%w: energy diverged at iteration %d", ErrOptimize, iter)
		}
		if next < energy {
			copy(coords, trial)
			energy = next
			step *= 1.2
		} else {
			step *= 0.5
			if step < 1e-6 {
				break
			}
		}
	}
	for _, c := range coords {
		if !c.finite() {
			return fmt.Errorf("%w: non-finite coordinates", ErrOptimize)
		}
	}
	return nil
}

// Volume implements Engine.
func (e *MolfileEngine) Volume(ctx context.Context, s Structure, conf ConformerID) (float64, error) {
	m, err := asMolecule(s)
	if err != nil {
		return 0, err
	}
	if int(conf) < 0 || int(conf) >= len(m.conformers) {
		return 0, fmt.Errorf("volume: no conformer %d", conf)
	}
	radii := make([]float64, len(m.Atoms))
	for i, a := range m.Atoms {
		el, ok := lookupElement(a.Element)
		if !ok {
			return 0, fmt.Errorf("volume: unknown element %q", a.Element)
		}
		radii[i] = el.vdw
	}
	return gridVolume(ctx, m.conformers[conf], radii)
}

// gridVolume counts grid points covered by at least one sphere.
func gridVolume(ctx context.Context, centers []vec3, radii []float64) (float64, error) {
	if len(centers) == 0 {
		return 0, nil
	}
	lo := centers[0]
	hi := centers[0]
	for _, c := range centers[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], c[k])
			hi[k] = math.Max(hi[k], c[k])
		}
	}
	var dims [3]int
	for k := 0; k < 3; k++ {
		lo[k] -= gridMargin
		hi[k] += gridMargin
		dims[k] = int(math.Ceil((hi[k]-lo[k])/gridSpacing)) + 1
	}
	total := dims[0] * dims[1] * dims[2]
	if total <= 0 || total > 1<<28 {
		return 0, fmt.Errorf("volume: grid of %d points out of range", total)
	}

	covered := make([]bool, total)
	count := 0
	for i, c := range centers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r := radii[i]
		r2 := r * r
		var from, to [3]int
		for k := 0; k < 3; k++ {
			from[k] = max(0, int(math.Floor((c[k]-r-lo[k])/gridSpacing)))
			to[k] = min(dims[k]-1, int(math.Ceil((c[k]+r-lo[k])/gridSpacing)))
		}
		for x := from[0]; x <= to[0]; x++ {
			dx := lo[0] + float64(x)*gridSpacing - c[0]
			for y := from[1]; y <= to[1]; y++ {
				dy := lo[1] + float64(y)*gridSpacing - c[1]
				for z := from[2]; z <= to[2]; z++ {
					dz := lo[2] + float64(z)*gridSpacing - c[2]
					if dx*dx+dy*dy+dz*dz > r2 {
						continue
					}
					idx := (x*dims[1]+y)*dims[2] + z
					if !covered[idx] {
						covered[idx] = true
						count++
					}
				}
			}
		}
	}
	return float64(count) * gridSpacing * gridSpacing * gridSpacing, nil
}

var _ Engine = (*MolfileEngine)(nil)
