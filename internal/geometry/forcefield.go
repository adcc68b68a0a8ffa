package geometry

import "math"

type vec3 [3]float64

func (a vec3) sub(b vec3) vec3 { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) add(b vec3) vec3 { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) scale(f float64) vec3 { return vec3{a[0] * f, a[1] * f, a[2] * f} }
func (a vec3) norm() float64 { return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2]) }
func (a vec3) finite() bool {
	for _, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

const (
	bondStiffness  = 1.0
	repulsionScale = 0.6
)

type stretch struct {
	i, j int
	rest float64
}

type contact struct {
	i, j int
	min  float64
}

// forceField is a deliberately small model: harmonic bonds at covalent-radius
// rest lengths and a one-sided harmonic wall for non-bonded pairs (1-4 and beyond).
type forceField struct {
	stretches []stretch
	contacts  []contact
}

func newForceField(m *Molecule) *forceField {
	ff := &forceField{}
	n := len(m.Atoms)
	excluded := make(map[[2]int]bool)
	neighbors := make([][]int, n)

	for _, b := range m.Bonds {
		ci := covalentRadius(m.Atoms[b.From].Element)
		cj := covalentRadius(m.Atoms[b.To].Element)
		rest := (ci + cj) * orderFactor(b.Order)
		ff.stretches = append(ff.stretches, stretch{i: b.From, j: b.To, rest: rest})
		excluded[pairKey(b.From, b.To)] = true
		neighbors[b.From] = append(neighbors[b.From], b.To)
		neighbors[b.To] = append(neighbors[b.To], b.From)
	}
	for _, nb := range neighbors {
		for x := 0; x < len(nb); x++ {
			for y := x + 1; y < len(nb); y++ {
				excluded[pairKey(nb[x], nb[y])] = true
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if excluded[pairKey(i, j)] {
				continue
			}
			vi := vdwRadius(m.Atoms[i].Element)
			vj := vdwRadius(m.Atoms[j].Element)
			ff.contacts = append(ff.contacts, contact{i: i, j: j, min: repulsionScale * (vi + vj)})
		}
	}
	return ff
}

func (ff *forceField) energy(x []vec3) float64 {
	var e float64
	for _, s := range ff.stretches {
		d := x[s.i].sub(x[s.j]).norm() - s.rest
		e += bondStiffness * d * d
	}
	for _, c := range ff.contacts {
		d := x[c.i].sub(x[c.j]).norm()
		if d < c.min {
			e += 0.5 * (c.min - d) * (c.min - d)
		}
	}
	return e
}

func (ff *forceField) gradient(x []vec3, g []vec3) {
	for i := range g {
		g[i] = vec3{}
	}
	for _, s := range ff.stretches {
		delta := x[s.i].sub(x[s.j])
		d := delta.norm()
		if d < 1e-9 {
			continue
		}
		f := delta.scale(2 * bondStiffness * (d - s.rest) / d)
		g[s.i] = g[s.i].add(f)
		g[s.j] = g[s.j].sub(f)
	}
	for _, c := range ff.contacts {
		delta := x[c.i].sub(x[c.j])
		d := delta.norm()
		if d >= c.min || d < 1e-9 {
			continue
		}
		f := delta.scale(-(c.min - d) / d)
		g[c.i] = g[c.i].add(f)
		g[c.j] = g[c.j].sub(f)
	}
}

func pairKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}

func orderFactor(order int) float64 {
	switch order {
	case 2:
		return 0.87
	case 3:
		return 0.78
	case 4:
		return 0.93
	default:
		return 1.0
	}
}

func covalentRadius(symbol string) float64 {
	if e, ok := lookupElement(symbol); ok {
		return e.covalent
	}
	return 0.77
}

func vdwRadius(symbol string) float64 {
	if e, ok := lookupElement(symbol); ok {
		return e.vdw
	}
	return 2.0
}
