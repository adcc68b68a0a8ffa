package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// Atom is one atom of a molfile connection table.
type Atom struct {
	Element string
	X, Y, Z float64
}

// Bond connects two atoms by 0-based index.
type Bond struct {
	From, To, Order int
}

// Molecule is the Structure produced by the built-in engine.
type Molecule struct {
	Name  string
	Atoms []Atom
	Bonds []Bond

	conformers [][]vec3
}

// AtomCount implements Structure.
func (m *Molecule) AtomCount() int { return len(m.Atoms) }

// Conformer returns a copy of the coordinates of conformer id.
func (m *Molecule) Conformer(id ConformerID) ([][3]float64, bool) {
	if int(id) < 0 || int(id) >= len(m.conformers) {
		return nil, false
	}
	out := make([][3]float64, len(m.conformers[id]))
	for i, p := range m.conformers[id] {
		out[i] = [3]float64(p)
	}
	return out, true
}

// ParseMolBlock parses a V2000 molfile block: three header lines, a counts line,
// the atom block and the bond block. Property lines after the bond block are ignored.
func ParseMolBlock(block string) (*Molecule, error) {
	lines := strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: too few lines", ErrUnparsable)
	}

	counts := -1
	for i, line := range lines {
		if len(line) >= 39 && strings.Contains(line[30:39], "V3000") {
			return nil, fmt.Errorf("%w: V3000 connection tables are not supported", ErrUnparsable)
		}
		if len(line) >= 39 && strings.Contains(line[30:39], "V2000") {
			counts = i
			break
		}
	}
	if counts < 0 {
		return nil, fmt.Errorf("%w: V2000 counts line not found", ErrUnparsable)
	}

	countsLine := lines[counts]
	numAtoms, err := fixedInt(countsLine, 0, 3)
	if err != nil {
		return nil, fmt.Errorf("%w: atom count: %v", ErrUnparsable, err)
	}
	numBonds, err := fixedInt(countsLine, 3, 6)
	if err != nil {
		return nil, fmt.Errorf("%w: bond count: %v", ErrUnparsable, err)
	}

	if numAtoms < 0 || numBonds < 0 {
		return nil, fmt.Errorf("%w: negative counts %d and %d", ErrUnparsable, numAtoms, numBonds)
	}

	body := lines[counts+1:]
	if len(body) < numAtoms+numBonds {
		return nil, fmt.Errorf("%w: expected %d atom and %d bond lines", ErrUnparsable, numAtoms, numBonds)
	}

	mol := &Molecule{
		Name:  strings.TrimSpace(lines[0]),
		Atoms: make([]Atom, numAtoms),
		Bonds: make([]Bond, numBonds),
	}
	for i := 0; i < numAtoms; i++ {
		l := body[i]
		if len(l) < 34 {
			return nil, fmt.Errorf("%w: atom line %d too short", ErrUnparsable, i+1)
		}
		var a Atom
		if a.X, err = fixedFloat(l, 0, 10); err != nil {
			return nil, fmt.Errorf("%w: atom %d x: %v", ErrUnparsable, i+1, err)
		}
		if a.Y, err = fixedFloat(l, 10, 20); err != nil {
			return nil, fmt.Errorf("%w: atom %d y: %v", ErrUnparsable, i+1, err)
		}
		if a.Z, err = fixedFloat(l, 20, 30); err != nil {
			return nil, fmt.Errorf("%w: atom %d z: %v", ErrUnparsable, i+1, err)
		}
		a.Element = strings.TrimSpace(l[31:34])
		mol.Atoms[i] = a
	}
	for i := 0; i < numBonds; i++ {
		l := body[numAtoms+i]
		if len(l) < 9 {
			return nil, fmt.Errorf("%w: bond line %d too short", ErrUnparsable, i+1)
		}
		from, err1 := fixedInt(l, 0, 3)
		to, err2 := fixedInt(l, 3, 6)
		order, err3 := fixedInt(l, 6, 9)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("%w: bond line %d malformed", ErrUnparsable, i+1)
		}
		mol.Bonds[i] = Bond{From: from - 1, To: to - 1, Order: order}
	}
	return mol, nil
}

func fixedInt(line string, from, to int) (int, error) {
	return strconv.Atoi(strings.TrimSpace(line[from:min(to, len(line))]))
}

func fixedFloat(line string, from, to int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(line[from:min(to, len(line))]), 64)
}

// MolBlock renders m as a V2000 molfile block without a terminator line.
func (m *Molecule) MolBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  spherepack\n\n", m.Name)
	fmt.Fprintf(&b, "%3d%3d  0  0  0  0  0  0  0  0999 V2000\n", len(m.Atoms), len(m.Bonds))
	for _, a := range m.Atoms {
		fmt.Fprintf(&b, "%10.4f%10.4f%10.4f %-3s 0  0  0  0  0  0  0  0  0  0  0  0\n", a.X, a.Y, a.Z, a.Element)
	}
	for _, bd := range m.Bonds {
		fmt.Fprintf(&b, "%3d%3d%3d  0\n", bd.From+1, bd.To+1, bd.Order)
	}
	b.WriteString("M  END\n")
	return b.String()
}
