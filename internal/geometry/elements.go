package geometry

// element holds the per-element constants the built-in engine needs.
type element struct {
	covalent float64 // Angstrom
	vdw      float64 // Angstrom (Bondi)
	valence  int     // maximum explicit valence, 0 = unchecked
}

var elements = map[string]element{
	"H":  {0.31, 1.20, 1},
	"B":  {0.84, 1.92, 3},
	"C":  {0.76, 1.70, 4},
	"N":  {0.71, 1.55, 4},
	"O":  {0.66, 1.52, 3},
	"F":  {0.57, 1.47, 1},
	"Si": {1.11, 2.10, 4},
	"P":  {1.07, 1.80, 5},
	"S":  {1.05, 1.80, 6},
	"Cl": {1.02, 1.75, 1},
	"Se": {1.20, 1.90, 6},
	"Br": {1.20, 1.85, 1},
	"I":  {1.39, 1.98, 3},
	"Na": {1.66, 2.27, 0},
	"K":  {2.03, 2.75, 0},
	"Mg": {1.41, 1.73, 0},
	"Ca": {1.76, 2.31, 0},
	"Fe": {1.32, 2.00, 0},
	"Zn": {1.22, 1.39, 0},
	"Cu": {1.32, 1.40, 0},
}

func lookupElement(symbol string) (element, bool) {
	e, ok := elements[symbol]
	return e, ok
}
