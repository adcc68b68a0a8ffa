package api

// Header is the column layout of every results table.
var Header = []string{"mol_name", "volume", "sphere_count"}

// Row is one successfully processed molecule.
type Row struct {
	// Name is the molecule identifier (first line of its record).
	Name string `json:"mol_name"`
	// Volume is the enclosed volume in cubic Angstrom, fixed-point with two decimals.
	Volume string `json:"volume"`
	// SphereCount is the number of spheres that fit the volume at the packing efficiency.
	SphereCount int `json:"sphere_count"`
}

// Summary reports the outcome of a whole run.
type Summary struct {
	RunID     string  `json:"run_id"`
	Files     int     `json:"files"`
	Records   int     `json:"records"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Seconds   float64 `json:"elapsed_seconds"`
}
