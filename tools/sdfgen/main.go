// Command sdfgen writes a synthetic SDF library for load testing. A fraction of
// the records can be corrupted so that every failure stage of a run is hit.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/spherepack/internal/geometry"
	"github.com/agentic-research/spherepack/internal/sdf"
)

// Manifest records what was generated, for checking a run's failure count.
type Manifest struct {
	Records  int
	Seed     int64
	Broken   map[string]string
	MaxAtoms int
}

func main() {
	count := flag.Int("n", 1000, "Number of records")
	maxAtoms := flag.Int("max-atoms", 24, "Largest chain length")
	brokenRate := flag.Float64("broken", 0, "Fraction of records to corrupt (0-1)")
	seed := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	out := flag.String("out", "", "Output file (.sdf or .sdf.zst); stdout when empty")
	manifest := flag.String("manifest", "", "Write a JSON manifest of corrupted records")
	flag.Parse()

	if *count < 0 || *maxAtoms < 2 || *brokenRate < 0 || *brokenRate > 1 {
		flag.Usage()
		os.Exit(1)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatal(err)
		}
		defer func() { _ = f.Close() }()
		w = f
		if strings.HasSuffix(*out, ".zst") {
			enc, err := zstd.NewWriter(f)
			if err != nil {
				fatal(err)
			}
			defer func() { _ = enc.Close() }()
			w = enc
		}
	}
	bw := bufio.NewWriter(w)

	m := Manifest{Records: *count, Seed: *seed, Broken: map[string]string{}, MaxAtoms: *maxAtoms}
	for i := 0; i < *count; i++ {
		name := fmt.Sprintf("SYN%07d", i+1)
		block := chain(name, 2+rng.Intn(*maxAtoms-1), rng).MolBlock()
		if rng.Float64() < *brokenRate {
			var how string
			block, how = corrupt(block, rng)
			m.Broken[name] = how
		}
		if err := sdf.Write(bw, sdf.Record{Name: name, Block: block}); err != nil {
			fatal(err)
		}
	}
	if err := bw.Flush(); err != nil {
		fatal(err)
	}

	if *manifest != "" {
		data := oj.JSON(map[string]any{
			"records":   m.Records,
			"seed":      m.Seed,
			"broken":    m.Broken,
			"max_atoms": m.MaxAtoms,
		}, &oj.Options{Indent: 2, Sort: true})
		if err := os.WriteFile(*manifest, []byte(data+"\n"), 0o644); err != nil {
			fatal(err)
		}
	}
	fmt.Fprintf(os.Stderr, "Wrote %d records (%d corrupted), seed %d\n", *count, len(m.Broken), *seed)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// chain builds a zig-zag heavy-atom chain with single bonds.
func chain(name string, n int, rng *rand.Rand) *geometry.Molecule {
	m := &geometry.Molecule{Name: name}
	for i := 0; i < n; i++ {
		el := "C"
		switch r := rng.Float64(); {
		case r < 0.10:
			el = "O"
		case r < 0.18:
			el = "N"
		}
		m.Atoms = append(m.Atoms, geometry.Atom{
			Element: el,
			X:       1.26 * float64(i),
			Y:       0.85 * float64(i%2),
			Z:       0.3 * rng.Float64(),
		})
		if i > 0 {
			m.Bonds = append(m.Bonds, geometry.Bond{From: i - 1, To: i, Order: 1})
		}
	}
	return m
}

// corrupt breaks a molfile block so a specific engine stage rejects it.
func corrupt(block string, rng *rand.Rand) (string, string) {
	lines := strings.SplitAfter(block, "\n")
	strategies := []string{"truncated", "v3000", "bad-bond", "unknown-element"}
	switch strategy := strategies[rng.Intn(len(strategies))]; strategy {
	case "truncated":
		return strings.Join(lines[:3], ""), strategy
	case "v3000":
		lines[3] = strings.Replace(lines[3], "V2000", "V3000", 1)
		return strings.Join(lines, ""), strategy
	case "bad-bond":
		for i := len(lines) - 1; i > 3; i-- {
			if strings.HasPrefix(lines[i], "M  END") && i > 4 {
				lines[i-1] = "  1999  1  0\n"
				return strings.Join(lines, ""), strategy
			}
		}
		return strings.Join(lines[:3], ""), "truncated"
	default:
		lines[4] = lines[4][:31] + "Xx " + lines[4][34:]
		return strings.Join(lines, ""), strategy
	}
}
