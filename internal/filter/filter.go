// Package filter narrows result tables and SDF files down to selected molecules.
package filter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/agentic-research/spherepack/api"
	"github.com/agentic-research/spherepack/internal/sdf"
	"github.com/agentic-research/spherepack/internal/sink"
)

// SelectCounts returns, in table order, the names of rows whose sphere count
// is within one of num.
func SelectCounts(rows []api.Row, num int) []string {
	var ids []string
	for _, r := range rows {
		if r.SphereCount >= num-1 && r.SphereCount <= num+1 {
			ids = append(ids, r.Name)
		}
	}
	return ids
}

// WriteIDs writes a single mol_name column.
func WriteIDs(w io.Writer, ids []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"mol_name"}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := cw.Write([]string{id}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// IDSet is a set of molecule names.
type IDSet map[string]struct{}

// Has reports whether name is in the set.
func (s IDSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// LoadIDs reads the mol_name column of a CSV table.
func LoadIDs(r io.Reader) (IDSet, error) {
	rows, err := sink.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	ids := make(IDSet, len(rows))
	for _, row := range rows {
		ids[row.Name] = struct{}{}
	}
	return ids, nil
}

// SDF copies selected records from one SDF stream to another.
type SDF struct {
	IDs IDSet
	// Valid rejects records that cannot be read as molecules. Nil accepts all.
	Valid func(block string) bool
	// Seen is called once per input record.
	Seen func()
}

// Run writes every valid record of r whose name is in IDs to w and returns
// how many were written.
func (f SDF) Run(r io.Reader, w io.Writer) (int, error) {
	count := 0
	err := sdf.Scan(r, func(rec sdf.Record) error {
		if f.Seen != nil {
			defer f.Seen()
		}
		if f.Valid != nil && !f.Valid(rec.Block) {
			return nil
		}
		if !f.IDs.Has(rec.Name) {
			return nil
		}
		if err := sdf.Write(w, rec); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
