package sink

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/spherepack/api"
)

// ReadRows loads a results table written by any of the file sinks.
func ReadRows(path string) ([]api.Row, error) {
	switch FormatFor(path) {
	case FormatSQLite:
		return readSQLite(path)
	case FormatJSONL:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }() // safe to ignore
		return ReadJSONL(f)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }() // safe to ignore
		return ReadCSV(f)
	}
}

// ReadCSV parses a table with a header row. Columns are located by name;
// mol_name is required, volume and sphere_count are optional.
func ReadCSV(r io.Reader) ([]api.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	nameCol, ok := col["mol_name"]
	if !ok {
		return nil, fmt.Errorf("table has no mol_name column")
	}
	field := func(rec []string, name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return rec[i], true
	}

	var rows []api.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if nameCol >= len(rec) {
			return nil, fmt.Errorf("row %d: missing mol_name", line)
		}
		row := api.Row{Name: rec[nameCol]}
		if v, ok := field(rec, "volume"); ok {
			row.Volume = v
		}
		if v, ok := field(rec, "sphere_count"); ok && v != "" {
			n, err := parseCount(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: sphere_count %q: %w", line, v, err)
			}
			row.SphereCount = n
		}
		rows = append(rows, row)
	}
}

// parseCount accepts integers and integral floats ("12.0"), as written by
// spreadsheet tools.
func parseCount(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int(f), nil
}

// ReadJSONL parses rows written by the JSONL sink.
func ReadJSONL(r io.Reader) ([]api.Row, error) {
	var rows []api.Row
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := oj.ParseString(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("line %d: not an object", line)
		}
		var row api.Row
		row.Name, _ = obj["mol_name"].(string)
		switch vol := obj["volume"].(type) {
		case string:
			row.Volume = vol
		case float64:
			row.Volume = strconv.FormatFloat(vol, 'f', 2, 64)
		case int64:
			row.Volume = strconv.FormatFloat(float64(vol), 'f', 2, 64)
		}
		switch n := obj["sphere_count"].(type) {
		case int64:
			row.SphereCount = int(n)
		case float64:
			row.SphereCount = int(n)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func readSQLite(path string) ([]api.Row, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rs, err := db.Query("SELECT mol_name, volume, sphere_count FROM results ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rs.Close() }() // safe to ignore

	var rows []api.Row
	for rs.Next() {
		var r api.Row
		if err := rs.Scan(&r.Name, &r.Volume, &r.SphereCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, rs.Err()
}
