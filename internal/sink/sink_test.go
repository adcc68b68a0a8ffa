package sink

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/spherepack/api"
)

var sampleRows = []api.Row{
	{Name: "aspirin", Volume: "151.23", SphereCount: 6},
	{Name: "caffeine", Volume: "170.02", SphereCount: 7},
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatCSV, FormatFor("out.csv"))
	assert.Equal(t, FormatCSV, FormatFor("out"))
	assert.Equal(t, FormatSQLite, FormatFor("out.db"))
	assert.Equal(t, FormatSQLite, FormatFor("OUT.SQLITE"))
	assert.Equal(t, FormatJSONL, FormatFor("out.jsonl"))
}

func TestCSV_HeaderOnceAndStreaming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	c, err := NewCSV(path)
	require.NoError(t, err)

	require.NoError(t, c.Append(sampleRows[0]))
	// Visible on disk before Close.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mol_name,volume,sphere_count\naspirin,151.23,6\n", string(content))

	require.NoError(t, c.Append(sampleRows[1]))
	require.NoError(t, c.Close())

	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "mol_name"))

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)
}

func TestCSV_TruncatesPreviousOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,data,here\nmore,stale,rows\n"), 0o644))

	c, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mol_name,volume,sphere_count\n", string(content))
}

func TestCSV_ExclusiveLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are unix only")
	}
	path := filepath.Join(t.TempDir(), "out.csv")
	first, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(sampleRows[0]))

	_, err = NewCSV(path)
	require.ErrorIs(t, err, ErrLocked)

	// The locked run's rows survive the failed second open.
	require.NoError(t, first.Close())
	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows[:1], rows)

	second, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestCSVWriter_QuotesNames(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewCSVWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, c.Append(api.Row{Name: "a,b", Volume: "1.00", SphereCount: 0}))
	require.NoError(t, c.Close())
	assert.Equal(t, "mol_name,volume,sphere_count\n\"a,b\",1.00,0\n", buf.String())
}

func TestSQLite_RowsDurableAtFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	s, err := NewSQLite(path, "run-1")
	require.NoError(t, err)
	s.SetSource("a.sdf")

	require.NoError(t, s.Append(sampleRows[0]))
	require.NoError(t, s.Append(sampleRows[1]))
	require.NoError(t, s.Flush())
	require.NoError(t, s.RecordSummary(api.Summary{Files: 1, Records: 3, Succeeded: 2, Failed: 1}))
	require.NoError(t, s.Close())

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var source, runID string
	require.NoError(t, db.QueryRow("SELECT source, run_id FROM results LIMIT 1").Scan(&source, &runID))
	assert.Equal(t, "a.sdf", source)
	assert.Equal(t, "run-1", runID)

	var failed int
	require.NoError(t, db.QueryRow("SELECT failed FROM runs WHERE id = 'run-1'").Scan(&failed))
	assert.Equal(t, 1, failed)
}

func TestSQLite_ReplacesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	s, err := NewSQLite(path, "first")
	require.NoError(t, err)
	require.NoError(t, s.Append(sampleRows[0]))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path, "second")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestJSONL_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	j, err := NewJSONL(path)
	require.NoError(t, err)
	for _, r := range sampleRows {
		require.NoError(t, j.Append(r))
	}
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"mol_name":"aspirin","sphere_count":6,"volume":"151.23"}`, strings.SplitN(string(content), "\n", 2)[0])

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)
}

func TestReadCSV(t *testing.T) {
	t.Run("columns located by name", func(t *testing.T) {
		rows, err := ReadCSV(strings.NewReader("sphere_count,mol_name\n11,x\n12.0,y\n"))
		require.NoError(t, err)
		assert.Equal(t, []api.Row{{Name: "x", SphereCount: 11}, {Name: "y", SphereCount: 12}}, rows)
	})
	t.Run("name only", func(t *testing.T) {
		rows, err := ReadCSV(strings.NewReader("mol_name\nx\n"))
		require.NoError(t, err)
		assert.Equal(t, []api.Row{{Name: "x"}}, rows)
	})
	t.Run("missing name column", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("id\nx\n"))
		require.Error(t, err)
	})
	t.Run("bad count", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("mol_name,sphere_count\nx,1.5\n"))
		require.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		require.Error(t, err)
	})
}

func TestMemory(t *testing.T) {
	var m Memory
	for _, r := range sampleRows {
		require.NoError(t, m.Append(r))
	}
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())
	rows := m.Rows()
	assert.Equal(t, sampleRows, rows)
	rows[0].Name = "mutated"
	assert.Equal(t, "aspirin", m.Rows()[0].Name)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "a.db", "a.jsonl"} {
		s, err := Open(filepath.Join(dir, name), "run")
		require.NoError(t, err, name)
		require.NoError(t, s.Append(sampleRows[0]))
		require.NoError(t, s.Flush())
		require.NoError(t, s.Close())

		rows, err := ReadRows(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, sampleRows[:1], rows, name)
	}
}
