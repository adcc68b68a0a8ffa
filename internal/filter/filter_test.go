package filter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/spherepack/api"
	"github.com/agentic-research/spherepack/internal/sdf"
)

func TestSelectCounts(t *testing.T) {
	rows := []api.Row{
		{Name: "a", SphereCount: 9},
		{Name: "b", SphereCount: 10},
		{Name: "c", SphereCount: 11},
		{Name: "d", SphereCount: 12},
		{Name: "e", SphereCount: 13},
		{Name: "f", SphereCount: 11},
	}
	assert.Equal(t, []string{"b", "c", "d", "f"}, SelectCounts(rows, 11))
	assert.Empty(t, SelectCounts(rows, 40))
	assert.Equal(t, []string{"a"}, SelectCounts(rows, 8))
}

func TestWriteAndLoadIDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIDs(&buf, []string{"x", "y,z"}))
	assert.Equal(t, "mol_name\nx\n\"y,z\"\n", buf.String())

	ids, err := LoadIDs(&buf)
	require.NoError(t, err)
	assert.True(t, ids.Has("x"))
	assert.True(t, ids.Has("y,z"))
	assert.False(t, ids.Has("w"))
}

func TestLoadIDs_FullResultsTable(t *testing.T) {
	ids, err := LoadIDs(strings.NewReader("mol_name,volume,sphere_count\nm1,1.00,0\n"))
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	_, err = LoadIDs(strings.NewReader("id\nm1\n"))
	require.Error(t, err)
}

func TestSDF_Run(t *testing.T) {
	input := "keep1\nbody\n$$$$\ndrop\nbody\n$$$$\nkeep2\nbroken\n$$$$\nkeep3\nbody\n$$$$\n"
	seen := 0
	f := SDF{
		IDs:   IDSet{"keep1": {}, "keep2": {}, "keep3": {}},
		Valid: func(block string) bool { return !strings.Contains(block, "broken") },
		Seen:  func() { seen++ },
	}
	var out bytes.Buffer
	n, err := f.Run(strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, seen)
	assert.Equal(t, "keep1\nbody\n$$$$\nkeep3\nbody\n$$$$\n", out.String())

	recs, err := sdf.Parse(&out)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "keep3", recs[1].Name)
}

func TestSDF_NilValidAcceptsAll(t *testing.T) {
	var out bytes.Buffer
	n, err := SDF{IDs: IDSet{"a": {}}}.Run(strings.NewReader("a\n$$$$\na\n$$$$\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
