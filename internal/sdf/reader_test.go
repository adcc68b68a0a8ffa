package sdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRecords = `aspirin
  header
comment
$$$$
  caffeine
  header
$$$$
`

func TestParse(t *testing.T) {
	t.Run("terminated records", func(t *testing.T) {
		records, err := Parse(strings.NewReader(twoRecords))
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, 0, records[0].Index)
		assert.Equal(t, "aspirin", records[0].Name)
		assert.Equal(t, "aspirin\n  header\ncomment\n", records[0].Block)

		assert.Equal(t, 1, records[1].Index)
		assert.Equal(t, "caffeine", records[1].Name, "name is trimmed")
	})

	t.Run("trailing fragment dropped", func(t *testing.T) {
		records, err := Parse(strings.NewReader(twoRecords + "orphan\nno terminator\n"))
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("no terminator at all", func(t *testing.T) {
		records, err := Parse(strings.NewReader("lonely\n  body\n"))
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("empty blocks are skipped", func(t *testing.T) {
		records, err := Parse(strings.NewReader("$$$$\n$$$$\nx\n$$$$\n"))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 0, records[0].Index)
		assert.Equal(t, "x", records[0].Name)
	})

	t.Run("blank first line gives empty name", func(t *testing.T) {
		records, err := Parse(strings.NewReader("\nsecond\n$$$$\n"))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "", records[0].Name)
		assert.Equal(t, "\nsecond\n", records[0].Block)
	})

	t.Run("crlf line endings", func(t *testing.T) {
		records, err := Parse(strings.NewReader("one\r\nbody\r\n$$$$\r\n"))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "one", records[0].Name)
	})

	t.Run("invalid utf8 replaced", func(t *testing.T) {
		records, err := Parse(bytes.NewReader([]byte("bad\xffname\n$$$$\n")))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "bad\uFFFDname", records[0].Name)
	})
}

func TestParse_CountsMatchTerminators(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 25; i++ {
		b.WriteString("mol\nline\n$$$$\n")
	}
	records, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, records, 25)
	for i, r := range records {
		assert.Equal(t, i, r.Index)
	}
}

func TestScan_StopsOnCallbackError(t *testing.T) {
	stop := assert.AnError
	calls := 0
	err := Scan(strings.NewReader(twoRecords), func(Record) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWrite_RoundTrip(t *testing.T) {
	records, err := Parse(strings.NewReader(twoRecords))
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, r := range records {
		require.NoError(t, Write(&buf, r))
	}
	assert.Equal(t, twoRecords, buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, Record{Block: "no newline"}))
	assert.Equal(t, "no newline\n$$$$\n", buf.String())
}
