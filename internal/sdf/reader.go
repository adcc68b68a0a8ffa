// Package sdf splits structure-data files into molecule records.
package sdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Terminator marks the end of a record. The terminator line is not part of the record.
const Terminator = "$$$$"

// Record is one molecule block of an SDF file.
type Record struct {
	// Index is the 0-based position of the record within its file.
	Index int
	// Name is the first line of the block, trimmed. Empty when that line is blank.
	Name string
	// Block is the raw record text, line endings included.
	Block string
}

// Parse reads every terminated record from r.
//
// A record is only emitted when a non-empty block has accumulated at the point a
// terminator is seen. Text after the last terminator (or a stream without any
// terminator) is dropped. Invalid UTF-8 is replaced with U+FFFD.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	err := Scan(r, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Scan streams records from r to fn, one at a time. Scan stops at the first error
// returned by fn.
func Scan(r io.Reader, fn func(Record) error) error {
	br := bufio.NewReader(transform.NewReader(r, unicode.UTF8.NewDecoder()))

	var (
		block strings.Builder
		name  string
		seen  bool
		index int
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read sdf: %w", err)
		}
		if line != "" {
			if strings.HasPrefix(line, Terminator) {
				if block.Len() > 0 {
					if ferr := fn(Record{Index: index, Name: name, Block: block.String()}); ferr != nil {
						return ferr
					}
					index++
				}
				block.Reset()
				name = ""
				seen = false
			} else {
				if !seen {
					name = strings.TrimSpace(line)
					seen = true
				}
				block.WriteString(line)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// Write appends rec to w followed by a terminator line.
func Write(w io.Writer, rec Record) error {
	block := rec.Block
	if block != "" && !strings.HasSuffix(block, "\n") {
		block += "\n"
	}
	if _, err := io.WriteString(w, block+Terminator+"\n"); err != nil {
		return fmt.Errorf("write record %q: %w", rec.Name, err)
	}
	return nil
}
