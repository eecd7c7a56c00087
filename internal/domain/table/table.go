// Package table decodes uploaded customer tables and encodes scored output.
package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/churnscore/internal/domain/model"
)

// Errors returned by Parse.
var (
	ErrEmpty       = errors.New("table has no header")
	ErrUnparseable = errors.New("table cannot be parsed")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF} //nolint:gochecknoglobals // constant byte sequence

// Candidate delimiters in preference order.
var delimiters = []rune{',', ';', '\t'} //nolint:gochecknoglobals // constant set

// Table is a parsed delimited table. Rows may be ragged.
type Table struct {
	Header    []string
	Rows      [][]string
	Delimiter rune

	// fieldCounts holds per-row cell counts adjusted for dropped columns.
	// Nil until DropColumns removes something.
	fieldCounts []int
}

// Parse decodes data, detecting the delimiter from the header line.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	delim := DetectDelimiter(data)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: header: %w", ErrUnparseable, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header, Delimiter: delim}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
		}
		// A line with no delimiter and only whitespace carries no cells.
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// DetectDelimiter picks the candidate occurring most often in the first
// line outside of quotes. Comma wins ties and the no-match case.
func DetectDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadString('\n')
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}
	best := delimiters[0]
	for _, d := range delimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Record returns row i as a model.Record keyed by header name.
func (t *Table) Record(i int) model.Record {
	row := t.Rows[i]
	values := make(map[string]string, len(t.Header))
	for j, name := range t.Header {
		if j < len(row) {
			values[name] = row[j]
		} else {
			values[name] = ""
		}
	}
	return model.Record{Row: i, Values: values, FieldCount: t.fieldCount(i)}
}

func (t *Table) fieldCount(i int) int {
	if t.fieldCounts != nil {
		return t.fieldCounts[i]
	}
	return len(t.Rows[i])
}

// DropColumns removes the named columns from the header and every row.
// It reports whether anything was removed. A row's field count stays
// relative to the original header, so ragged rows remain ragged.
func (t *Table) DropColumns(names ...string) bool {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	keep := make([]int, 0, len(t.Header))
	for i, h := range t.Header {
		if _, ok := drop[h]; !ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(t.Header) {
		return false
	}
	dropped := len(t.Header) - len(keep)
	counts := make([]int, len(t.Rows))
	for i := range t.Rows {
		counts[i] = t.fieldCount(i) - dropped
	}
	t.fieldCounts = counts
	t.Header = pick(t.Header, keep)
	for i, row := range t.Rows {
		t.Rows[i] = pick(row, keep)
	}
	return true
}

func pick(row []string, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		if i < len(row) {
			out = append(out, row[i])
		}
	}
	return out
}

// Preview returns a copy of t limited to the first n rows.
func (t *Table) Preview(n int) *Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	p := &Table{Header: t.Header, Rows: t.Rows[:n], Delimiter: t.Delimiter}
	if t.fieldCounts != nil {
		p.fieldCounts = t.fieldCounts[:n]
	}
	return p
}

// Encode writes t with extra columns appended. extra must hold one row per
// data row; short rows are padded to the header width.
func Encode(w io.Writer, t *Table, extraHeader []string, extra [][]string) error {
	if len(extra) != len(t.Rows) {
		return fmt.Errorf("encode: %d extra rows for %d data rows", len(extra), len(t.Rows))
	}
	cw := csv.NewWriter(w)
	cw.Comma = t.Delimiter

	width := len(t.Header)
	if err := cw.Write(append(append([]string(nil), t.Header...), extraHeader...)); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	line := make([]string, 0, width+len(extraHeader))
	for i, row := range t.Rows {
		line = line[:0]
		for j := 0; j < width; j++ {
			if j < len(row) {
				line = append(line, row[j])
			} else {
				line = append(line, "")
			}
		}
		line = append(line, extra[i]...)
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
