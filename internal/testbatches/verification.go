package testbatches

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/okian/churnscore/internal/domain/table"
)

// Verification sentinels.
var (
	ErrRowCount = errors.New("row count mismatch")
	ErrRowOrder = errors.New("row order changed")
	ErrColumns  = errors.New("unexpected columns")
	ErrLabel    = errors.New("label disagrees with threshold")
	ErrBadRow   = errors.New("invalid row handled incorrectly")
	ErrMismatch = errors.New("sync and async outputs differ")
)

// Outcome tallies a verified scored table.
type Outcome struct {
	Scored int
	Failed int
}

// VerifyOutput checks a scored table against the dataset it was built from.
// Input columns and row order must be preserved, every valid row must carry
// a probability in [0,1] with a label matching threshold, and every
// corrupted row must carry empty cells.
func VerifyOutput(ds *Dataset, output []byte, threshold float64) (Outcome, error) {
	var out Outcome
	in, err := table.Parse(ds.Data)
	if err != nil {
		return out, fmt.Errorf("parse input: %w", err)
	}
	got, err := table.Parse(output)
	if err != nil {
		return out, fmt.Errorf("parse output: %w", err)
	}

	wantHeader := append(slices.Clone(in.Header), ColumnProbability, ColumnPrediction)
	if !slices.Equal(got.Header, wantHeader) {
		return out, fmt.Errorf("%w: %v", ErrColumns, got.Header)
	}
	if got.Len() != len(ds.IDs) {
		return out, fmt.Errorf("%w: got %d rows, want %d", ErrRowCount, got.Len(), len(ds.IDs))
	}

	pIdx, lIdx := len(in.Header), len(in.Header)+1
	for i, row := range got.Rows {
		if row[0] != ds.IDs[i] {
			return out, fmt.Errorf("%w: row %d is %s, want %s", ErrRowOrder, i, row[0], ds.IDs[i])
		}
		if !slices.Equal(row[:pIdx], in.Rows[i]) {
			return out, fmt.Errorf("%w: row %d input cells were modified", ErrRowOrder, i)
		}

		if _, bad := slices.BinarySearch(ds.BadRows, i); bad {
			if row[pIdx] != "" || row[lIdx] != "" {
				return out, fmt.Errorf("%w: row %d scored as %s/%s", ErrBadRow, i, row[pIdx], row[lIdx])
			}
			out.Failed++
			continue
		}

		p, err := strconv.ParseFloat(row[pIdx], 64)
		if err != nil || p < 0 || p > 1 {
			return out, fmt.Errorf("%w: row %d probability %q", ErrBadRow, i, row[pIdx])
		}
		want := "No"
		if p >= threshold {
			want = "Yes"
		}
		if row[lIdx] != want {
			return out, fmt.Errorf("%w: row %d p=%v label %s", ErrLabel, i, p, row[lIdx])
		}
		out.Scored++
	}
	return out, nil
}

// VerifySame checks that two scored tables are byte-identical.
func VerifySame(syncOut, asyncOut []byte) error {
	if !bytes.Equal(syncOut, asyncOut) {
		return fmt.Errorf("%w: %d vs %d bytes", ErrMismatch, len(syncOut), len(asyncOut))
	}
	return nil
}
