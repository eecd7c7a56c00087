// Package schema checks uploaded tables against the columns and value
// constraints declared by the model artifact.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/internal/domain/model"
)

// Validator checks headers and rows. It is safe for concurrent use.
type Validator struct {
	features []classifier.Feature
	required []string
}

// New builds a Validator for the given feature definitions.
func New(features []classifier.Feature) *Validator {
	v := &Validator{features: features}
	for _, f := range features {
		if !f.Optional {
			v.required = append(v.required, f.ColumnName())
		}
	}
	return v
}

// ValidateHeader fails when required columns are missing or a column name
// repeats. Extra columns are allowed.
func (v *Validator) ValidateHeader(columns []string) error {
	present := make(map[string]int, len(columns))
	var dups []string
	for _, c := range columns {
		present[c]++
		if present[c] == 2 {
			dups = append(dups, c)
		}
	}

	var missing []string
	for _, c := range v.required {
		if present[c] == 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		e := model.NewBatchError(model.BatchMissingColumns, "required columns are missing", nil)
		e.Columns = missing
		return e
	}
	if len(dups) > 0 {
		e := model.NewBatchError(model.BatchDuplicateColumns, "column names must be unique", nil)
		e.Columns = dups
		return e
	}
	return nil
}

// ValidateRow returns every problem found in rec. width is the header width;
// a row with a different cell count is rejected as a whole.
func (v *Validator) ValidateRow(rec model.Record, width int) []model.FieldIssue {
	if rec.FieldCount != width {
		return []model.FieldIssue{{
			Kind:    model.RowFieldCount,
			Message: fmt.Sprintf("row has %d fields, header has %d", rec.FieldCount, width),
		}}
	}

	var issues []model.FieldIssue
	for _, f := range v.features {
		if issue, ok := checkField(f, rec); !ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

func checkField(f classifier.Feature, rec model.Record) (model.FieldIssue, bool) {
	col := f.ColumnName()
	raw, _ := rec.Value(col)
	if raw == "" {
		if f.Missing.Policy == classifier.MissingReject {
			return model.FieldIssue{Column: col, Kind: model.RowMissingValue, Message: "value is required"}, false
		}
		return model.FieldIssue{}, true
	}

	switch f.Kind {
	case classifier.KindNumeric:
		x, err := ParseNumber(raw)
		if err != nil {
			return model.FieldIssue{Column: col, Kind: model.RowWrongType, Message: fmt.Sprintf("%q is not a number", raw)}, false
		}
		if !f.Valid.Contains(x) {
			return model.FieldIssue{Column: col, Kind: model.RowOutOfRange, Message: fmt.Sprintf("%v is outside the valid range", x)}, false
		}
	case classifier.KindCategorical:
		if f.Strict && f.CategoryIndex(raw) < 0 {
			return model.FieldIssue{
				Column:  col,
				Kind:    model.RowUnknownCategory,
				Message: fmt.Sprintf("%q is not one of %s", raw, strings.Join(f.Categories, ", ")),
			}, false
		}
	}
	return model.FieldIssue{}, true
}

// ParseNumber parses a finite decimal number.
func ParseNumber(raw string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, strconv.ErrSyntax
	}
	return x, nil
}
