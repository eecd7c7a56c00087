// Package normalize encodes validated customer records into feature vectors.
package normalize

import (
	"fmt"
	"math"

	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/schema"
)

// Normalizer maps records to vectors in artifact feature order. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	features []classifier.Feature
	dim      int
}

// New builds a Normalizer for the given features.
func New(features []classifier.Feature) *Normalizer {
	n := &Normalizer{features: features}
	for _, f := range features {
		n.dim += f.Width()
	}
	return n
}

// Dim returns the produced vector length.
func (n *Normalizer) Dim() int { return n.dim }

// Normalize encodes rec. Failures are returned as *model.RowError.
func (n *Normalizer) Normalize(rec model.Record) (model.FeatureVector, error) {
	vec := make(model.FeatureVector, 0, n.dim)
	for _, f := range n.features {
		col := f.ColumnName()
		raw, _ := rec.Value(col)
		if raw == "" {
			if f.Missing.Policy != classifier.MissingImpute {
				return nil, rowError(rec.Row, col, model.RowMissingValue, "value is required")
			}
			raw = f.Missing.Default
		}

		switch f.Kind {
		case classifier.KindNumeric:
			x, err := schema.ParseNumber(raw)
			if err != nil {
				return nil, rowError(rec.Row, col, model.RowNormalization, fmt.Sprintf("%q is not a number", raw))
			}
			s := f.Scale(x)
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return nil, rowError(rec.Row, col, model.RowNormalization, "scaled value is not finite")
			}
			vec = append(vec, s)
		case classifier.KindCategorical:
			slot := f.CategoryIndex(raw)
			if slot < 0 {
				slot = len(f.Categories)
			}
			for i := 0; i < f.Width(); i++ {
				if i == slot {
					vec = append(vec, 1)
				} else {
					vec = append(vec, 0)
				}
			}
		}
	}
	return vec, nil
}

func rowError(row int, col string, kind model.RowErrorKind, msg string) *model.RowError {
	return model.NewRowError(row, model.FieldIssue{Column: col, Kind: kind, Message: msg})
}
