// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Output column names appended to every scored table.
const (
	ColumnProbability = "Churn Probability"
	ColumnPrediction  = "Churn Prediction"
)

// Record is one input row (a customer) keyed by column name.
// Missing cells are empty strings.
type Record struct {
	Row        int               // zero-based data row index within the batch
	Values     map[string]string // column name -> raw cell
	FieldCount int               // number of cells present in the source line
}

// Value returns the trimmed cell for column and whether the column exists.
func (r Record) Value(column string) (string, bool) {
	v, ok := r.Values[column]
	return strings.TrimSpace(v), ok
}

// FeatureVector is the fixed-order numeric encoding consumed by the classifier.
type FeatureVector []float64

// Label is the thresholded churn prediction.
type Label string

// Prediction labels.
const (
	LabelYes Label = "Yes"
	LabelNo  Label = "No"
)

// ScoreResult is the outcome for one row. Exactly one of
// (Probability, Label) or Error is populated.
type ScoreResult struct {
	Row         int       `json:"row"`
	Probability *float64  `json:"probability,omitempty"`
	Label       Label     `json:"label,omitempty"`
	Error       *RowError `json:"error,omitempty"`
}

// OK reports whether the row was scored.
func (r ScoreResult) OK() bool { return r.Error == nil && r.Probability != nil }

// Succeeded builds a scored result.
func Succeeded(row int, p float64, label Label) ScoreResult {
	return ScoreResult{Row: row, Probability: &p, Label: label}
}

// Failed builds a rejected result.
func Failed(err *RowError) ScoreResult {
	return ScoreResult{Row: err.Row, Error: err}
}

// Summary holds aggregate counts of a batch.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Report is the row-aligned outcome of one batch.
type Report struct {
	BatchID      string        `json:"batch_id,omitempty"`
	State        State         `json:"state"`
	Threshold    float64       `json:"threshold"`
	ModelName    string        `json:"model_name"`
	ModelVersion string        `json:"model_version"`
	ModelHash    string        `json:"model_hash"`
	Columns      []string      `json:"columns"`
	Summary      Summary       `json:"summary"`
	Results      []ScoreResult `json:"results"`
	Errors       []RowError    `json:"errors"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Tally recomputes Summary and Errors from Results.
func (r *Report) Tally() {
	r.Summary = Summary{Total: len(r.Results)}
	r.Errors = r.Errors[:0]
	for _, res := range r.Results {
		if res.OK() {
			r.Summary.Succeeded++
			continue
		}
		r.Summary.Failed++
		if res.Error != nil {
			r.Errors = append(r.Errors, *res.Error)
		}
	}
}
