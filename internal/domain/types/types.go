// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/churnscore/internal/domain/model"
)

// Status is the lifecycle of an asynchronous batch.
type Status string

// Batch statuses.
const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the batch has finished.
func (s Status) Terminal() bool { return s == StatusComplete || s == StatusFailed }

// Batch is a stored asynchronous batch.
type Batch struct {
	ID           string        `json:"batch_id"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	Threshold    float64       `json:"threshold"`
	ModelVersion string        `json:"model_version,omitempty"`
	ModelHash    string        `json:"model_hash,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	Report       *model.Report `json:"report,omitempty"`
	Input        []byte        `json:"-"`
	Output       []byte        `json:"-"`
}

// Summary returns b without payloads, for listings.
func (b *Batch) Summary() Batch {
	s := *b
	s.Input, s.Output = nil, nil
	if b.Report != nil {
		r := *b.Report
		r.Results, r.Errors = nil, nil
		s.Report = &r
	}
	return s
}

// ModelInfo describes the loaded classifier.
type ModelInfo struct {
	Name            string        `json:"name"`
	Version         string        `json:"version"`
	Hash            string        `json:"hash"`
	Dim             int           `json:"dim"`
	RequiredColumns []string      `json:"required_columns"`
	Features        []FeatureInfo `json:"features"`
}

// FeatureInfo describes one model input.
type FeatureInfo struct {
	Name       string   `json:"name"`
	Column     string   `json:"column"`
	Kind       string   `json:"kind"`
	Missing    string   `json:"missing"`
	Categories []string `json:"categories,omitempty"`
	Optional   bool     `json:"optional,omitempty"`
}

// Preview is the head of an uploaded table.
type Preview struct {
	Columns     []string   `json:"columns"`
	Rows        [][]string `json:"rows"`
	RowCount    int        `json:"row_count"`
	ColumnCount int        `json:"column_count"`
	Delimiter   string     `json:"delimiter"`
}
