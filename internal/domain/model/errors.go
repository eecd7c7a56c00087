package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error classes. Typed errors below unwrap to one of these.
var (
	ErrBatch = errors.New("batch rejected")
	ErrRow   = errors.New("row rejected")
	ErrModel = errors.New("model error")
)

// BatchErrorKind names a table-level failure.
type BatchErrorKind string

// Batch-level failure kinds.
const (
	BatchUnparseable      BatchErrorKind = "unparseable"
	BatchEmpty            BatchErrorKind = "empty"
	BatchMissingColumns   BatchErrorKind = "missing_columns"
	BatchDuplicateColumns BatchErrorKind = "duplicate_columns"
	BatchTooLarge         BatchErrorKind = "too_large"
	BatchTooManyRows      BatchErrorKind = "too_many_rows"
	BatchInvalidThreshold BatchErrorKind = "invalid_threshold"
)

// BatchError aborts a batch before any row is processed.
type BatchError struct {
	Kind    BatchErrorKind `json:"kind"`
	Message string         `json:"message"`
	Columns []string       `json:"columns,omitempty"`
	Err     error          `json:"-"`
}

func (e *BatchError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Columns) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Columns, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches ErrBatch.
func (e *BatchError) Is(target error) bool { return target == ErrBatch }

func (e *BatchError) Unwrap() error { return e.Err }

// NewBatchError builds a BatchError.
func NewBatchError(kind BatchErrorKind, msg string, cause error) *BatchError {
	return &BatchError{Kind: kind, Message: msg, Err: cause}
}

// RowErrorKind names a row-scoped failure.
type RowErrorKind string

// Row-level failure kinds.
const (
	RowWrongType       RowErrorKind = "wrong_type"
	RowOutOfRange      RowErrorKind = "out_of_range"
	RowMissingValue    RowErrorKind = "missing_value"
	RowUnknownCategory RowErrorKind = "unknown_category"
	RowFieldCount      RowErrorKind = "field_count"
	RowNormalization   RowErrorKind = "normalization"
	RowMalformedVector RowErrorKind = "malformed_vector"
)

// FieldIssue is a single problem with one cell.
type FieldIssue struct {
	Column  string       `json:"column,omitempty"`
	Kind    RowErrorKind `json:"kind"`
	Message string       `json:"message"`
}

// RowError rejects one row. The first issue is the primary cause.
type RowError struct {
	Row     int          `json:"row"`
	Column  string       `json:"column,omitempty"`
	Kind    RowErrorKind `json:"kind"`
	Message string       `json:"message"`
	Issues  []FieldIssue `json:"issues,omitempty"`
}

func (e *RowError) Error() string {
	msg := fmt.Sprintf("row %d: %s", e.Row, e.Message)
	if e.Column != "" {
		msg = fmt.Sprintf("row %d: column %q: %s", e.Row, e.Column, e.Message)
	}
	if extra := len(e.Issues) - 1; extra > 0 {
		msg += fmt.Sprintf(" (+%d more)", extra)
	}
	return msg
}

// Is matches ErrRow.
func (e *RowError) Is(target error) bool { return target == ErrRow }

// NewRowError builds a RowError from one or more issues. It panics when
// issues is empty.
func NewRowError(row int, issues ...FieldIssue) *RowError {
	first := issues[0]
	e := &RowError{Row: row, Column: first.Column, Kind: first.Kind, Message: first.Message}
	if len(issues) > 1 {
		e.Issues = append([]FieldIssue(nil), issues...)
	}
	return e
}

// ModelErrorKind names a classifier failure.
type ModelErrorKind string

// Model failure kinds.
const (
	ModelUnavailable     ModelErrorKind = "unavailable"
	ModelVersionMismatch ModelErrorKind = "version_mismatch"
)

// ModelError aborts a batch because the classifier cannot serve it.
type ModelError struct {
	Kind    ModelErrorKind `json:"kind"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("model %s: %s", e.Kind, e.Message)
}

// Is matches ErrModel.
func (e *ModelError) Is(target error) bool { return target == ErrModel }

func (e *ModelError) Unwrap() error { return e.Err }
