package repository

import "errors"

// Sentinel kinds for report store errors.
var (
	ErrNotFound     = errors.New("batch not found")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrInvalidBatch = errors.New("invalid batch record")
)
