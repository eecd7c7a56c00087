package batch

import (
	"github.com/okian/churnscore/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithMaxBytes rejects inputs larger than n bytes.
func WithMaxBytes(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// WithMaxRows rejects tables with more than n data rows.
func WithMaxRows(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRows = n
		}
	}
}

// WithParallelism bounds concurrent row validation and normalization.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithChunkSize sets how many rows one goroutine handles per stage.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger overrides the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
