// Package scoring applies the loaded churn classifier to batches of feature
// vectors.
package scoring

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/pkg/metrics"
)

// Default engine configuration.
const (
	defaultChunkSize = 1024
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithParallelism bounds the number of chunks evaluated at once.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithChunkSize sets how many vectors one goroutine evaluates.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// Item is one vector to score, tagged with its input row.
type Item struct {
	Row    int
	Vector model.FeatureVector
}

// Outcome is the probability for one Item, or the row error that excluded it.
type Outcome struct {
	Row         int
	Probability float64
	Err         *model.RowError
}

// ModelSource yields the process-wide classifier.
type ModelSource interface {
	Get() (*classifier.Model, error)
}

// Scorer computes probabilities for a batch of vectors.
type Scorer interface {
	// Score returns one Outcome per item in input order, honoring ctx.
	Score(ctx context.Context, items []Item) ([]Outcome, error)
	// CheckVersion fails when expected is set and differs from the model.
	CheckVersion(expected string) error
}

// Engine implements Scorer with chunked parallel evaluation.
type Engine struct {
	source      ModelSource
	parallelism int
	chunkSize   int
}

var _ Scorer = (*Engine)(nil)

// NewEngine creates a scoring engine over source.
func NewEngine(source ModelSource, opts ...Option) *Engine {
	e := &Engine{
		source:      source,
		parallelism: runtime.NumCPU(),
		chunkSize:   defaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates items. Malformed vectors become row errors and never reach
// the model. Cancellation is checked between chunks.
func (e *Engine) Score(ctx context.Context, items []Item) ([]Outcome, error) {
	m, err := e.source.Get()
	if err != nil {
		metrics.RecordScoringError(string(model.ModelUnavailable))
		return nil, err
	}

	start := time.Now()
	out := make([]Outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for lo := 0; lo < len(items); lo += e.chunkSize {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+e.chunkSize, len(items))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i] = predict(m, items[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	return out, nil
}

func predict(m *classifier.Model, it Item) Outcome {
	p, err := m.Predict(it.Vector)
	if err != nil {
		metrics.RecordScoringError(string(model.RowMalformedVector))
		return Outcome{Row: it.Row, Err: model.NewRowError(it.Row, model.FieldIssue{
			Kind:    model.RowMalformedVector,
			Message: err.Error(),
		})}
	}
	return Outcome{Row: it.Row, Probability: p}
}

// CheckVersion compares expected against the loaded model version.
func (e *Engine) CheckVersion(expected string) error {
	m, err := e.source.Get()
	if err != nil {
		return err
	}
	if expected != "" && expected != m.Version() {
		return &model.ModelError{
			Kind:    model.ModelVersionMismatch,
			Message: fmt.Sprintf("batch expects version %q, loaded model is %q", expected, m.Version()),
		}
	}
	return nil
}

// Version returns the loaded model version, or "" when none is loaded.
func (e *Engine) Version() string {
	if m, err := e.source.Get(); err == nil {
		return m.Version()
	}
	return ""
}

// Hash returns the loaded model hash, or "" when none is loaded.
func (e *Engine) Hash() string {
	if m, err := e.source.Get(); err == nil {
		return m.Hash()
	}
	return ""
}
