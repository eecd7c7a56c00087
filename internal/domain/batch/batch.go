// Package batch drives one uploaded table through validation, normalization,
// scoring and labeling.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/normalize"
	"github.com/okian/churnscore/internal/domain/schema"
	"github.com/okian/churnscore/internal/domain/scoring"
	"github.com/okian/churnscore/internal/domain/table"
	"github.com/okian/churnscore/internal/domain/threshold"
	"github.com/okian/churnscore/pkg/logger"
	"github.com/okian/churnscore/pkg/metrics"
)

// Default limits.
const (
	DefaultMaxBytes  = 10 << 20
	DefaultMaxRows   = 100_000
	defaultChunkSize = 512
)

// Batch modes recorded in metrics.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Request is one batch to score.
type Request struct {
	BatchID              string
	Data                 []byte
	Threshold            float64
	ExpectedModelVersion string
	Mode                 string
}

// Result is a completed batch.
type Result struct {
	Report *model.Report
	Output []byte
}

// Orchestrator runs batches. It holds no per-batch state and is safe for
// concurrent use.
type Orchestrator struct {
	models      scoring.ModelSource
	scorer      scoring.Scorer
	maxBytes    int64
	maxRows     int
	parallelism int
	chunkSize   int
	logger      logger.Logger
}

// New creates an Orchestrator.
func New(models scoring.ModelSource, scorer scoring.Scorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		models:      models,
		scorer:      scorer,
		maxBytes:    DefaultMaxBytes,
		maxRows:     DefaultMaxRows,
		parallelism: runtime.NumCPU(),
		chunkSize:   defaultChunkSize,
		logger:      logger.Get().Named("batch"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries per-batch state through the stages.
type run struct {
	o       *Orchestrator
	req     Request
	state   model.State
	started time.Time

	clf     *classifier.Model
	tbl     *table.Table
	results []model.ScoreResult
	vectors []model.FeatureVector
}

// Run scores req. Batch-level and model failures abort before any row
// result is produced; row failures are collected in the report.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = ModeSync
	}
	r := &run{o: o, req: req, state: model.StateReceived, started: time.Now()}
	metrics.RecordStageTransition(string(model.StateReceived))
	metrics.UpdateBatchesInProgress(1)
	defer metrics.UpdateBatchesInProgress(-1)

	res, err := r.execute(ctx)
	rows := 0
	if r.tbl != nil {
		rows = r.tbl.Len()
	}
	if err != nil {
		final := model.StateFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			final = model.StateCancelled
		}
		_ = r.advance(ctx, final)
		metrics.RecordBatch(req.Mode, string(final), rows, time.Since(r.started))
		o.logger.Warn(ctx, "batch aborted",
			logger.String("batchID", req.BatchID),
			logger.String("state", string(final)),
			logger.Error(err),
		)
		return nil, err
	}

	metrics.RecordBatch(req.Mode, string(model.StateComplete), rows, time.Since(r.started))
	o.logger.Info(ctx, "batch complete",
		logger.String("batchID", req.BatchID),
		logger.Int("rows", res.Report.Summary.Total),
		logger.Int("failed", res.Report.Summary.Failed),
		logger.Duration("took", time.Since(r.started)),
	)
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if err := r.admit(); err != nil {
		return nil, err
	}
	if err := r.advance(ctx, model.StateValidating); err != nil {
		return nil, err
	}
	if err := r.validate(ctx); err != nil {
		return nil, err
	}
	if err := r.advance(ctx, model.StateNormalizing); err != nil {
		return nil, err
	}
	if err := r.normalize(ctx); err != nil {
		return nil, err
	}
	if err := r.advance(ctx, model.StateScoring); err != nil {
		return nil, err
	}
	probs, err := r.score(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.advance(ctx, model.StateLabeling); err != nil {
		return nil, err
	}
	r.label(probs)
	rep := r.report()
	out, err := r.encode()
	if err != nil {
		return nil, err
	}
	if err := r.advance(ctx, model.StateComplete); err != nil {
		return nil, err
	}
	rep.State = model.StateComplete
	rep.FinishedAt = time.Now().UTC()
	return &Result{Report: rep, Output: out}, nil
}

// advance moves to next, failing if ctx is done.
func (r *run) advance(ctx context.Context, next model.State) error {
	if !next.Terminal() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch %s: %w", r.req.BatchID, err)
		}
	}
	if !r.state.CanTransition(next) {
		return fmt.Errorf("batch %s: illegal transition %s -> %s", r.req.BatchID, r.state, next)
	}
	r.o.logger.Debug(ctx, "batch state",
		logger.String("batchID", r.req.BatchID),
		logger.String("from", string(r.state)),
		logger.String("to", string(next)),
	)
	r.state = next
	metrics.RecordStageTransition(string(next))
	return nil
}

// admit runs every whole-batch check before row work begins.
func (r *run) admit() error {
	if err := threshold.Validate(r.req.Threshold); err != nil {
		return err
	}
	if int64(len(r.req.Data)) > r.o.maxBytes {
		return model.NewBatchError(model.BatchTooLarge,
			fmt.Sprintf("upload is %d bytes, limit is %d", len(r.req.Data), r.o.maxBytes), nil)
	}

	m, err := r.o.models.Get()
	if err != nil {
		return err
	}
	if err := r.o.scorer.CheckVersion(r.req.ExpectedModelVersion); err != nil {
		return err
	}
	r.clf = m

	tbl, err := table.Parse(r.req.Data)
	switch {
	case errors.Is(err, table.ErrEmpty):
		return model.NewBatchError(model.BatchEmpty, "table has no header row", err)
	case err != nil:
		return model.NewBatchError(model.BatchUnparseable, "table cannot be parsed", err)
	}
	if tbl.Len() > r.o.maxRows {
		return model.NewBatchError(model.BatchTooManyRows,
			fmt.Sprintf("table has %d rows, limit is %d", tbl.Len(), r.o.maxRows), nil)
	}
	tbl.DropColumns(model.ColumnProbability, model.ColumnPrediction)
	if err := schema.New(m.Features()).ValidateHeader(tbl.Header); err != nil {
		return err
	}

	r.tbl = tbl
	r.results = make([]model.ScoreResult, tbl.Len())
	r.vectors = make([]model.FeatureVector, tbl.Len())
	for i := range r.results {
		r.results[i].Row = i
	}
	return nil
}

func (r *run) validate(ctx context.Context) error {
	v := schema.New(r.clf.Features())
	width := len(r.tbl.Header)
	return r.forEachRow(ctx, func(i int) {
		issues := v.ValidateRow(r.tbl.Record(i), width)
		if len(issues) > 0 {
			r.fail(i, model.NewRowError(i, issues...))
		}
	})
}

func (r *run) normalize(ctx context.Context) error {
	n := normalize.New(r.clf.Features())
	return r.forEachRow(ctx, func(i int) {
		if r.results[i].Error != nil {
			return
		}
		vec, err := n.Normalize(r.tbl.Record(i))
		if err != nil {
			var re *model.RowError
			if !errors.As(err, &re) {
				re = model.NewRowError(i, model.FieldIssue{Kind: model.RowNormalization, Message: err.Error()})
			}
			r.fail(i, re)
			return
		}
		r.vectors[i] = vec
	})
}

func (r *run) fail(i int, err *model.RowError) {
	r.results[i] = model.Failed(err)
	metrics.RecordRowFailed(string(err.Kind))
}

// forEachRow applies fn to every row index in parallel chunks. fn must only
// touch index i of the per-row slices.
func (r *run) forEachRow(ctx context.Context, fn func(i int)) error {
	n := r.tbl.Len()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.parallelism)
	for lo := 0; lo < n; lo += r.o.chunkSize {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+r.o.chunkSize, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				fn(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch %s: %w", r.req.BatchID, err)
	}
	return ctx.Err()
}

func (r *run) score(ctx context.Context) (map[int]float64, error) {
	items := make([]scoring.Item, 0, len(r.vectors))
	for i, vec := range r.vectors {
		if r.results[i].Error == nil {
			items = append(items, scoring.Item{Row: i, Vector: vec})
		}
	}
	outcomes, err := r.o.scorer.Score(ctx, items)
	if err != nil {
		return nil, err
	}
	probs := make(map[int]float64, len(outcomes))
	for _, oc := range outcomes {
		if oc.Err != nil {
			r.fail(oc.Row, oc.Err)
			continue
		}
		probs[oc.Row] = oc.Probability
	}
	metrics.RecordRowsScored(len(probs))
	return probs, nil
}

func (r *run) label(probs map[int]float64) {
	for row, p := range probs {
		r.results[row] = model.Succeeded(row, p, threshold.Label(p, r.req.Threshold))
	}
}

func (r *run) report() *model.Report {
	rep := &model.Report{
		BatchID:      r.req.BatchID,
		State:        r.state,
		Threshold:    r.req.Threshold,
		ModelName:    r.clf.Name(),
		ModelVersion: r.clf.Version(),
		ModelHash:    r.clf.Hash(),
		Columns:      append([]string(nil), r.tbl.Header...),
		Results:      r.results,
		Errors:       []model.RowError{},
		StartedAt:    r.started.UTC(),
	}
	rep.Tally()
	return rep
}

func (r *run) encode() ([]byte, error) {
	extra := make([][]string, len(r.results))
	for i, res := range r.results {
		extra[i] = OutputCells(res)
	}
	var buf bytes.Buffer
	if err := table.Encode(&buf, r.tbl, []string{model.ColumnProbability, model.ColumnPrediction}, extra); err != nil {
		return nil, fmt.Errorf("batch %s: %w", r.req.BatchID, err)
	}
	return buf.Bytes(), nil
}

// OutputCells renders the appended cells for one result. Failed rows get
// empty cells.
func OutputCells(res model.ScoreResult) []string {
	if !res.OK() {
		return []string{"", ""}
	}
	return []string{strconv.FormatFloat(*res.Probability, 'f', -1, 64), string(res.Label)}
}
