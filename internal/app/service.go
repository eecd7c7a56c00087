// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/churnscore/internal/adapters/mq/queue"
	workerpool "github.com/okian/churnscore/internal/adapters/mq/worker"
	"github.com/okian/churnscore/internal/adapters/repository"
	"github.com/okian/churnscore/internal/domain/batch"
	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/internal/domain/dedupe"
	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/scoring"
	"github.com/okian/churnscore/internal/domain/table"
	"github.com/okian/churnscore/internal/domain/threshold"
	"github.com/okian/churnscore/internal/domain/types"
	"github.com/okian/churnscore/pkg/logger"
	"github.com/okian/churnscore/pkg/metrics"
)

// Default service configuration.
const (
	defaultQueueSize   = 256
	defaultDedupeSize  = 10_000
	defaultSyncTimeout = 30 * time.Second
	defaultPreviewRows = 5
)

// Submission is an upload to score.
type Submission struct {
	Data         []byte
	Threshold    float64
	ModelVersion string
}

// Accepted is the outcome of an async submission.
type Accepted struct {
	BatchID   string       `json:"batch_id"`
	Status    types.Status `json:"status"`
	Duplicate bool         `json:"duplicate"`
}

// Service implements the API dependencies for the churn scoring system.
type Service struct {
	mu sync.RWMutex

	// Core components
	holder       *classifier.Holder
	engine       *scoring.Engine
	orchestrator *batch.Orchestrator
	store        repository.Store
	deduper      dedupe.Deduper
	jobQueue     *jobqueue.InMemoryQueue
	workerPool   *workerpool.Pool

	// Configuration
	model            *classifier.Model
	workerCount      int
	queueSize        int
	dedupeSize       int
	scoreParallelism int
	scoreChunkSize   int
	maxUploadBytes   int64
	maxRows          int
	defaultThreshold float64
	syncTimeout      time.Duration

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		scoreParallelism: runtime.NumCPU(),
		maxUploadBytes:   batch.DefaultMaxBytes,
		maxRows:          batch.DefaultMaxRows,
		defaultThreshold: threshold.Default,
		syncTimeout:      defaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the model and starts the async pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := threshold.Validate(s.defaultThreshold); err != nil {
		return fmt.Errorf("default threshold: %w", err)
	}

	m := s.model
	if m == nil {
		var err error
		if m, err = classifier.Default(); err != nil {
			return fmt.Errorf("load bundled model: %w", err)
		}
	}
	s.holder = classifier.NewHolder()
	if err := s.holder.Load(m); err != nil {
		return err
	}
	metrics.SetModelInfo(m.Name(), m.Version(), m.Hash())

	s.engine = scoring.NewEngine(s.holder,
		scoring.WithParallelism(s.scoreParallelism),
		scoring.WithChunkSize(s.scoreChunkSize),
	)
	s.orchestrator = batch.New(s.holder, s.engine,
		batch.WithMaxBytes(s.maxUploadBytes),
		batch.WithMaxRows(s.maxRows),
		batch.WithParallelism(s.scoreParallelism),
		batch.WithChunkSize(s.scoreChunkSize),
	)
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobQueue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "churn scoring service started",
		logger.String("model", m.Name()),
		logger.String("version", m.Version()),
		logger.String("hash", m.Hash()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains queued batches until ctx expires, then closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping churn scoring service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.started = false
	s.logger.Info(ctx, "churn scoring service stopped")
	return errors.Join(errs...)
}

// DefaultThreshold returns the cutoff applied when a request omits one.
func (s *Service) DefaultThreshold() float64 { return s.defaultThreshold }

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

// ScoreSync scores sub on the calling goroutine, bounded by the sync timeout.
func (s *Service) ScoreSync(ctx context.Context, sub Submission) (*batch.Result, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	return s.orchestrator.Run(ctx, batch.Request{
		BatchID:              uuid.NewString(),
		Data:                 sub.Data,
		Threshold:            sub.Threshold,
		ExpectedModelVersion: sub.ModelVersion,
		Mode:                 batch.ModeSync,
	})
}

// Submit accepts sub for asynchronous scoring. Identical submissions return
// the batch already accepted.
func (s *Service) Submit(ctx context.Context, sub Submission) (Accepted, error) {
	if !s.isStarted() {
		return Accepted{}, ErrNotStarted
	}
	if err := threshold.Validate(sub.Threshold); err != nil {
		return Accepted{}, err
	}
	if int64(len(sub.Data)) > s.maxUploadBytes {
		return Accepted{}, model.NewBatchError(model.BatchTooLarge,
			fmt.Sprintf("upload is %d bytes, limit is %d", len(sub.Data), s.maxUploadBytes), nil)
	}
	if err := s.engine.CheckVersion(sub.ModelVersion); err != nil {
		return Accepted{}, err
	}

	key := dedupe.Key(sub.Data, sub.Threshold, s.engine.Hash())
	id, seen := s.deduper.Claim(ctx, key, uuid.NewString())
	if seen {
		b, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			return s.duplicate(ctx, id, b.Status), nil
		case !errors.Is(err, repository.ErrNotFound):
			return Accepted{}, fmt.Errorf("load batch %s: %w", id, err)
		}
		// The earlier batch was pruned from the store; accept the upload again.
		owner, replaced := s.deduper.Replace(ctx, key, id, uuid.NewString())
		if !replaced {
			return s.duplicate(ctx, owner, types.StatusQueued), nil
		}
		s.logger.Debug(ctx, "dedupe entry outlived its batch",
			logger.String("prunedID", id), logger.String("batchID", owner))
		id = owner
	}

	now := time.Now().UTC()
	rec := &types.Batch{
		ID:           id,
		Status:       types.StatusQueued,
		CreatedAt:    now,
		Threshold:    sub.Threshold,
		ModelVersion: s.engine.Version(),
		ModelHash:    s.engine.Hash(),
		Input:        sub.Data,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		s.deduper.Release(ctx, key)
		return Accepted{}, fmt.Errorf("save batch %s: %w", id, err)
	}

	err := s.jobQueue.Enqueue(ctx, model.Job{
		BatchID:              id,
		Key:                  key,
		Data:                 sub.Data,
		Threshold:            sub.Threshold,
		ExpectedModelVersion: sub.ModelVersion,
		EnqueuedAt:           now,
	})
	if err != nil {
		s.deduper.Release(ctx, key)
		// The caller gets no batch ID, so leave no record behind.
		if derr := s.store.Delete(context.WithoutCancel(ctx), id); derr != nil {
			s.logger.Warn(ctx, "failed to remove rejected batch",
				logger.String("batchID", id), logger.Error(derr))
		}
		if errors.Is(err, jobqueue.ErrFull) || errors.Is(err, jobqueue.ErrClosed) {
			return Accepted{}, fmt.Errorf("%w: %w", ErrQueueFull, err)
		}
		return Accepted{}, err
	}
	return Accepted{BatchID: id, Status: types.StatusQueued}, nil
}

func (s *Service) duplicate(ctx context.Context, id string, status types.Status) Accepted {
	metrics.RecordBatchDeduplicated()
	s.logger.Debug(ctx, "duplicate batch", logger.String("batchID", id))
	return Accepted{BatchID: id, Status: status, Duplicate: true}
}

// Process runs one queued batch and persists its outcome.
func (s *Service) Process(ctx context.Context, j model.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	rec, err := s.store.Get(ctx, j.BatchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", j.BatchID, err)
	}
	rec.Status = types.StatusRunning
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("mark batch %s running: %w", j.BatchID, err)
	}

	res, runErr := s.orchestrator.Run(ctx, batch.Request{
		BatchID:              j.BatchID,
		Data:                 j.Data,
		Threshold:            j.Threshold,
		ExpectedModelVersion: j.ExpectedModelVersion,
		Mode:                 batch.ModeAsync,
	})
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		// Shutdown cancelled the batch; let an identical upload run again.
		s.deduper.Release(ctx, j.Key)
	}
	return s.finish(context.WithoutCancel(ctx), rec, res, runErr)
}

// finish records the terminal state of rec.
func (s *Service) finish(ctx context.Context, rec *types.Batch, res *batch.Result, runErr error) error {
	done := time.Now().UTC()
	rec.FinishedAt = &done
	if runErr != nil {
		rec.Status = types.StatusFailed
		rec.ErrorKind = ErrorKind(runErr)
		rec.Error = runErr.Error()
	} else {
		rec.Status = types.StatusComplete
		rec.Report = res.Report
		rec.Output = res.Output
		rec.ModelVersion = res.Report.ModelVersion
		rec.ModelHash = res.Report.ModelHash
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save batch %s: %w", rec.ID, err)
	}
	return runErr
}

// Batch returns the stored batch with id.
func (s *Service) Batch(ctx context.Context, id string) (*types.Batch, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	b, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

// Batches lists the most recent batches, newest first.
func (s *Service) Batches(ctx context.Context, limit int) ([]types.Batch, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.store.List(ctx, limit)
}

// Download returns the scored table of a completed batch.
func (s *Service) Download(ctx context.Context, id string) ([]byte, error) {
	b, err := s.Batch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != types.StatusComplete {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, b.Status)
	}
	return b.Output, nil
}

// Preview returns the first rows of a batch's input. rows <= 0 uses a default.
func (s *Service) Preview(ctx context.Context, id string, rows int) (*types.Preview, error) {
	b, err := s.Batch(ctx, id)
	if err != nil {
		return nil, err
	}
	return PreviewTable(b.Input, rows)
}

// PreviewTable parses data and returns its head without scoring.
func PreviewTable(data []byte, rows int) (*types.Preview, error) {
	if rows <= 0 {
		rows = defaultPreviewRows
	}
	tbl, err := table.Parse(data)
	switch {
	case errors.Is(err, table.ErrEmpty):
		return nil, model.NewBatchError(model.BatchEmpty, "table has no header row", err)
	case err != nil:
		return nil, model.NewBatchError(model.BatchUnparseable, "table cannot be parsed", err)
	}
	head := tbl.Preview(rows)
	return &types.Preview{
		Columns:     tbl.Header,
		Rows:        head.Rows,
		RowCount:    tbl.Len(),
		ColumnCount: len(tbl.Header),
		Delimiter:   string(tbl.Delimiter),
	}, nil
}

// ModelInfo describes the loaded classifier.
func (s *Service) ModelInfo(_ context.Context) (types.ModelInfo, error) {
	if !s.isStarted() {
		return types.ModelInfo{}, ErrNotStarted
	}
	m, err := s.holder.Get()
	if err != nil {
		return types.ModelInfo{}, err
	}
	info := types.ModelInfo{
		Name:            m.Name(),
		Version:         m.Version(),
		Hash:            m.Hash(),
		Dim:             m.Dim(),
		RequiredColumns: m.RequiredColumns(),
	}
	for _, f := range m.Features() {
		info.Features = append(info.Features, types.FeatureInfo{
			Name:       f.Name,
			Column:     f.ColumnName(),
			Kind:       f.Kind,
			Missing:    f.Missing.Policy,
			Categories: f.Categories,
			Optional:   f.Optional,
		})
	}
	return info, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"defaultThreshold": s.defaultThreshold,
		"maxUploadBytes":   s.maxUploadBytes,
		"maxRows":          s.maxRows,
	}
	if s.started {
		stats["queueLength"] = s.jobQueue.Len(ctx)
		stats["storedBatches"] = s.store.Count(ctx)
		stats["dedupeEntries"] = s.deduper.Size()
		stats["modelVersion"] = s.engine.Version()
		stats["modelHash"] = s.engine.Hash()
	}
	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// ErrorKind classifies err for clients and stored batch records.
func ErrorKind(err error) string {
	var be *model.BatchError
	var me *model.ModelError
	switch {
	case errors.As(err, &be):
		return string(be.Kind)
	case errors.As(err, &me):
		return string(me.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return string(model.StateCancelled)
	case errors.Is(err, ErrQueueFull), errors.Is(err, jobqueue.ErrFull), errors.Is(err, jobqueue.ErrClosed):
		return "queue_full"
	default:
		return "internal"
	}
}
