package testbatches

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/churnscore/internal/domain/types"
	"github.com/okian/churnscore/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrBatchFailed reports an async batch that did not complete.
var ErrBatchFailed = errors.New("batch did not complete")

// Run executes the complete batch test.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("test-batches")
	stats := &Stats{StartTime: time.Now()}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(stats.StartTime.UnixNano())
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	log.Info(ctx, "starting churn batch test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("rows", cfg.Rows),
		logger.Int("badRows", cfg.BadRows),
		logger.Float64("threshold", cfg.Threshold),
		logger.Duration("timeout", cfg.Timeout),
		logger.Bool("verbose", cfg.Verbose))

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate the customer table
	ds, err := Generate(seed, cfg.Rows, cfg.BadRows)
	if err != nil {
		return nil, fmt.Errorf("table generation failed: %w", err)
	}
	stats.RowsGenerated, stats.BadRows = len(ds.IDs), len(ds.BadRows)

	// Step 3: Score synchronously
	start := time.Now()
	syncOut, err := client.ScoreCSV(ctx, ds.Data, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("sync scoring failed: %w", err)
	}
	stats.SyncDuration = time.Since(start)
	outcome, err := VerifyOutput(ds, syncOut, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("sync output verification failed: %w", err)
	}
	stats.RowsScored, stats.RowsFailed = outcome.Scored, outcome.Failed
	log.Info(ctx, "sync output verified",
		logger.Int("scored", outcome.Scored),
		logger.Int("failed", outcome.Failed),
		logger.Duration("took", stats.SyncDuration))

	// Step 4: Score asynchronously and wait
	start = time.Now()
	acc, err := client.Submit(ctx, ds.Data, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("submission failed: %w", err)
	}
	stats.BatchID = acc.BatchID
	b, err := client.Wait(ctx, acc.BatchID, poll)
	if err != nil {
		return nil, fmt.Errorf("waiting for batch %s: %w", acc.BatchID, err)
	}
	if b.Status != types.StatusComplete {
		return nil, fmt.Errorf("%w: %s is %s: %s", ErrBatchFailed, b.ID, b.Status, b.Error)
	}
	if b.Report != nil && b.Report.Summary.Failed != outcome.Failed {
		return nil, fmt.Errorf("%w: report counts %d failed rows, table has %d",
			ErrRowCount, b.Report.Summary.Failed, outcome.Failed)
	}

	// Step 5: Download and compare with the sync output
	asyncOut, err := client.Download(ctx, acc.BatchID)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	stats.AsyncDuration = time.Since(start)
	if err := VerifySame(syncOut, asyncOut); err != nil {
		return nil, err
	}
	log.Info(ctx, "async output verified",
		logger.String("batchID", acc.BatchID),
		logger.Duration("took", stats.AsyncDuration))

	// Step 6: Resubmit; the service must recognise the upload
	again, err := client.Submit(ctx, ds.Data, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("resubmission failed: %w", err)
	}
	stats.Duplicate = again.Duplicate && again.BatchID == acc.BatchID
	if !stats.Duplicate {
		log.Warn(ctx, "identical upload was not deduplicated",
			logger.String("first", acc.BatchID),
			logger.String("second", again.BatchID))
	}

	// Step 7: Save the scored table
	if err := saveOutput(ctx, cfg, asyncOut); err != nil {
		log.Warn(ctx, "failed to save scored table", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// saveOutput writes the scored table to the configured file.
func saveOutput(ctx context.Context, cfg *Config, data []byte) error {
	filename := cfg.OutputFile
	if filename == "" {
		filename = "churn_predictions_" + time.Now().Format("20060102_150405") + ".csv"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "scored table saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var rowsPerSecond float64
	if stats.SyncDuration > 0 {
		rowsPerSecond = float64(stats.RowsGenerated) / stats.SyncDuration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("rowsGenerated", stats.RowsGenerated),
		logger.Int("badRows", stats.BadRows),
		logger.Int("rowsScored", stats.RowsScored),
		logger.Int("rowsFailed", stats.RowsFailed),
		logger.String("batchID", stats.BatchID),
		logger.Bool("deduplicated", stats.Duplicate),
		logger.Duration("sync", stats.SyncDuration),
		logger.Duration("async", stats.AsyncDuration),
		logger.Duration("total", stats.Duration),
		logger.Float64("syncRowsPerSecond", rowsPerSecond))
}
