package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/types"
	"github.com/okian/churnscore/pkg/metrics"
)

//go:embed sql/*
var ddl embed.FS

const (
	upsertBatchSQL = `INSERT INTO batch (id, status, created_at, finished_at, threshold,
		model_version, model_hash, error_kind, error, report, input, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			model_version = excluded.model_version,
			model_hash = excluded.model_hash,
			error_kind = excluded.error_kind,
			error = excluded.error,
			report = excluded.report,
			output = excluded.output`

	pruneBatchSQL = `DELETE FROM batch WHERE seq <= (
		SELECT seq FROM batch ORDER BY seq DESC LIMIT 1 OFFSET ?)`

	selectBatchSQL = `SELECT id, status, created_at, finished_at, threshold,
		model_version, model_hash, error_kind, error, report, input, output
		FROM batch WHERE id = ?`

	listBatchSQL = `SELECT id, status, created_at, finished_at, threshold,
		model_version, model_hash, error_kind, error, report, NULL, NULL
		FROM batch ORDER BY seq DESC LIMIT ?`

	countBatchSQL = `SELECT COUNT(*) FROM batch`

	deleteBatchSQL = `DELETE FROM batch WHERE id = ?`

	// Queued and running batches lose their job when the process exits.
	abandonBatchSQL = `UPDATE batch SET status = ?, error_kind = ?, error = ?, finished_at = ?
		WHERE status IN (?, ?)`
)

// Recorded on batches that were in flight when the previous process stopped.
const (
	abandonedKind    = "cancelled"
	abandonedMessage = "batch was interrupted by a restart"
)

// SQLiteStore persists batches in a SQLite database file.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path not specified")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	schema, err := ddl.ReadFile("sql/ddl.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema in %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, abandonBatchSQL,
		string(types.StatusFailed), abandonedKind, abandonedMessage, time.Now().UTC().UnixNano(),
		string(types.StatusQueued), string(types.StatusRunning),
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fail abandoned batches in %s: %w", path, err)
	}

	s := &SQLiteStore{db: db, retention: buildOptions(opts).retention}
	metrics.UpdateReportsStored(s.Count(ctx))
	return s, nil
}

func (s *SQLiteStore) Save(ctx context.Context, b *types.Batch) error {
	start := time.Now()
	defer func() { metrics.RecordReportStoreLatency("save", msSince(start)) }()

	if b == nil || b.ID == "" {
		metrics.RecordReportStoreError("save")
		return fmt.Errorf("%w: missing id", ErrInvalidBatch)
	}
	var report []byte
	if b.Report != nil {
		var err error
		if report, err = json.Marshal(b.Report); err != nil {
			metrics.RecordReportStoreError("save")
			return fmt.Errorf("encode report %s: %w", b.ID, err)
		}
	}
	var finished sql.NullInt64
	if b.FinishedAt != nil {
		finished = sql.NullInt64{Int64: b.FinishedAt.UnixNano(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordReportStoreError("save")
		return fmt.Errorf("begin save %s: %w", b.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertBatchSQL,
		b.ID, string(b.Status), b.CreatedAt.UnixNano(), finished, b.Threshold,
		b.ModelVersion, b.ModelHash, b.ErrorKind, b.Error, report, b.Input, b.Output,
	); err != nil {
		metrics.RecordReportStoreError("save")
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	if _, err := tx.ExecContext(ctx, pruneBatchSQL, s.retention); err != nil {
		metrics.RecordReportStoreError("prune")
		return fmt.Errorf("prune batches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordReportStoreError("save")
		return fmt.Errorf("commit batch %s: %w", b.ID, err)
	}

	metrics.UpdateReportsStored(s.Count(ctx))
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Batch, error) {
	start := time.Now()
	defer func() { metrics.RecordReportStoreLatency("get", msSince(start)) }()

	b, err := scanBatch(s.db.QueryRowContext(ctx, selectBatchSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordReportStoreError("get")
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return b, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, deleteBatchSQL, id); err != nil {
		metrics.RecordReportStoreError("delete")
		return fmt.Errorf("delete batch %s: %w", id, err)
	}
	metrics.UpdateReportsStored(s.Count(ctx))
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]types.Batch, error) {
	if limit <= 0 {
		metrics.RecordReportStoreError("list")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, listBatchSQL, limit)
	if err != nil {
		metrics.RecordReportStoreError("list")
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []types.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, countBatchSQL).Scan(&n); err != nil {
		metrics.RecordReportStoreError("count")
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*types.Batch, error) {
	var (
		b        types.Batch
		status   string
		created  int64
		finished sql.NullInt64
		report   []byte
	)
	if err := row.Scan(&b.ID, &status, &created, &finished, &b.Threshold,
		&b.ModelVersion, &b.ModelHash, &b.ErrorKind, &b.Error, &report, &b.Input, &b.Output); err != nil {
		return nil, err
	}
	b.Status = types.Status(status)
	b.CreatedAt = time.Unix(0, created).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		b.FinishedAt = &t
	}
	if len(report) > 0 {
		b.Report = &model.Report{}
		if err := json.Unmarshal(report, b.Report); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", b.ID, err)
		}
	}
	return &b, nil
}
