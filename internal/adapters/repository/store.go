// Package repository stores asynchronous batch reports.
package repository

import (
	"context"

	"github.com/okian/churnscore/internal/domain/types"
)

// Store provides read/write access to batch records.
type Store interface {
	// Save inserts b or replaces the record with the same ID.
	Save(ctx context.Context, b *types.Batch) error

	// Get returns the batch with id.
	// Returns ErrNotFound if the batch is unknown or was pruned.
	Get(ctx context.Context, id string) (*types.Batch, error)

	// Delete removes the batch with id. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error

	// List returns up to limit batch summaries, newest first.
	List(ctx context.Context, limit int) ([]types.Batch, error)

	// Count returns the number of stored batches.
	Count(ctx context.Context) int

	// Close releases resources held by the store.
	Close() error
}
