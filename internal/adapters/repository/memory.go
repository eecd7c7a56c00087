package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/churnscore/internal/domain/types"
	"github.com/okian/churnscore/pkg/metrics"
)

// MemoryStore keeps batches in process memory with FIFO retention.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*types.Batch
	order     []string // insertion order, oldest first
	retention int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		byID:      make(map[string]*types.Batch),
		retention: o.retention,
	}
}

func (s *MemoryStore) Save(_ context.Context, b *types.Batch) error {
	start := time.Now()
	defer func() { metrics.RecordReportStoreLatency("save", msSince(start)) }()

	if b == nil || b.ID == "" {
		metrics.RecordReportStoreError("save")
		return fmt.Errorf("%w: missing id", ErrInvalidBatch)
	}
	cp := *b

	s.mu.Lock()
	if _, ok := s.byID[b.ID]; !ok {
		s.order = append(s.order, b.ID)
	}
	s.byID[b.ID] = &cp
	for len(s.order) > s.retention {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	n := len(s.order)
	s.mu.Unlock()

	metrics.UpdateReportsStored(n)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.Batch, error) {
	start := time.Now()
	defer func() { metrics.RecordReportStoreLatency("get", msSince(start)) }()

	s.mu.RLock()
	b, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; ok {
		delete(s.byID, id)
		s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	}
	n := len(s.order)
	s.mu.Unlock()

	metrics.UpdateReportsStored(n)
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]types.Batch, error) {
	if limit <= 0 {
		metrics.RecordReportStoreError("list")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Batch, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]].Summary())
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
