package classifier

import (
	"sync"

	"github.com/okian/churnscore/internal/domain/model"
)

// Holder owns the process-wide model. It is loaded at most once and is then
// shared read-only by every batch.
type Holder struct {
	mu sync.RWMutex
	m  *Model
}

// NewHolder returns an empty holder.
func NewHolder() *Holder { return &Holder{} }

// Load installs m. A second call returns ErrAlreadyLoaded.
func (h *Holder) Load(m *Model) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m != nil {
		return ErrAlreadyLoaded
	}
	h.m = m
	return nil
}

// Get returns the loaded model or a ModelError of kind unavailable.
func (h *Holder) Get() (*Model, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.m == nil {
		return nil, &model.ModelError{Kind: model.ModelUnavailable, Message: "no model loaded", Err: ErrNotLoaded}
	}
	return h.m, nil
}
