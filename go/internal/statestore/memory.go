package statestore

import (
	"context"
	"sync"

	"github.com/mcdev12/vanguard/go/internal/models"
)

// MemoryRepository keeps the encoded record in memory. Loads always
// decode a fresh copy.
type MemoryRepository struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(ctx context.Context) (*models.AuctionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	b := r.data
	r.mu.RUnlock()
	return decodeState(b, "memory")
}

func (r *MemoryRepository) Save(ctx context.Context, st *models.AuctionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeState(st)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data = b
	r.mu.Unlock()
	return nil
}

// SetRaw replaces the stored bytes verbatim.
func (r *MemoryRepository) SetRaw(b []byte) {
	r.mu.Lock()
	r.data = append([]byte(nil), b...)
	r.mu.Unlock()
}
