package repository

import (
	"context"
	"sync"

	"guardian-recovery/internal/recovery"
)

// MemoryStateRepository keeps the recovery state in process memory.
type MemoryStateRepository struct {
	mu    sync.RWMutex
	state *recovery.State
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{}
}

func (r *MemoryStateRepository) Load(_ context.Context) (recovery.State, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state == nil {
		return recovery.State{}, false, nil
	}
	return cloneState(*r.state), true, nil
}

func (r *MemoryStateRepository) Save(ctx context.Context, s recovery.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := cloneState(s)
	r.mu.Lock()
	r.state = &copied
	r.mu.Unlock()
	return nil
}
