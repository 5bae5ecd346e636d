package memory

import (
	"context"
	"sync"

	"marketplace_ledger/internal/domain"
)

// FeeRepository holds the singleton platform fee record.
type FeeRepository struct {
	mu     sync.RWMutex
	record domain.FeeRecord
}

func NewFeeRepository() *FeeRepository {
	return &FeeRepository{}
}

func (r *FeeRepository) Get(ctx context.Context) (domain.FeeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.record, nil
}

func (r *FeeRepository) AddAccrued(ctx context.Context, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record.TotalFees += amount
	r.record.FeeEvents++

	return nil
}

func (r *FeeRepository) AddCollected(ctx context.Context, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record.CollectedFees += amount

	return nil
}
