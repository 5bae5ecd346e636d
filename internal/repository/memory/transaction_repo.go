package memory

import (
	"context"
	"fmt"
	"sync"

	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/repository"
)

// TransactionRepository stores log entries in append order. The slice
// itself is the sequence: entries are immutable once appended.
type TransactionRepository struct {
	mu           sync.RWMutex
	log          []*domain.Transaction
	byID         map[string]*domain.Transaction
	accountIndex map[string][]int
	escrowIndex  map[string][]int
	nextSequence uint64
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byID:         make(map[string]*domain.Transaction),
		accountIndex: make(map[string][]int),
		escrowIndex:  make(map[string][]int),
		nextSequence: 1,
	}
}

func (r *TransactionRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
	}

	tx.Sequence = r.nextSequence
	r.nextSequence++

	copied := *tx
	pos := len(r.log)
	r.log = append(r.log, &copied)
	r.byID[tx.ID] = &copied

	if tx.From != "" {
		r.accountIndex[tx.From] = append(r.accountIndex[tx.From], pos)
	}
	if tx.To != "" && tx.To != tx.From {
		r.accountIndex[tx.To] = append(r.accountIndex[tx.To], pos)
	}
	if tx.EscrowID != "" {
		r.escrowIndex[tx.EscrowID] = append(r.escrowIndex[tx.EscrowID], pos)
	}

	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}

	copied := *tx
	return &copied, nil
}

// ListByAccount returns entries touching the account in ascending
// sequence order. A limit <= 0 means no truncation; a positive limit
// truncates from the start of the ordered sequence.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	positions := r.accountIndex[accountID]
	if limit > 0 && limit < len(positions) {
		positions = positions[:limit]
	}

	result := make([]*domain.Transaction, 0, len(positions))
	for _, pos := range positions {
		copied := *r.log[pos]
		result = append(result, &copied)
	}

	return result, nil
}

func (r *TransactionRepository) ListByEscrow(ctx context.Context, escrowID string) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	positions := r.escrowIndex[escrowID]
	result := make([]*domain.Transaction, 0, len(positions))
	for _, pos := range positions {
		copied := *r.log[pos]
		result = append(result, &copied)
	}

	return result, nil
}

func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.log)), nil
}
