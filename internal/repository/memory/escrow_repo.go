package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/repository"
)

type EscrowRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.EscrowAgreement
}

func NewEscrowRepository() *EscrowRepository {
	return &EscrowRepository{
		byID: make(map[string]*domain.EscrowAgreement),
	}
}

func (r *EscrowRepository) Save(ctx context.Context, agreement *domain.EscrowAgreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[agreement.ID]; exists {
		return fmt.Errorf("%w: escrow %s", repository.ErrDuplicate, agreement.ID)
	}

	copied := *agreement
	r.byID[agreement.ID] = &copied

	return nil
}

func (r *EscrowRepository) GetByID(ctx context.Context, id string) (*domain.EscrowAgreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agreement, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: escrow %s", repository.ErrNotFound, id)
	}

	copied := *agreement
	return &copied, nil
}

func (r *EscrowRepository) Update(ctx context.Context, agreement *domain.EscrowAgreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[agreement.ID]; !exists {
		return fmt.Errorf("%w: escrow %s", repository.ErrNotFound, agreement.ID)
	}

	copied := *agreement
	r.byID[agreement.ID] = &copied

	return nil
}

func (r *EscrowRepository) List(ctx context.Context) ([]*domain.EscrowAgreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.EscrowAgreement, 0, len(r.byID))
	for _, agreement := range r.byID {
		copied := *agreement
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}
