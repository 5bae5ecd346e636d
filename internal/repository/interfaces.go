package repository

import (
	"context"
	"errors"

	"marketplace_ledger/internal/domain"
)

type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
	List(ctx context.Context) ([]*domain.Account, error)
}

// TransactionRepository is the append-only transaction log. Append
// assigns the next monotonic sequence number; entries are never updated
// or removed afterwards.
type TransactionRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error)
	ListByEscrow(ctx context.Context, escrowID string) ([]*domain.Transaction, error)
	Count(ctx context.Context) (int64, error)
}

type EscrowRepository interface {
	Save(ctx context.Context, agreement *domain.EscrowAgreement) error
	GetByID(ctx context.Context, id string) (*domain.EscrowAgreement, error)
	Update(ctx context.Context, agreement *domain.EscrowAgreement) error
	List(ctx context.Context) ([]*domain.EscrowAgreement, error)
}

// FeeRepository owns the singleton platform fee record.
type FeeRepository interface {
	Get(ctx context.Context) (domain.FeeRecord, error)
	AddAccrued(ctx context.Context, amount int64) error
	AddCollected(ctx context.Context, amount int64) error
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)
