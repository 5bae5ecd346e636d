package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/repository"
	"marketplace_ledger/pkg/validator"
)

const maxFeeRateBasisPoints = 10_000

type Config struct {
	// FeeRateBasisPoints is the platform fee withheld from each escrow
	// deposit, in basis points (100 = 1%).
	FeeRateBasisPoints int64
	DisputeTiming      DisputeTiming
}

// Ledger is the escrow ledger engine. All mutating operations are
// serialized behind mu: validation runs to completion before the first
// repository write, so a rejected call leaves every collection
// untouched. Read-only queries take the read lock and observe a
// point-in-time-consistent snapshot.
type Ledger struct {
	mu sync.RWMutex

	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	escrows      repository.EscrowRepository
	fees         repository.FeeRepository

	validator     *validator.InputValidator
	feeRateBps    int64
	disputeTiming DisputeTiming
	nowFn         func() time.Time
	logger        *slog.Logger
}

func New(
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	escrows repository.EscrowRepository,
	fees repository.FeeRepository,
	cfg Config,
	logger *slog.Logger,
) (*Ledger, error) {
	if cfg.FeeRateBasisPoints < 0 || cfg.FeeRateBasisPoints > maxFeeRateBasisPoints {
		return nil, fmt.Errorf("fee rate must be between 0 and %d basis points, got %d",
			maxFeeRateBasisPoints, cfg.FeeRateBasisPoints)
	}
	timing := cfg.DisputeTiming
	if timing == "" {
		timing = DisputeAnytime
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		accounts:      accounts,
		transactions:  transactions,
		escrows:       escrows,
		fees:          fees,
		validator:     validator.NewInputValidator(),
		feeRateBps:    cfg.FeeRateBasisPoints,
		disputeTiming: timing,
		nowFn:         func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}, nil
}

// WithNow replaces the clock used for timestamps and deadline checks.
// Intended for tests and for callers that supply their own time source.
func (l *Ledger) WithNow(nowFn func() time.Time) *Ledger {
	if nowFn != nil {
		l.nowFn = nowFn
	}
	return l
}

// getOrCreateAccount lazily creates an account on first credit. The
// caller must hold the write lock.
func (l *Ledger) getOrCreateAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := l.accounts.GetByID(ctx, id)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	account = domain.NewAccount(id, l.nowFn())
	if err := l.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Account created on first credit",
		slog.String("account_id", id))
	return account, nil
}

// getAccount maps the repository sentinel onto the engine taxonomy.
func (l *Ledger) getAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := l.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
		}
		return nil, err
	}
	return account, nil
}

func (l *Ledger) getEscrow(ctx context.Context, id string) (*domain.EscrowAgreement, error) {
	agreement, err := l.escrows.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: escrow %s", ErrNotFound, id)
		}
		return nil, err
	}
	return agreement, nil
}
