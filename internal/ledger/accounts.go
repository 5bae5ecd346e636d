package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/repository"
)

func (l *Ledger) CreateAccount(ctx context.Context, id string) (*domain.Account, error) {
	if err := l.validator.AccountID(id); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.accounts.GetByID(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: account %s", ErrAlreadyExists, id)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	account := domain.NewAccount(id, l.nowFn())
	if err := l.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Account created",
		slog.String("account_id", id))
	return account, nil
}

// Mint is an administrative credit with no corresponding debit. The
// account is created if absent.
func (l *Ledger) Mint(ctx context.Context, accountID string, amount int64) (*domain.Transaction, error) {
	if err := l.validator.AccountID(accountID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.getOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := l.nowFn()
	account.Balance += amount
	account.LastUpdated = now
	if err := l.accounts.Update(ctx, account); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(domain.KindMint, "", accountID, amount, now)
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Mint completed",
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("transaction_id", tx.ID))
	return tx, nil
}

// Transfer moves funds between two accounts. The destination account is
// created if absent; the source must exist and cover the amount.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount int64, memo string) (*domain.Transaction, error) {
	if err := l.validator.Parties(from, to); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromAccount, err := l.getAccount(ctx, from)
	if err != nil {
		return nil, err
	}
	if fromAccount.Balance < amount {
		return nil, fmt.Errorf("%w: account %s has %d, needs %d",
			ErrInsufficientBalance, from, fromAccount.Balance, amount)
	}

	toAccount, err := l.getOrCreateAccount(ctx, to)
	if err != nil {
		return nil, err
	}

	now := l.nowFn()
	fromAccount.Balance -= amount
	fromAccount.LastUpdated = now
	toAccount.Balance += amount
	toAccount.LastUpdated = now

	if err := l.accounts.Update(ctx, fromAccount); err != nil {
		return nil, err
	}
	if err := l.accounts.Update(ctx, toAccount); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(domain.KindTransfer, from, to, amount, now).WithMemo(memo)
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Transfer completed",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int64("amount", amount),
		slog.String("transaction_id", tx.ID))
	return tx, nil
}

// Burn is an administrative debit with no corresponding credit.
func (l *Ledger) Burn(ctx context.Context, accountID string, amount int64) (*domain.Transaction, error) {
	if err := l.validator.AccountID(accountID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Balance < amount {
		return nil, fmt.Errorf("%w: account %s has %d, needs %d",
			ErrInsufficientBalance, accountID, account.Balance, amount)
	}

	now := l.nowFn()
	account.Balance -= amount
	account.LastUpdated = now
	if err := l.accounts.Update(ctx, account); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(domain.KindBurn, accountID, "", amount, now)
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Burn completed",
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("transaction_id", tx.ID))
	return tx, nil
}

func (l *Ledger) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.getAccount(ctx, accountID)
}

func (l *Ledger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	account, err := l.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tx, err := l.transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
		}
		return nil, err
	}
	return tx, nil
}

// GetTransactionsForAccount lists log entries touching the account in
// ascending sequence order. A positive limit truncates from the start of
// the ordered sequence.
func (l *Ledger) GetTransactionsForAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.transactions.ListByAccount(ctx, accountID, limit)
}
