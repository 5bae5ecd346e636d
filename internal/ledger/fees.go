package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"marketplace_ledger/internal/domain"
)

// WithdrawPlatformFee moves accrued fee revenue into the collected
// bucket. It never exceeds the uncollected balance, so
// CollectedFees <= TotalFees holds at all times.
func (l *Ledger) WithdrawPlatformFee(ctx context.Context, amount int64) (domain.FeeRecord, error) {
	if amount <= 0 {
		return domain.FeeRecord{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.fees.Get(ctx)
	if err != nil {
		return domain.FeeRecord{}, err
	}
	available := record.TotalFees - record.CollectedFees
	if amount > available {
		return domain.FeeRecord{}, fmt.Errorf("%w: %d available in uncollected fees, needs %d",
			ErrInsufficientBalance, available, amount)
	}

	if err := l.fees.AddCollected(ctx, amount); err != nil {
		return domain.FeeRecord{}, err
	}
	record, err = l.fees.Get(ctx)
	if err != nil {
		return domain.FeeRecord{}, err
	}

	l.logger.InfoContext(ctx, "Platform fee withdrawn",
		slog.Int64("amount", amount),
		slog.Int64("collected_fees", record.CollectedFees))
	return record, nil
}

// PlatformFeeStats is a pure read over the fee sub-ledger.
func (l *Ledger) PlatformFeeStats(ctx context.Context) (domain.FeeStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, err := l.fees.Get(ctx)
	if err != nil {
		return domain.FeeStats{}, err
	}

	return domain.FeeStats{
		TotalFees:         record.TotalFees,
		CollectedFees:     record.CollectedFees,
		TotalTransactions: record.FeeEvents,
	}, nil
}
