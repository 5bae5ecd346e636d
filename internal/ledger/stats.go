package ledger

import (
	"context"

	"marketplace_ledger/internal/domain"
)

// Stats is the statistics surface consumed by dashboards.
// TotalEscrowAmount sums the remaining net amount across non-terminal
// agreements only.
type Stats struct {
	TotalAccounts     int   `json:"total_accounts"`
	TotalBalance      int64 `json:"total_balance"`
	TotalTransactions int64 `json:"total_transactions"`
	TotalEscrowAmount int64 `json:"total_escrow_amount"`
	ActiveEscrows     int   `json:"active_escrows"`
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var stats Stats

	accounts, err := l.accounts.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.TotalAccounts = len(accounts)
	for _, account := range accounts {
		stats.TotalBalance += account.Balance
	}

	stats.TotalTransactions, err = l.transactions.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	agreements, err := l.escrows.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	for _, agreement := range agreements {
		switch agreement.Status {
		case domain.EscrowPending, domain.EscrowDisputed:
			stats.ActiveEscrows++
			stats.TotalEscrowAmount += agreement.NetAmount
		case domain.EscrowCompleted, domain.EscrowRefunded, domain.EscrowCancelled:
		}
	}

	return stats, nil
}
