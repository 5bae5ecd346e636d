package memory

import (
	"marketplace_ledger/internal/repository"
)

var (
	_ repository.AccountRepository     = (*AccountRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.EscrowRepository      = (*EscrowRepository)(nil)
	_ repository.FeeRepository         = (*FeeRepository)(nil)
)
