package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionKind string
type TransactionStatus string

const (
	KindTransfer      TransactionKind = "transfer"
	KindEscrowDeposit TransactionKind = "escrow_deposit"
	KindEscrowRelease TransactionKind = "escrow_release"
	KindEscrowRefund  TransactionKind = "escrow_refund"
	KindMint          TransactionKind = "mint"
	KindBurn          TransactionKind = "burn"

	StatusCompleted TransactionStatus = "completed"
)

// Transaction is an immutable log entry describing one fund movement.
// Sequence is assigned by the transaction log at append time and is
// strictly monotonic across the whole log.
type Transaction struct {
	ID        string            `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Kind      TransactionKind   `json:"kind"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	Amount    int64             `json:"amount"`
	EscrowID  string            `json:"escrow_id,omitempty"`
	Status    TransactionStatus `json:"status"`
	Memo      string            `json:"memo,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewTransaction(kind TransactionKind, from, to string, amount int64, now time.Time) *Transaction {
	return &Transaction{
		ID:        uuid.NewString(),
		Kind:      kind,
		From:      from,
		To:        to,
		Amount:    amount,
		Status:    StatusCompleted,
		Timestamp: now,
	}
}

func (tx *Transaction) WithMemo(memo string) *Transaction {
	tx.Memo = memo
	return tx
}

func (tx *Transaction) WithEscrow(escrowID string) *Transaction {
	tx.EscrowID = escrowID
	return tx
}
