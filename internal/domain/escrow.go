package domain

import (
	"time"
)

type EscrowStatus string

const (
	EscrowPending   EscrowStatus = "pending"
	EscrowCompleted EscrowStatus = "completed"
	EscrowRefunded  EscrowStatus = "refunded"
	EscrowCancelled EscrowStatus = "cancelled"
	EscrowDisputed  EscrowStatus = "disputed"
)

// Terminal reports whether no further mutation of the agreement is
// allowed from this status.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowCompleted, EscrowRefunded, EscrowCancelled:
		return true
	case EscrowPending, EscrowDisputed:
		return false
	}
	return false
}

// CanTransitionTo enumerates the full state machine:
// Pending -> {Completed, Refunded, Cancelled, Disputed} and
// Disputed -> {Completed, Refunded}. Terminal states admit nothing.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	switch s {
	case EscrowPending:
		switch next {
		case EscrowCompleted, EscrowRefunded, EscrowCancelled, EscrowDisputed:
			return true
		case EscrowPending:
			return false
		}
	case EscrowDisputed:
		switch next {
		case EscrowCompleted, EscrowRefunded:
			return true
		case EscrowPending, EscrowCancelled, EscrowDisputed:
			return false
		}
	case EscrowCompleted, EscrowRefunded, EscrowCancelled:
		return false
	}
	return false
}

// EscrowAgreement is a conditional hold of funds between a depositor and
// a beneficiary. Amount is the gross deposit; PlatformFee is withheld at
// creation and never refunded; NetAmount is what remains payable to the
// beneficiary and only ever decreases (on partial release). The gross is
// always PlatformFee + NetAmount + ReleasedAmount.
type EscrowAgreement struct {
	ID             string       `json:"id"`
	Depositor      string       `json:"depositor"`
	Beneficiary    string       `json:"beneficiary"`
	Arbitrator     string       `json:"arbitrator,omitempty"`
	Amount         int64        `json:"amount"`
	PlatformFee    int64        `json:"platform_fee"`
	NetAmount      int64        `json:"net_amount"`
	ReleasedAmount int64        `json:"released_amount"`
	Status         EscrowStatus `json:"status"`
	BuyerApproved  bool         `json:"buyer_approved"`
	SellerApproved bool         `json:"seller_approved"`
	CreatedAt      time.Time    `json:"created_at"`
	Deadline       time.Time    `json:"deadline"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	Description    string       `json:"description,omitempty"`
}

func (e *EscrowAgreement) HasArbitrator() bool {
	return e.Arbitrator != ""
}

// IsParty reports whether the caller is the depositor or the beneficiary.
func (e *EscrowAgreement) IsParty(caller string) bool {
	return caller == e.Depositor || caller == e.Beneficiary
}
