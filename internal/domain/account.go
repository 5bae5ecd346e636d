package domain

import (
	"time"
)

// Account holds a balance in the smallest currency unit. Accounts are
// never deleted; a drained account keeps existing with a zero balance.
type Account struct {
	ID          string    `json:"id"`
	Balance     int64     `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

func NewAccount(id string, now time.Time) *Account {
	return &Account{
		ID:          id,
		CreatedAt:   now,
		LastUpdated: now,
	}
}
