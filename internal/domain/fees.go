package domain

// FeeRecord is the platform fee sub-ledger. TotalFees is lifetime fee
// revenue, CollectedFees the portion already withdrawn by the platform.
// Invariant: CollectedFees <= TotalFees.
type FeeRecord struct {
	TotalFees     int64 `json:"total_fees"`
	CollectedFees int64 `json:"collected_fees"`
	FeeEvents     int64 `json:"fee_events"`
}

// FeeStats is the read surface over the fee sub-ledger.
type FeeStats struct {
	TotalFees         int64 `json:"total_fees"`
	CollectedFees     int64 `json:"collected_fees"`
	TotalTransactions int64 `json:"total_transactions"`
}
