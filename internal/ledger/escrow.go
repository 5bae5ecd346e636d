package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketplace_ledger/internal/domain"
)

type CreateEscrowInput struct {
	Depositor   string
	Beneficiary string
	Arbitrator  string
	Amount      int64
	Deadline    time.Time
	Description string
}

// CreateEscrow debits the depositor by the gross amount, withholds the
// platform fee, and opens a Pending agreement over the net amount. The
// fee is computed once, with integer floor division, so the gross always
// equals fee + net exactly.
func (l *Ledger) CreateEscrow(ctx context.Context, input CreateEscrowInput) (*domain.EscrowAgreement, error) {
	if err := l.validator.Parties(input.Depositor, input.Beneficiary); err != nil {
		return nil, err
	}
	if input.Arbitrator != "" {
		if err := l.validator.AccountID(input.Arbitrator); err != nil {
			return nil, err
		}
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, input.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if !input.Deadline.After(now) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDeadline, input.Deadline.Format(time.RFC3339))
	}

	depositor, err := l.getAccount(ctx, input.Depositor)
	if err != nil {
		return nil, err
	}
	if depositor.Balance < input.Amount {
		return nil, fmt.Errorf("%w: account %s has %d, needs %d",
			ErrInsufficientBalance, input.Depositor, depositor.Balance, input.Amount)
	}

	fee := input.Amount * l.feeRateBps / maxFeeRateBasisPoints
	agreement := &domain.EscrowAgreement{
		ID:          uuid.NewString(),
		Depositor:   input.Depositor,
		Beneficiary: input.Beneficiary,
		Arbitrator:  input.Arbitrator,
		Amount:      input.Amount,
		PlatformFee: fee,
		NetAmount:   input.Amount - fee,
		Status:      domain.EscrowPending,
		CreatedAt:   now,
		Deadline:    input.Deadline,
		Description: input.Description,
	}

	depositor.Balance -= input.Amount
	depositor.LastUpdated = now
	if err := l.accounts.Update(ctx, depositor); err != nil {
		return nil, err
	}
	if err := l.escrows.Save(ctx, agreement); err != nil {
		return nil, err
	}
	if err := l.fees.AddAccrued(ctx, fee); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(domain.KindEscrowDeposit, input.Depositor, "", input.Amount, now).
		WithEscrow(agreement.ID).
		WithMemo(input.Description)
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Escrow created",
		slog.String("escrow_id", agreement.ID),
		slog.String("depositor", input.Depositor),
		slog.String("beneficiary", input.Beneficiary),
		slog.Int64("amount", input.Amount),
		slog.Int64("platform_fee", fee))
	return agreement, nil
}

func (l *Ledger) GetEscrow(ctx context.Context, escrowID string) (*domain.EscrowAgreement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.getEscrow(ctx, escrowID)
}

// GetEscrowTransactions lists the log entries for an escrow in ascending
// sequence order.
func (l *Ledger) GetEscrowTransactions(ctx context.Context, escrowID string) ([]*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.transactions.ListByEscrow(ctx, escrowID)
}

// BuyerApprove records the depositor's approval of the release.
func (l *Ledger) BuyerApprove(ctx context.Context, escrowID, caller string) (*domain.EscrowAgreement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if agreement.Status != domain.EscrowPending {
		return nil, fmt.Errorf("%w: escrow %s is %s, not pending", ErrInvalidState, escrowID, agreement.Status)
	}
	if caller != agreement.Depositor {
		return nil, fmt.Errorf("%w: only the depositor may give buyer approval", ErrUnauthorized)
	}
	if agreement.BuyerApproved {
		return nil, fmt.Errorf("%w: buyer approval for escrow %s", ErrAlreadyApproved, escrowID)
	}

	agreement.BuyerApproved = true
	if err := l.escrows.Update(ctx, agreement); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Buyer approved escrow",
		slog.String("escrow_id", escrowID))
	return agreement, nil
}

// SellerApprove records the beneficiary's approval of the release.
func (l *Ledger) SellerApprove(ctx context.Context, escrowID, caller string) (*domain.EscrowAgreement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if agreement.Status != domain.EscrowPending {
		return nil, fmt.Errorf("%w: escrow %s is %s, not pending", ErrInvalidState, escrowID, agreement.Status)
	}
	if caller != agreement.Beneficiary {
		return nil, fmt.Errorf("%w: only the beneficiary may give seller approval", ErrUnauthorized)
	}
	if agreement.SellerApproved {
		return nil, fmt.Errorf("%w: seller approval for escrow %s", ErrAlreadyApproved, escrowID)
	}

	agreement.SellerApproved = true
	if err := l.escrows.Update(ctx, agreement); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Seller approved escrow",
		slog.String("escrow_id", escrowID))
	return agreement, nil
}

// Release pays part or all of the remaining net amount to the
// beneficiary. It requires a Pending agreement with both approvals in
// place; dispute resolution in the beneficiary's favor goes through
// ResolveDispute instead.
func (l *Ledger) Release(ctx context.Context, escrowID, caller string, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if agreement.Status != domain.EscrowPending {
		return nil, fmt.Errorf("%w: escrow %s is %s, not pending", ErrInvalidState, escrowID, agreement.Status)
	}
	if !agreement.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller %s is not a party to escrow %s", ErrUnauthorized, caller, escrowID)
	}
	if !agreement.BuyerApproved || !agreement.SellerApproved {
		return nil, fmt.Errorf("%w: release requires both buyer and seller approval", ErrInvalidState)
	}
	if amount > agreement.NetAmount {
		return nil, fmt.Errorf("%w: %d exceeds remaining net amount %d", ErrInvalidAmount, amount, agreement.NetAmount)
	}

	tx, err := l.payOutEscrow(ctx, agreement, agreement.Beneficiary, amount, domain.KindEscrowRelease, "")
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Escrow released",
		slog.String("escrow_id", escrowID),
		slog.Int64("amount", amount),
		slog.String("status", string(agreement.Status)))
	return tx, nil
}

// RaiseDispute moves a Pending agreement to Disputed. It refuses early
// when no arbitrator is assigned, since resolution would be impossible,
// and applies the configured dispute-timing policy.
func (l *Ledger) RaiseDispute(ctx context.Context, escrowID, caller string) (*domain.EscrowAgreement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if agreement.Status != domain.EscrowPending {
		return nil, fmt.Errorf("%w: escrow %s is %s, not pending", ErrInvalidState, escrowID, agreement.Status)
	}
	if !agreement.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller %s is not a party to escrow %s", ErrUnauthorized, caller, escrowID)
	}
	if !agreement.HasArbitrator() {
		return nil, fmt.Errorf("%w: escrow %s", ErrNoArbitratorAssigned, escrowID)
	}
	if !l.disputeTiming.Allows(l.nowFn(), agreement.Deadline) {
		return nil, fmt.Errorf("%w: dispute window is closed under policy %s", ErrInvalidState, l.disputeTiming)
	}

	if !agreement.Status.CanTransitionTo(domain.EscrowDisputed) {
		return nil, fmt.Errorf("%w: escrow %s cannot move from %s to disputed", ErrInvalidState, escrowID, agreement.Status)
	}
	agreement.Status = domain.EscrowDisputed
	if err := l.escrows.Update(ctx, agreement); err != nil {
		return nil, err
	}

	l.logger.WarnContext(ctx, "Escrow disputed",
		slog.String("escrow_id", escrowID),
		slog.String("raised_by", caller))
	return agreement, nil
}

// ResolveDispute routes the remaining net amount to the beneficiary
// (favorBeneficiary) or back to the depositor. Only the assigned
// arbitrator may call it, and only while the agreement is Disputed.
func (l *Ledger) ResolveDispute(ctx context.Context, escrowID, caller string, favorBeneficiary bool) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if agreement.Status != domain.EscrowDisputed {
		return nil, fmt.Errorf("%w: escrow %s is %s, not disputed", ErrInvalidState, escrowID, agreement.Status)
	}
	if caller != agreement.Arbitrator {
		return nil, fmt.Errorf("%w: escrow %s", ErrOnlyArbitratorCanResolve, escrowID)
	}

	var tx *domain.Transaction
	if favorBeneficiary {
		tx, err = l.payOutEscrow(ctx, agreement, agreement.Beneficiary, agreement.NetAmount, domain.KindEscrowRelease, "dispute resolved for beneficiary")
	} else {
		tx, err = l.refundEscrow(ctx, agreement, "dispute resolved for depositor")
	}
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Dispute resolved",
		slog.String("escrow_id", escrowID),
		slog.Bool("favor_beneficiary", favorBeneficiary),
		slog.String("status", string(agreement.Status)))
	return tx, nil
}

// Refund returns the remaining net amount to the depositor; the platform
// fee is never refunded. Valid from Pending or Disputed, for the
// beneficiary (voluntarily returning funds) or the arbitrator.
func (l *Ledger) Refund(ctx context.Context, escrowID, caller, reason string) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	switch agreement.Status {
	case domain.EscrowPending, domain.EscrowDisputed:
	default:
		return nil, fmt.Errorf("%w: escrow %s is %s", ErrInvalidState, escrowID, agreement.Status)
	}
	if caller != agreement.Beneficiary && caller != agreement.Arbitrator {
		return nil, fmt.Errorf("%w: caller %s may not refund escrow %s", ErrUnauthorized, caller, escrowID)
	}

	tx, err := l.refundEscrow(ctx, agreement, reason)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Escrow refunded",
		slog.String("escrow_id", escrowID),
		slog.String("reason", reason))
	return tx, nil
}

// Cancel aborts a Pending agreement before either party has approved.
// The remaining net amount goes back to the depositor; the fee is
// retained.
func (l *Ledger) Cancel(ctx context.Context, escrowID, caller string) (*domain.EscrowAgreement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	agreement, err := l.getEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if agreement.Status != domain.EscrowPending {
		return nil, fmt.Errorf("%w: escrow %s is %s, not pending", ErrInvalidState, escrowID, agreement.Status)
	}
	if agreement.BuyerApproved || agreement.SellerApproved {
		return nil, fmt.Errorf("%w: escrow %s cannot be cancelled after approval", ErrInvalidState, escrowID)
	}
	if !agreement.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller %s is not a party to escrow %s", ErrUnauthorized, caller, escrowID)
	}

	if !agreement.Status.CanTransitionTo(domain.EscrowCancelled) {
		return nil, fmt.Errorf("%w: escrow %s cannot move from %s to cancelled", ErrInvalidState, escrowID, agreement.Status)
	}

	now := l.nowFn()
	depositor, err := l.getAccount(ctx, agreement.Depositor)
	if err != nil {
		return nil, err
	}
	depositor.Balance += agreement.NetAmount
	depositor.LastUpdated = now
	if err := l.accounts.Update(ctx, depositor); err != nil {
		return nil, err
	}

	agreement.Status = domain.EscrowCancelled
	if err := l.escrows.Update(ctx, agreement); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(domain.KindEscrowRefund, "", agreement.Depositor, agreement.NetAmount, now).
		WithEscrow(agreement.ID).
		WithMemo("cancelled")
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Escrow cancelled",
		slog.String("escrow_id", escrowID),
		slog.String("cancelled_by", caller))
	return agreement, nil
}

// payOutEscrow credits the beneficiary and advances the agreement,
// completing it when the net amount reaches zero. The caller must hold
// the write lock and have validated the transition.
func (l *Ledger) payOutEscrow(ctx context.Context, agreement *domain.EscrowAgreement, to string, amount int64, kind domain.TransactionKind, memo string) (*domain.Transaction, error) {
	now := l.nowFn()

	recipient, err := l.getOrCreateAccount(ctx, to)
	if err != nil {
		return nil, err
	}
	recipient.Balance += amount
	recipient.LastUpdated = now
	if err := l.accounts.Update(ctx, recipient); err != nil {
		return nil, err
	}

	agreement.NetAmount -= amount
	agreement.ReleasedAmount += amount
	if agreement.NetAmount == 0 {
		if !agreement.Status.CanTransitionTo(domain.EscrowCompleted) {
			return nil, fmt.Errorf("%w: escrow %s cannot move from %s to completed", ErrInvalidState, agreement.ID, agreement.Status)
		}
		agreement.Status = domain.EscrowCompleted
		agreement.CompletedAt = &now
	}
	if err := l.escrows.Update(ctx, agreement); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(kind, "", to, amount, now).
		WithEscrow(agreement.ID).
		WithMemo(memo)
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// refundEscrow credits the depositor with the remaining net amount and
// marks the agreement Refunded. NetAmount is left as-is: the terminal
// status freezes the agreement, and the fee + net + released breakdown
// keeps describing the original gross. The caller must hold the write
// lock and have validated the transition.
func (l *Ledger) refundEscrow(ctx context.Context, agreement *domain.EscrowAgreement, reason string) (*domain.Transaction, error) {
	if !agreement.Status.CanTransitionTo(domain.EscrowRefunded) {
		return nil, fmt.Errorf("%w: escrow %s cannot move from %s to refunded", ErrInvalidState, agreement.ID, agreement.Status)
	}

	now := l.nowFn()
	depositor, err := l.getAccount(ctx, agreement.Depositor)
	if err != nil {
		return nil, err
	}
	depositor.Balance += agreement.NetAmount
	depositor.LastUpdated = now
	if err := l.accounts.Update(ctx, depositor); err != nil {
		return nil, err
	}

	agreement.Status = domain.EscrowRefunded
	if err := l.escrows.Update(ctx, agreement); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(domain.KindEscrowRefund, "", agreement.Depositor, agreement.NetAmount, now).
		WithEscrow(agreement.ID).
		WithMemo(reason)
	if err := l.transactions.Append(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
