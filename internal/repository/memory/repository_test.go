package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/repository"
)

func TestAccountRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	account := domain.NewAccount("alice", time.Now())
	account.Balance = 500

	if err := repo.Save(ctx, account); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.GetByID(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Balance != 500 {
		t.Errorf("expected balance 500, got %d", got.Balance)
	}

	// The stored account must not alias the caller's struct.
	got.Balance = 999
	again, _ := repo.GetByID(ctx, "alice")
	if again.Balance != 500 {
		t.Errorf("expected stored balance unchanged, got %d", again.Balance)
	}
}

func TestAccountRepository_SaveDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	account := domain.NewAccount("alice", time.Now())
	if err := repo.Save(ctx, account); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := repo.Save(ctx, domain.NewAccount("alice", time.Now()))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestAccountRepository_GetMissing(t *testing.T) {
	repo := NewAccountRepository()

	_, err := repo.GetByID(context.Background(), "nobody")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountRepository_ListSorted(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	for _, id := range []string{"carol", "alice", "bob"} {
		if err := repo.Save(ctx, domain.NewAccount(id, time.Now())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	accounts, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(accounts))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if accounts[i].ID != want {
			t.Errorf("expected %s at position %d, got %s", want, i, accounts[i].ID)
		}
	}
}

func TestTransactionRepository_SequenceMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()

	now := time.Now()
	for i := 0; i < 5; i++ {
		tx := domain.NewTransaction(domain.KindMint, "", "alice", 100, now)
		if err := repo.Append(ctx, tx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tx.Sequence != uint64(i+1) {
			t.Errorf("expected sequence %d, got %d", i+1, tx.Sequence)
		}
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Errorf("expected count 5, got %d", count)
	}
}

func TestTransactionRepository_AppendDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()

	tx := domain.NewTransaction(domain.KindMint, "", "alice", 100, time.Now())
	if err := repo.Append(ctx, tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := domain.NewTransaction(domain.KindMint, "", "alice", 100, time.Now())
	dup.ID = tx.ID
	if err := repo.Append(ctx, dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestTransactionRepository_ListByAccount(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	now := time.Now()

	_ = repo.Append(ctx, domain.NewTransaction(domain.KindTransfer, "alice", "bob", 10, now))
	_ = repo.Append(ctx, domain.NewTransaction(domain.KindTransfer, "bob", "carol", 5, now))
	_ = repo.Append(ctx, domain.NewTransaction(domain.KindTransfer, "alice", "carol", 7, now))

	txs, err := repo.ListByAccount(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 entries for alice, got %d", len(txs))
	}
	if txs[0].Sequence >= txs[1].Sequence {
		t.Errorf("expected ascending sequence order, got %d then %d", txs[0].Sequence, txs[1].Sequence)
	}

	limited, err := repo.ListByAccount(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d", len(limited))
	}
	if limited[0].Sequence != txs[0].Sequence {
		t.Errorf("expected limit to truncate from the start, got sequence %d", limited[0].Sequence)
	}
}

func TestTransactionRepository_ListByEscrow(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	now := time.Now()

	deposit := domain.NewTransaction(domain.KindEscrowDeposit, "alice", "", 100, now).WithEscrow("esc-1")
	release := domain.NewTransaction(domain.KindEscrowRelease, "", "bob", 99, now).WithEscrow("esc-1")
	other := domain.NewTransaction(domain.KindMint, "", "carol", 50, now)

	_ = repo.Append(ctx, deposit)
	_ = repo.Append(ctx, other)
	_ = repo.Append(ctx, release)

	txs, err := repo.ListByEscrow(ctx, "esc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 entries for escrow, got %d", len(txs))
	}
	if txs[0].Kind != domain.KindEscrowDeposit || txs[1].Kind != domain.KindEscrowRelease {
		t.Errorf("expected deposit then release, got %s then %s", txs[0].Kind, txs[1].Kind)
	}
}

func TestEscrowRepository_SaveAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewEscrowRepository()

	agreement := &domain.EscrowAgreement{
		ID:          "esc-1",
		Depositor:   "alice",
		Beneficiary: "bob",
		Amount:      1000,
		PlatformFee: 10,
		NetAmount:   990,
		Status:      domain.EscrowPending,
		CreatedAt:   time.Now(),
	}
	if err := repo.Save(ctx, agreement); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agreement.Status = domain.EscrowDisputed
	if err := repo.Update(ctx, agreement); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.GetByID(ctx, "esc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.EscrowDisputed {
		t.Errorf("expected disputed, got %s", got.Status)
	}
}

func TestEscrowRepository_UpdateMissing(t *testing.T) {
	repo := NewEscrowRepository()

	err := repo.Update(context.Background(), &domain.EscrowAgreement{ID: "esc-404"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFeeRepository_AccrueAndCollect(t *testing.T) {
	ctx := context.Background()
	repo := NewFeeRepository()

	_ = repo.AddAccrued(ctx, 10)
	_ = repo.AddAccrued(ctx, 5)
	_ = repo.AddCollected(ctx, 8)

	record, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.TotalFees != 15 {
		t.Errorf("expected total fees 15, got %d", record.TotalFees)
	}
	if record.CollectedFees != 8 {
		t.Errorf("expected collected fees 8, got %d", record.CollectedFees)
	}
	if record.FeeEvents != 2 {
		t.Errorf("expected 2 fee events, got %d", record.FeeEvents)
	}
}
