package notify

import (
	"context"
	"testing"
	"time"

	"marketplace_ledger/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestNotifier_EscrowEventEmailsBothParties(t *testing.T) {
	email := &MockEmailSender{}
	n := NewNotifier(email, nil, 2, nil)
	defer n.Shutdown(context.Background())

	agreement := &domain.EscrowAgreement{
		ID:          "esc-1",
		Depositor:   "alice",
		Beneficiary: "bob",
		Amount:      1000,
		NetAmount:   990,
		Status:      domain.EscrowPending,
	}

	if err := n.EscrowEvent(context.Background(), agreement, EventEscrowCreated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, func() bool { return len(email.Sent()) == 2 })

	recipients := map[string]bool{}
	for _, sent := range email.Sent() {
		recipients[sent.To] = true
	}
	if !recipients["alice"] || !recipients["bob"] {
		t.Errorf("expected both parties notified, got %v", recipients)
	}
}

func TestNotifier_DisputeAlertGoesToSlackAndArbitrator(t *testing.T) {
	email := &MockEmailSender{}
	slack := &MockSlackSender{}
	n := NewNotifier(email, slack, 2, nil)
	defer n.Shutdown(context.Background())

	agreement := &domain.EscrowAgreement{
		ID:          "esc-2",
		Depositor:   "alice",
		Beneficiary: "bob",
		Arbitrator:  "arbiter",
		NetAmount:   990,
		Status:      domain.EscrowDisputed,
		Deadline:    time.Now().Add(24 * time.Hour),
	}

	if err := n.DisputeAlert(context.Background(), agreement, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, func() bool { return len(slack.Sent()) == 1 && len(email.Sent()) == 1 })

	if slack.Sent()[0].Channel != "#escrow-disputes" {
		t.Errorf("expected #escrow-disputes channel, got %s", slack.Sent()[0].Channel)
	}
	if email.Sent()[0].To != "arbiter" {
		t.Errorf("expected arbitrator email, got %s", email.Sent()[0].To)
	}
}

func TestNotifier_ShutdownStopsWorkers(t *testing.T) {
	n := NewNotifier(&MockEmailSender{}, nil, 3, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
