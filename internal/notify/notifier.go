package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketplace_ledger/internal/domain"
)

type EventKind string

const (
	EventEscrowCreated   EventKind = "escrow_created"
	EventEscrowReleased  EventKind = "escrow_released"
	EventEscrowCompleted EventKind = "escrow_completed"
	EventEscrowDisputed  EventKind = "escrow_disputed"
	EventEscrowResolved  EventKind = "escrow_resolved"
	EventEscrowRefunded  EventKind = "escrow_refunded"
	EventEscrowCancelled EventKind = "escrow_cancelled"
)

type Message struct {
	Kind      EventKind
	Recipient string
	Channel   string
	Subject   string
	Body      string
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailSender interface {
	SendEmail(to, subject, body string) error
}

type SlackSender interface {
	SendMessage(channel, message string) error
}

// Notifier fans escrow lifecycle events out to the configured sinks
// through a fixed worker pool. Enqueueing never blocks a ledger
// operation longer than the caller's context allows.
type Notifier struct {
	email        EmailSender
	slack        SlackSender
	messageQueue chan Message
	workers      int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewNotifier(email EmailSender, slack SlackSender, workers int, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	n := &Notifier{
		email:        email,
		slack:        slack,
		messageQueue: make(chan Message, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	n.startWorkers()

	return n
}

// EscrowEvent queues an email to both parties describing the lifecycle
// change.
func (n *Notifier) EscrowEvent(ctx context.Context, agreement *domain.EscrowAgreement, kind EventKind) error {
	subject, body := describe(agreement, kind)

	for _, recipient := range []string{agreement.Depositor, agreement.Beneficiary} {
		msg := Message{
			Kind:      kind,
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
			Metadata: map[string]string{
				"escrow_id": agreement.ID,
				"status":    string(agreement.Status),
			},
			CreatedAt: time.Now(),
		}

		select {
		case n.messageQueue <- msg:
			n.logger.Info("Escrow notification queued",
				slog.String("kind", string(kind)),
				slog.String("recipient", recipient),
				slog.String("escrow_id", agreement.ID))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// DisputeAlert queues a high-priority Slack message and an email to the
// arbitrator when a dispute is raised.
func (n *Notifier) DisputeAlert(ctx context.Context, agreement *domain.EscrowAgreement, raisedBy string) error {
	body := fmt.Sprintf(
		"Dispute raised on escrow %s by %s.\nAmount held: %d\nDeadline: %s",
		agreement.ID, raisedBy, agreement.NetAmount, agreement.Deadline.Format(time.RFC3339),
	)

	messages := []Message{
		{
			Kind:      EventEscrowDisputed,
			Channel:   "#escrow-disputes",
			Subject:   "Escrow dispute raised",
			Body:      body,
			Metadata:  map[string]string{"escrow_id": agreement.ID, "raised_by": raisedBy},
			CreatedAt: time.Now(),
		},
	}
	if agreement.Arbitrator != "" {
		messages = append(messages, Message{
			Kind:      EventEscrowDisputed,
			Recipient: agreement.Arbitrator,
			Subject:   fmt.Sprintf("Arbitration requested: escrow %s", agreement.ID),
			Body:      body,
			Metadata:  map[string]string{"escrow_id": agreement.ID},
			CreatedAt: time.Now(),
		})
	}

	for _, msg := range messages {
		select {
		case n.messageQueue <- msg:
			n.logger.Warn("Dispute alert queued",
				slog.String("escrow_id", agreement.ID),
				slog.String("raised_by", raisedBy))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func describe(agreement *domain.EscrowAgreement, kind EventKind) (subject, body string) {
	switch kind {
	case EventEscrowCreated:
		subject = "Escrow opened"
		body = fmt.Sprintf("Escrow %s opened for %d (net %d after platform fee).",
			agreement.ID, agreement.Amount, agreement.NetAmount)
	case EventEscrowReleased:
		subject = "Escrow funds released"
		body = fmt.Sprintf("Escrow %s released %d to the beneficiary; %d remains held.",
			agreement.ID, agreement.ReleasedAmount, agreement.NetAmount)
	case EventEscrowCompleted:
		subject = "Escrow completed"
		body = fmt.Sprintf("Escrow %s is complete. %d was paid out in total.",
			agreement.ID, agreement.ReleasedAmount)
	case EventEscrowResolved:
		subject = "Escrow dispute resolved"
		body = fmt.Sprintf("The dispute on escrow %s was resolved; final status is %s.",
			agreement.ID, agreement.Status)
	case EventEscrowRefunded:
		subject = "Escrow refunded"
		body = fmt.Sprintf("Escrow %s was refunded: %d returned to the depositor. The platform fee is not refundable.",
			agreement.ID, agreement.NetAmount)
	case EventEscrowCancelled:
		subject = "Escrow cancelled"
		body = fmt.Sprintf("Escrow %s was cancelled before approval: %d returned to the depositor.",
			agreement.ID, agreement.NetAmount)
	default:
		subject = "Escrow update"
		body = fmt.Sprintf("Escrow %s is now %s.", agreement.ID, agreement.Status)
	}
	return subject, body
}

func (n *Notifier) startWorkers() {
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
}

func (n *Notifier) worker(id int) {
	defer n.wg.Done()

	n.logger.Info("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-n.messageQueue:
			n.deliver(msg, id)
		case <-n.shutdownChan:
			n.logger.Info("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

func (n *Notifier) deliver(msg Message, workerID int) {
	startTime := time.Now()
	var err error

	switch {
	case msg.Channel != "" && n.slack != nil:
		err = n.slack.SendMessage(msg.Channel, msg.Body)
	case msg.Recipient != "" && n.email != nil:
		err = n.email.SendEmail(msg.Recipient, msg.Subject, msg.Body)
	default:
		return
	}

	duration := time.Since(startTime)

	if err != nil {
		n.logger.Error("Failed to send notification",
			slog.String("kind", string(msg.Kind)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		n.logger.Info("Notification sent",
			slog.String("kind", string(msg.Kind)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (n *Notifier) Shutdown(ctx context.Context) error {
	close(n.shutdownChan)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("Notifier shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type MockEmailSender struct {
	mu         sync.Mutex
	SentEmails []struct {
		To      string
		Subject string
		Body    string
	}
}

func (m *MockEmailSender) SendEmail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, struct {
		To      string
		Subject string
		Body    string
	}{to, subject, body})
	return nil
}

func (m *MockEmailSender) Sent() []struct {
	To      string
	Subject string
	Body    string
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(m.SentEmails[:0:0], m.SentEmails...)
}

type MockSlackSender struct {
	mu       sync.Mutex
	Messages []struct {
		Channel string
		Message string
	}
}

func (m *MockSlackSender) SendMessage(channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, struct {
		Channel string
		Message string
	}{channel, message})
	return nil
}

func (m *MockSlackSender) Sent() []struct {
	Channel string
	Message string
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(m.Messages[:0:0], m.Messages...)
}
