package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avelar-fin/loan-service/internal/models"
)

const batchSize = 50

// Store is the outbox persistence surface the dispatcher needs.
type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkOutboxSent(ctx context.Context, id string) error
	RecordOutboxFailure(ctx context.Context, id string, maxAttempts int) error
}

// Resyncer triggers a schedule realignment at the payment processor.
type Resyncer interface {
	Resync(ctx context.Context, loanID int64, reason string) error
}

// Notifier delivers borrower-facing messages.
type Notifier interface {
	SendPaymentFailedNotice(to, name, amount, fee, nextDueDate string) error
}

// Dispatcher drains the side-effect outbox. Ledger writes enqueue entries
// transactionally; this loop delivers them later, so a processor or SMTP
// outage can delay notifications but never block or corrupt the ledger.
type Dispatcher struct {
	store       Store
	processor   Resyncer
	notifier    Notifier
	log         *logrus.Logger
	maxAttempts int
}

// NewDispatcher creates a new outbox dispatcher
func NewDispatcher(store Store, processor Resyncer, notifier Notifier, log *logrus.Logger, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		store:       store,
		processor:   processor,
		notifier:    notifier,
		log:         log,
		maxAttempts: maxAttempts,
	}
}

// Run delivers one batch of pending entries. Intended as a cron target.
func (d *Dispatcher) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entries, err := d.store.PendingOutbox(ctx, batchSize)
	if err != nil {
		d.log.Errorf("Failed to load pending outbox entries: %v", err)
		return
	}

	for _, entry := range entries {
		if err := d.deliver(ctx, entry); err != nil {
			d.log.Warnf("Outbox delivery failed for %s (%s, attempt %d): %v", entry.ID, entry.Kind, entry.Attempts+1, err)
			if err := d.store.RecordOutboxFailure(ctx, entry.ID, d.maxAttempts); err != nil {
				d.log.Errorf("Failed to record outbox failure for %s: %v", entry.ID, err)
			}
			continue
		}
		if err := d.store.MarkOutboxSent(ctx, entry.ID); err != nil {
			d.log.Errorf("Failed to mark outbox entry %s sent: %v", entry.ID, err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, entry models.OutboxEntry) error {
	switch entry.Kind {
	case models.OutboxProcessorResync:
		var p models.ResyncPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("malformed resync payload: %w", err)
		}
		return d.processor.Resync(ctx, p.LoanID, p.Reason)
	case models.OutboxNotifyBorrower:
		var p models.NotifyPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("malformed notification payload: %w", err)
		}
		return d.notifier.SendPaymentFailedNotice(p.Email, p.Name, p.Amount, p.Fee, p.NextDueDate)
	default:
		return fmt.Errorf("unknown outbox kind %q", entry.Kind)
	}
}
