package models

import (
	"encoding/json"
	"time"
)

// OutboxKind identifies the side effect an outbox entry carries.
type OutboxKind string

const (
	OutboxProcessorResync OutboxKind = "processor_resync"
	OutboxNotifyBorrower  OutboxKind = "notify_borrower"
)

// OutboxStatus is the delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is a side effect recorded alongside a ledger write and
// delivered asynchronously. Delivery failures never roll back the ledger.
type OutboxEntry struct {
	ID        string          `db:"id" json:"id"`
	LoanID    int64           `db:"loan_id" json:"loan_id"`
	Kind      OutboxKind      `db:"kind" json:"kind"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Status    OutboxStatus    `db:"status" json:"status"`
	Attempts  int             `db:"attempts" json:"attempts"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	SentAt    *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
}

// ResyncPayload asks the payment processor to realign its pending
// transactions with the ledger after a schedule change.
type ResyncPayload struct {
	LoanID int64  `json:"loan_id"`
	Reason string `json:"reason"`
}

// NotifyPayload carries the data for a borrower notification email.
type NotifyPayload struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	NextDueDate string `json:"next_due_date"`
}
