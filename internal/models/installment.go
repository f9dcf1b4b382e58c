package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the lifecycle state of a scheduled payment.
type InstallmentStatus string

const (
	StatusPending    InstallmentStatus = "pending"
	StatusScheduled  InstallmentStatus = "scheduled"
	StatusAuthorized InstallmentStatus = "authorized"
	StatusConfirmed  InstallmentStatus = "confirmed"
	StatusPaid       InstallmentStatus = "paid"
	StatusFailed     InstallmentStatus = "failed"
	StatusCancelled  InstallmentStatus = "cancelled"
	StatusDeferred   InstallmentStatus = "deferred"
	StatusManual     InstallmentStatus = "manual"
	StatusRejected   InstallmentStatus = "rejected"
	StatusRebate     InstallmentStatus = "rebate"
)

// IsActive reports whether the installment is still awaiting collection.
func (s InstallmentStatus) IsActive() bool {
	return s == StatusPending || s == StatusScheduled || s == StatusAuthorized
}

// IsSettled reports whether the installment was collected successfully.
func (s InstallmentStatus) IsSettled() bool {
	return s == StatusConfirmed || s == StatusPaid
}

// IsUpdateable reports whether recalculation may rewrite this installment.
// Terminal states (paid, failed, deferred, manual, rejected, rebate) are
// immutable history; only pending and cancelled rows may be realigned.
func (s InstallmentStatus) IsUpdateable() bool {
	return s == StatusPending || s == StatusCancelled
}

// DueInstallment joins an installment with its borrower's contact details
// for reminder dispatch.
type DueInstallment struct {
	Installment
	BorrowerName  string `db:"borrower_name" json:"borrower_name"`
	BorrowerEmail string `db:"borrower_email" json:"borrower_email"`
}

// Installment is one scheduled payment within a loan's amortization schedule.
type Installment struct {
	ID          int64           `db:"id" json:"id"`
	LoanID      int64           `db:"loan_id" json:"loan_id"`
	PaymentDate time.Time       `db:"payment_date" json:"payment_date"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Interest    decimal.Decimal `db:"interest" json:"interest"`
	Principal   decimal.Decimal `db:"principal" json:"principal"`
	// RemainingBalance is nullable: rows imported from the legacy console
	// or adjusted by hand may not carry a running balance.
	RemainingBalance      decimal.NullDecimal `db:"remaining_balance" json:"remaining_balance"`
	PaymentNumber         int                 `db:"payment_number" json:"payment_number"`
	Status                InstallmentStatus   `db:"status" json:"status"`
	Notes                 *string             `db:"notes" json:"notes,omitempty"`
	ErrorCode             *string             `db:"error_code" json:"error_code,omitempty"`
	ExternalTransactionID *string             `db:"external_transaction_id" json:"external_transaction_id,omitempty"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}
