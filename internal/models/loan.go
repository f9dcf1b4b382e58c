package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan is the aggregate root of a payment schedule. RemainingBalance is the
// authoritative running total; it is never recomputed from the installment
// list, only mutated by the confirm and failure paths.
type Loan struct {
	ID               int64           `db:"id" json:"id"`
	ApplicationID    int64           `db:"application_id" json:"application_id"`
	BorrowerName     string          `db:"borrower_name" json:"borrower_name"`
	BorrowerEmail    string          `db:"borrower_email" json:"borrower_email"`
	RemainingBalance decimal.Decimal `db:"remaining_balance" json:"remaining_balance"`
	InterestRate     decimal.Decimal `db:"interest_rate" json:"interest_rate"` // annual, percent
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
