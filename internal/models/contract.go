package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract holds the signed repayment terms for a loan. The most recent
// contract per loan is the active one; older rows are kept for audit.
type Contract struct {
	ID               int64           `db:"id" json:"id"`
	LoanID           int64           `db:"loan_id" json:"loan_id"`
	PaymentFrequency string          `db:"payment_frequency" json:"payment_frequency"`
	PaymentAmount    decimal.Decimal `db:"payment_amount" json:"payment_amount"`
	FailedPaymentFee decimal.Decimal `db:"failed_payment_fee" json:"failed_payment_fee"`
	SignedAt         time.Time       `db:"signed_at" json:"signed_at"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
