package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput marks recalculation inputs that can never produce a
// valid schedule. Callers treat it as fatal.
var ErrInvalidInput = errors.New("invalid schedule input")

var hundred = decimal.NewFromInt(100)

// Entry is one future installment produced by Recalculate. All monetary
// fields are rounded to 2 decimals, half up.
type Entry struct {
	DueDate          time.Time
	Amount           decimal.Decimal
	Interest         decimal.Decimal
	Principal        decimal.Decimal
	RemainingBalance decimal.Decimal
	PaymentNumber    int
}

// Recalculate amortizes remainingBalance into a sequence of future
// installments of paymentAmount each, starting at firstDueDate. The final
// entry may be smaller than paymentAmount so the balance lands exactly on
// zero. annualRate is a percentage (29 means 29% APR).
//
// The function is pure and deterministic: the same inputs always yield the
// same sequence, so retries after a partial write are safe.
func Recalculate(remainingBalance, paymentAmount decimal.Decimal, freq Frequency, annualRate decimal.Decimal, firstDueDate time.Time, maxPeriods int) ([]Entry, error) {
	if remainingBalance.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: remaining balance must be positive, got %s", ErrInvalidInput, remainingBalance)
	}
	if paymentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", ErrInvalidInput, paymentAmount)
	}
	if annualRate.IsNegative() {
		return nil, fmt.Errorf("%w: interest rate must not be negative, got %s", ErrInvalidInput, annualRate)
	}
	if maxPeriods <= 0 {
		return nil, fmt.Errorf("%w: max periods must be positive, got %d", ErrInvalidInput, maxPeriods)
	}

	periodicRate := annualRate.Div(hundred).Div(decimal.NewFromInt(int64(freq.PeriodsPerYear())))

	// A payment that does not cover even the first period's interest never
	// amortizes; maxPeriods would merely truncate an endless schedule.
	firstInterest := remainingBalance.Mul(periodicRate).Round(2)
	if paymentAmount.LessThanOrEqual(firstInterest) {
		return nil, fmt.Errorf("%w: payment %s does not exceed periodic interest %s", ErrInvalidInput, paymentAmount, firstInterest)
	}

	balance := remainingBalance.Round(2)
	dueDate := firstDueDate
	entries := make([]Entry, 0, maxPeriods)

	for n := 1; n <= maxPeriods && balance.IsPositive(); n++ {
		interest := balance.Mul(periodicRate).Round(2)
		principal := paymentAmount.Round(2).Sub(interest)
		if principal.GreaterThanOrEqual(balance) {
			// Final installment: collect exactly what is left.
			principal = balance
		}
		balance = balance.Sub(principal)
		entries = append(entries, Entry{
			DueDate:          dueDate,
			Amount:           interest.Add(principal),
			Interest:         interest,
			Principal:        principal,
			RemainingBalance: balance,
			PaymentNumber:    n,
		})
		dueDate = freq.Next(dueDate)
	}

	return entries, nil
}
