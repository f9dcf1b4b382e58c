package schedule

import (
	"fmt"
	"time"
)

// Frequency is the interval between scheduled payments.
type Frequency string

const (
	Weekly       Frequency = "weekly"
	Biweekly     Frequency = "bi-weekly"
	TwiceMonthly Frequency = "twice-monthly"
	Monthly      Frequency = "monthly"
)

// ParseFrequency validates a stored frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case Weekly, Biweekly, TwiceMonthly, Monthly:
		return Frequency(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment frequency %q", ErrInvalidInput, s)
}

// PeriodsPerYear returns the number of payments per year implied by the
// frequency, used to derive the periodic interest rate from an annual one.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case Weekly:
		return 52
	case Biweekly:
		return 26
	case TwiceMonthly:
		return 24
	default:
		return 12
	}
}

// Next advances a due date by one payment period. Twice-monthly uses a flat
// 15-day step, matching the amounts already shown to borrowers.
func (f Frequency) Next(d time.Time) time.Time {
	switch f {
	case Weekly:
		return d.AddDate(0, 0, 7)
	case Biweekly:
		return d.AddDate(0, 0, 14)
	case TwiceMonthly:
		return d.AddDate(0, 0, 15)
	default:
		return d.AddDate(0, 1, 0)
	}
}
