package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelar-fin/loan-service/internal/models"
)

func pendingRow(id int64, due time.Time, number int) models.Installment {
	return models.Installment{
		ID:            id,
		LoanID:        1,
		PaymentDate:   due,
		PaymentNumber: number,
		Status:        models.StatusPending,
		Amount:        decimal.NewFromInt(100),
	}
}

func breakdownOf(n int, first time.Time) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			DueDate:       first.AddDate(0, i, 0),
			Amount:        decimal.NewFromInt(100),
			PaymentNumber: i + 1,
		}
	}
	return entries
}

func TestReconcile_BreakdownLonger(t *testing.T) {
	first := date(2024, time.May, 1)
	existing := []models.Installment{
		pendingRow(11, first, 1),
		pendingRow(12, first.AddDate(0, 1, 0), 2),
		pendingRow(13, first.AddDate(0, 2, 0), 3),
	}

	diff, err := Reconcile(existing, breakdownOf(5, first), nil)
	require.NoError(t, err)

	require.Len(t, diff.Updates, 3)
	require.Len(t, diff.Inserts, 2)
	assert.Empty(t, diff.DeleteIDs)

	// Positional alignment: row order follows breakdown order exactly.
	assert.Equal(t, int64(11), diff.Updates[0].ID)
	assert.Equal(t, int64(12), diff.Updates[1].ID)
	assert.Equal(t, int64(13), diff.Updates[2].ID)
	assert.Equal(t, 4, diff.Inserts[0].PaymentNumber)
	assert.Equal(t, 5, diff.Inserts[1].PaymentNumber)
}

func TestReconcile_BreakdownShorter(t *testing.T) {
	first := date(2024, time.May, 1)
	existing := make([]models.Installment, 0, 5)
	for i := 0; i < 5; i++ {
		existing = append(existing, pendingRow(int64(20+i), first.AddDate(0, i, 0), i+1))
	}

	diff, err := Reconcile(existing, breakdownOf(3, first), nil)
	require.NoError(t, err)

	require.Len(t, diff.Updates, 3)
	assert.Empty(t, diff.Inserts)
	// Extra tail installments are payments no longer needed, not zeroed ones.
	assert.Equal(t, []int64{23, 24}, diff.DeleteIDs)
}

func TestReconcile_PreservedStatusesUntouched(t *testing.T) {
	first := date(2024, time.May, 1)
	paid := pendingRow(30, first, 1)
	paid.Status = models.StatusPaid
	failed := pendingRow(31, first.AddDate(0, 1, 0), 2)
	failed.Status = models.StatusFailed
	manual := pendingRow(32, first.AddDate(0, 2, 0), 3)
	manual.Status = models.StatusManual
	cancelled := pendingRow(33, first.AddDate(0, 3, 0), 4)
	cancelled.Status = models.StatusCancelled
	open := pendingRow(34, first.AddDate(0, 4, 0), 5)

	diff, err := Reconcile([]models.Installment{paid, failed, manual, cancelled, open}, breakdownOf(2, first), nil)
	require.NoError(t, err)

	// Only the cancelled and pending rows are updateable.
	require.Len(t, diff.Updates, 2)
	assert.Equal(t, int64(33), diff.Updates[0].ID)
	assert.Equal(t, int64(34), diff.Updates[1].ID)
	assert.Empty(t, diff.Inserts)
	assert.Empty(t, diff.DeleteIDs)
}

func TestReconcile_CutoverExcludesEarlierRows(t *testing.T) {
	first := date(2024, time.May, 1)
	existing := []models.Installment{
		pendingRow(40, first, 1),
		pendingRow(41, first.AddDate(0, 1, 0), 2),
		pendingRow(42, first.AddDate(0, 2, 0), 3),
	}
	cutover := first.AddDate(0, 1, 0)

	diff, err := Reconcile(existing, breakdownOf(2, cutover), &cutover)
	require.NoError(t, err)

	require.Len(t, diff.Updates, 2)
	assert.Equal(t, int64(41), diff.Updates[0].ID)
	assert.Equal(t, int64(42), diff.Updates[1].ID)
}

func TestReconcile_OrdersRowsBeforeMatching(t *testing.T) {
	first := date(2024, time.May, 1)
	existing := []models.Installment{
		pendingRow(52, first.AddDate(0, 2, 0), 3),
		pendingRow(50, first, 1),
		pendingRow(51, first.AddDate(0, 1, 0), 2),
	}

	diff, err := Reconcile(existing, breakdownOf(3, first), nil)
	require.NoError(t, err)
	require.Len(t, diff.Updates, 3)
	assert.Equal(t, int64(50), diff.Updates[0].ID)
	assert.Equal(t, int64(51), diff.Updates[1].ID)
	assert.Equal(t, int64(52), diff.Updates[2].ID)
}

func TestReconcile_EmptyBreakdown(t *testing.T) {
	_, err := Reconcile([]models.Installment{pendingRow(1, date(2024, time.May, 1), 1)}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
