package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelar-fin/loan-service/internal/models"
)

func TestDisburse_CreatesInitialSchedule(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("1000"), InterestRate: dec("29")}
	store.contracts[1] = &models.Contract{
		ID: 10, LoanID: 1, PaymentFrequency: "monthly",
		PaymentAmount: dec("100"), FailedPaymentFee: dec("55"),
	}
	svc := testService(t, store)

	installments, err := svc.Disburse(context.Background(), 1, day(2024, time.January, 1))
	require.NoError(t, err)
	require.NotEmpty(t, installments)
	require.Len(t, store.created, len(installments))

	first := installments[0]
	assert.Equal(t, 1, first.PaymentNumber)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.True(t, first.PaymentDate.Equal(day(2024, time.January, 1)))
	assert.True(t, first.Interest.Equal(dec("24.17")))

	last := installments[len(installments)-1]
	require.True(t, last.RemainingBalance.Valid)
	assert.True(t, last.RemainingBalance.Decimal.IsZero())

	// The processor is told to pick up the new schedule.
	require.Len(t, store.outbox, 1)
	assert.Equal(t, models.OutboxProcessorResync, store.outbox[0].Kind)
}

func TestDisburse_RejectsSecondSchedule(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("1000"), InterestRate: dec("29")}
	store.contracts[1] = &models.Contract{
		ID: 10, LoanID: 1, PaymentFrequency: "monthly", PaymentAmount: dec("100"),
	}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, PaymentDate: day(2024, time.February, 1),
		Status: models.StatusPending, Amount: dec("100"),
	}
	svc := testService(t, store)

	_, err := svc.Disburse(context.Background(), 1, day(2024, time.March, 1))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDisburse_RequiresContract(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("1000")}
	svc := testService(t, store)

	_, err := svc.Disburse(context.Background(), 1, time.Time{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegisterAndLogin(t *testing.T) {
	store := newFakeStore()
	svc := testService(t, store)

	staff, err := svc.RegisterStaff(context.Background(), "ops@avelar.test", "Ops User", "hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", staff.PasswordHash)

	token, err := svc.Login(context.Background(), "ops@avelar.test", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = svc.Login(context.Background(), "ops@avelar.test", "wrong")
	assert.Error(t, err)
}
