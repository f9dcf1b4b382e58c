package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelar-fin/loan-service/internal/config"
	"github.com/avelar-fin/loan-service/internal/models"
	"github.com/avelar-fin/loan-service/internal/schedule"
)

type fakeStore struct {
	loans        map[int64]*models.Loan
	installments map[int64]*models.Installment
	contracts    map[int64]*models.Contract
	staff        map[string]*models.Staff

	settleCalls  int
	failureCalls int
	created      []models.Installment
	outbox       []models.OutboxEntry

	lastSettleStatus  models.InstallmentStatus
	lastSettleBalance decimal.Decimal
	lastFailedRow     models.Installment
	lastDiff          schedule.Diff
	lastNewBalance    decimal.Decimal
	lastOutbox        []models.OutboxEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		loans:        map[int64]*models.Loan{},
		installments: map[int64]*models.Installment{},
		contracts:    map[int64]*models.Contract{},
		staff:        map[string]*models.Staff{},
	}
}

func (f *fakeStore) LoanByID(_ context.Context, id int64) (*models.Loan, error) {
	loan, ok := f.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %d: %w", id, models.ErrNotFound)
	}
	cp := *loan
	return &cp, nil
}

func (f *fakeStore) InstallmentByID(_ context.Context, id int64) (*models.Installment, error) {
	inst, ok := f.installments[id]
	if !ok {
		return nil, fmt.Errorf("installment %d: %w", id, models.ErrNotFound)
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeStore) InstallmentsByLoan(_ context.Context, loanID int64) ([]models.Installment, error) {
	var out []models.Installment
	for _, inst := range f.installments {
		if inst.LoanID == loanID {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentNumber < out[j].PaymentNumber
		}
		return out[i].PaymentDate.Before(out[j].PaymentDate)
	})
	return out, nil
}

func (f *fakeStore) LatestContractByLoan(_ context.Context, loanID int64) (*models.Contract, error) {
	contract, ok := f.contracts[loanID]
	if !ok {
		return nil, fmt.Errorf("contract for loan %d: %w", loanID, models.ErrNotFound)
	}
	cp := *contract
	return &cp, nil
}

func (f *fakeStore) CreateInstallments(_ context.Context, installments []models.Installment) error {
	f.created = append(f.created, installments...)
	return nil
}

func (f *fakeStore) SettleInstallment(_ context.Context, installmentID, loanID int64, newStatus models.InstallmentStatus, _ *string, newBalance decimal.Decimal) (bool, error) {
	inst, ok := f.installments[installmentID]
	if !ok || !inst.Status.IsActive() {
		return false, nil
	}
	inst.Status = newStatus
	f.loans[loanID].RemainingBalance = newBalance
	f.settleCalls++
	f.lastSettleStatus = newStatus
	f.lastSettleBalance = newBalance
	return true, nil
}

func (f *fakeStore) ApplyFailure(_ context.Context, loanID int64, failed models.Installment, diff schedule.Diff, newBalance decimal.Decimal, outbox []models.OutboxEntry) error {
	inst, ok := f.installments[failed.ID]
	if !ok || !inst.Status.IsActive() {
		return fmt.Errorf("installment %d: %w", failed.ID, models.ErrConflict)
	}
	*inst = failed
	f.loans[loanID].RemainingBalance = newBalance
	f.failureCalls++
	f.lastFailedRow = failed
	f.lastDiff = diff
	f.lastNewBalance = newBalance
	f.lastOutbox = outbox
	f.outbox = append(f.outbox, outbox...)
	return nil
}

func (f *fakeStore) EnqueueOutbox(_ context.Context, entries []models.OutboxEntry) error {
	f.outbox = append(f.outbox, entries...)
	return nil
}

func (f *fakeStore) CreateStaff(_ context.Context, staff *models.Staff) error {
	staff.ID = int64(len(f.staff) + 1)
	f.staff[staff.Email] = staff
	return nil
}

func (f *fakeStore) StaffByEmail(_ context.Context, email string) (*models.Staff, error) {
	staff, ok := f.staff[email]
	if !ok {
		return nil, fmt.Errorf("staff %s: %w", email, models.ErrNotFound)
	}
	return staff, nil
}

func testService(t *testing.T, store Store) *Service {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	svc, err := NewService(store, nil, log, &config.Config{
		JWTSecret:          "test-secret",
		DefaultFailedFee:   "55.00",
		MaxSchedulePeriods: 480,
	})
	require.NoError(t, err)
	return svc
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTransition_IdempotentOnSameStatus(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("4500")}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, Status: models.StatusPaid, Amount: dec("500"),
	}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusPaid})
	assert.True(t, res.Success)
	assert.Zero(t, store.settleCalls)
	assert.Zero(t, store.failureCalls)
}

func TestTransition_ConfirmUsesStoredBalance(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("5000")}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, Status: models.StatusAuthorized, Amount: dec("500"),
		RemainingBalance: decimal.NullDecimal{Decimal: dec("4480.50"), Valid: true},
	}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusConfirmed})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, store.settleCalls)
	assert.True(t, store.lastSettleBalance.Equal(dec("4480.50")))

	// Duplicate webhook delivery: already confirmed, so no second write.
	res = svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusConfirmed})
	assert.True(t, res.Success)
	assert.Equal(t, 1, store.settleCalls)
}

func TestTransition_ConfirmFallsBackToSubtraction(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("300")}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, Status: models.StatusPending, Amount: dec("500"),
	}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusPaid})
	require.True(t, res.Success, res.Error)
	// 300 - 500 floors at zero instead of going negative.
	assert.True(t, store.lastSettleBalance.IsZero(), "balance = %s", store.lastSettleBalance)
}

func TestTransition_RejectsTerminalSource(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1}
	store.installments[101] = &models.Installment{ID: 101, LoanID: 1, Status: models.StatusRebate}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusPaid})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "cannot transition")
}

func TestTransition_UnknownInstallment(t *testing.T) {
	store := newFakeStore()
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 999, NewStatus: models.StatusPaid})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestTransition_WrongLoan(t *testing.T) {
	store := newFakeStore()
	store.installments[101] = &models.Installment{ID: 101, LoanID: 7, Status: models.StatusPending}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusPaid})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "does not belong")
}

// The scenario from the ops runbook: a $500 installment with $120 interest
// fails on a loan with a $5,000 balance and a $55 failure fee.
func TestTransition_FailedPaymentRollForward(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{
		ID: 1, BorrowerName: "Ada Prescott", BorrowerEmail: "ada@example.com",
		RemainingBalance: dec("5000"), InterestRate: dec("29"),
	}
	store.contracts[1] = &models.Contract{
		ID: 10, LoanID: 1, PaymentFrequency: "monthly",
		PaymentAmount: dec("500"), FailedPaymentFee: dec("55"),
	}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, PaymentDate: day(2024, time.March, 1), PaymentNumber: 1,
		Amount: dec("500"), Interest: dec("120"), Principal: dec("380"),
		Status: models.StatusPending,
	}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusFailed})
	require.True(t, res.Success, res.Error)
	require.Equal(t, 1, store.failureCalls)

	failed := store.lastFailedRow
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.True(t, failed.Amount.IsZero())
	assert.True(t, failed.Interest.IsZero())
	assert.True(t, failed.Principal.Equal(dec("-175")), "principal = %s", failed.Principal)
	require.True(t, failed.RemainingBalance.Valid)
	assert.True(t, failed.RemainingBalance.Decimal.Equal(dec("5175")))
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, "PAYMENT_FAILED", *failed.ErrorCode)
	require.NotNil(t, failed.Notes)

	assert.True(t, store.lastNewBalance.Equal(dec("5175")))
	assert.True(t, store.loans[1].RemainingBalance.Equal(dec("5175")))

	// No later pending rows existed, so the whole recalculated tail is
	// inserted, starting one month after the failed due date.
	require.NotEmpty(t, store.lastDiff.Inserts)
	assert.Empty(t, store.lastDiff.Updates)
	assert.Empty(t, store.lastDiff.DeleteIDs)
	first := store.lastDiff.Inserts[0]
	assert.True(t, first.DueDate.Equal(day(2024, time.April, 1)))
	// 5175 * 29%/12 = 125.06 interest on the first recalculated period.
	assert.True(t, first.Interest.Equal(dec("125.06")), "interest = %s", first.Interest)
	assert.True(t, first.Principal.Equal(dec("374.94")), "principal = %s", first.Principal)

	// Both side effects ride the same ledger write.
	require.Len(t, store.lastOutbox, 2)
	assert.Equal(t, models.OutboxProcessorResync, store.lastOutbox[0].Kind)
	assert.Equal(t, models.OutboxNotifyBorrower, store.lastOutbox[1].Kind)
}

func TestTransition_FailedRealignsExistingTail(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("5000"), InterestRate: dec("29")}
	store.contracts[1] = &models.Contract{
		ID: 10, LoanID: 1, PaymentFrequency: "monthly",
		PaymentAmount: dec("500"), FailedPaymentFee: dec("55"),
	}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, PaymentDate: day(2024, time.March, 1), PaymentNumber: 1,
		Amount: dec("500"), Interest: dec("120"), Principal: dec("380"),
		Status: models.StatusPending,
	}
	store.installments[102] = &models.Installment{
		ID: 102, LoanID: 1, PaymentDate: day(2024, time.April, 1), PaymentNumber: 2,
		Amount: dec("500"), Status: models.StatusPending,
	}
	store.installments[103] = &models.Installment{
		ID: 103, LoanID: 1, PaymentDate: day(2024, time.May, 1), PaymentNumber: 3,
		Amount: dec("500"), Status: models.StatusPending,
	}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusFailed})
	require.True(t, res.Success, res.Error)

	// The two later pending rows are rewritten in place; the rest of the
	// recalculated tail is inserted after them.
	require.Len(t, store.lastDiff.Updates, 2)
	assert.Equal(t, int64(102), store.lastDiff.Updates[0].ID)
	assert.Equal(t, int64(103), store.lastDiff.Updates[1].ID)
	assert.True(t, store.lastDiff.Updates[0].Entry.DueDate.Equal(day(2024, time.April, 1)))
	assert.NotEmpty(t, store.lastDiff.Inserts)
	assert.Empty(t, store.lastDiff.DeleteIDs)
}

func TestTransition_FailedWithoutContractUsesDefaults(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("5000"), InterestRate: dec("29")}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, PaymentDate: day(2024, time.March, 1), PaymentNumber: 1,
		Amount: dec("500"), Interest: dec("120"), Principal: dec("380"),
		Status: models.StatusPending,
	}
	svc := testService(t, store)

	res := svc.Transition(context.Background(), TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusFailed})
	require.True(t, res.Success, res.Error)

	// Default fee 55.00 plus 120 interest rolled, same as the contract case.
	assert.True(t, store.lastFailedRow.Principal.Equal(dec("-175")))
	assert.True(t, store.lastNewBalance.Equal(dec("5175")))
}

func TestTransition_FailedTwiceIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.loans[1] = &models.Loan{ID: 1, RemainingBalance: dec("5000"), InterestRate: dec("29")}
	store.contracts[1] = &models.Contract{
		ID: 10, LoanID: 1, PaymentFrequency: "monthly",
		PaymentAmount: dec("500"), FailedPaymentFee: dec("55"),
	}
	store.installments[101] = &models.Installment{
		ID: 101, LoanID: 1, PaymentDate: day(2024, time.March, 1), PaymentNumber: 1,
		Amount: dec("500"), Interest: dec("120"), Principal: dec("380"),
		Status: models.StatusPending,
	}
	svc := testService(t, store)

	in := TransitionInput{LoanID: 1, InstallmentID: 101, NewStatus: models.StatusFailed}
	require.True(t, svc.Transition(context.Background(), in).Success)
	require.True(t, svc.Transition(context.Background(), in).Success)
	assert.Equal(t, 1, store.failureCalls)
	// The balance reflects exactly one roll-forward.
	assert.True(t, store.loans[1].RemainingBalance.Equal(dec("5175")))
}
