package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avelar-fin/loan-service/internal/models"
	"github.com/avelar-fin/loan-service/internal/schedule"
)

// TransitionInput is one status change request for an installment, usually
// delivered by the payment processor's webhook.
type TransitionInput struct {
	LoanID                int64
	InstallmentID         int64
	NewStatus             models.InstallmentStatus
	ExternalTransactionID *string
	ErrorCode             *string

	// Overrides used when the loan has no contract on file.
	FrequencyOverride     string
	PaymentAmountOverride *decimal.Decimal
	FailureFeeOverride    *decimal.Decimal
}

// Result is the structured outcome returned across the engine boundary.
// No panic or raw error escapes Transition.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Transition applies a status change to an installment at most once.
// A repeated delivery of the same status is acknowledged without any write,
// which is what makes processor webhook retries safe.
func (s *Service) Transition(ctx context.Context, in TransitionInput) Result {
	inst, err := s.store.InstallmentByID(ctx, in.InstallmentID)
	if err != nil {
		return failure("failed to load installment: %v", err)
	}
	if inst.LoanID != in.LoanID {
		return failure("installment %d does not belong to loan %d", in.InstallmentID, in.LoanID)
	}

	if inst.Status == in.NewStatus {
		s.log.Infof("Installment %d already %s, transition is a no-op", inst.ID, in.NewStatus)
		return Result{Success: true}
	}

	if !inst.Status.IsActive() {
		return failure("installment %d is %s and cannot transition to %s", inst.ID, inst.Status, in.NewStatus)
	}

	switch in.NewStatus {
	case models.StatusConfirmed, models.StatusPaid:
		return s.settle(ctx, inst, in)
	case models.StatusFailed:
		return s.fail(ctx, inst, in)
	default:
		return failure("unsupported transition %s -> %s", inst.Status, in.NewStatus)
	}
}

// settle confirms a collected installment and moves the loan balance down.
func (s *Service) settle(ctx context.Context, inst *models.Installment, in TransitionInput) Result {
	loan, err := s.store.LoanByID(ctx, inst.LoanID)
	if err != nil {
		return failure("failed to load loan: %v", err)
	}

	// Prefer the balance the schedule already computed for this row; fall
	// back to arithmetic for rows that never carried one.
	var newBalance decimal.Decimal
	if inst.RemainingBalance.Valid {
		newBalance = inst.RemainingBalance.Decimal
	} else {
		newBalance = loan.RemainingBalance.Sub(inst.Amount)
		if newBalance.IsNegative() {
			newBalance = decimal.Zero
		}
	}

	applied, err := s.store.SettleInstallment(ctx, inst.ID, inst.LoanID, in.NewStatus, in.ExternalTransactionID, newBalance)
	if err != nil {
		return failure("failed to settle installment %d: %v", inst.ID, err)
	}
	if !applied {
		s.log.Warnf("Installment %d was settled concurrently, skipping duplicate write", inst.ID)
		return Result{Success: true}
	}

	s.log.Infof("Installment %d %s, loan %d balance now %s", inst.ID, in.NewStatus, loan.ID, newBalance)
	return Result{Success: true}
}

// fail resolves the contract configuration for a failed collection and
// delegates to the recalculation path.
func (s *Service) fail(ctx context.Context, inst *models.Installment, in TransitionInput) Result {
	loan, err := s.store.LoanByID(ctx, inst.LoanID)
	if err != nil {
		return failure("failed to load loan: %v", err)
	}

	contract, err := s.store.LatestContractByLoan(ctx, inst.LoanID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return failure("failed to load contract: %v", err)
	}

	freq, paymentAmount, fee := s.failureTerms(contract, inst, in)

	err = s.applyFailure(ctx, loan, inst, freq, paymentAmount, fee, in.ErrorCode)
	if errors.Is(err, models.ErrConflict) {
		s.log.Warnf("Installment %d failed concurrently, skipping duplicate recalculation", inst.ID)
		return Result{Success: true}
	}
	if err != nil {
		return failure("failed to apply payment failure: %v", err)
	}
	return Result{Success: true}
}

// failureTerms resolves frequency, payment amount and failure fee from the
// active contract, then the request overrides, then hard defaults.
func (s *Service) failureTerms(contract *models.Contract, inst *models.Installment, in TransitionInput) (schedule.Frequency, decimal.Decimal, decimal.Decimal) {
	freq := schedule.Monthly
	paymentAmount := inst.Amount
	fee := s.defaultFailedFee

	if in.FrequencyOverride != "" {
		if f, err := schedule.ParseFrequency(in.FrequencyOverride); err == nil {
			freq = f
		} else {
			s.log.Warnf("Ignoring invalid frequency override %q for installment %d", in.FrequencyOverride, inst.ID)
		}
	}
	if in.PaymentAmountOverride != nil {
		paymentAmount = *in.PaymentAmountOverride
	}
	if in.FailureFeeOverride != nil {
		fee = *in.FailureFeeOverride
	}

	if contract != nil {
		if f, err := schedule.ParseFrequency(contract.PaymentFrequency); err == nil {
			freq = f
		} else {
			s.log.Warnf("Contract %d has invalid frequency %q, falling back", contract.ID, contract.PaymentFrequency)
		}
		if contract.PaymentAmount.IsPositive() {
			paymentAmount = contract.PaymentAmount
		}
		if contract.FailedPaymentFee.IsPositive() {
			fee = contract.FailedPaymentFee
		}
	}

	return freq, paymentAmount, fee
}
