package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avelar-fin/loan-service/internal/models"
	"github.com/avelar-fin/loan-service/internal/schedule"
)

// Disburse generates and persists the initial amortization schedule for a
// loan whose funds have been released. The contract supplies the payment
// terms; the first due date defaults to one frequency step from today.
func (s *Service) Disburse(ctx context.Context, loanID int64, firstDueDate time.Time) ([]models.Installment, error) {
	loan, err := s.store.LoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.LatestContractByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("loan %d has no signed contract: %w", loanID, models.ErrValidation)
	}
	freq, err := schedule.ParseFrequency(contract.PaymentFrequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	existing, err := s.store.InstallmentsByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	for _, inst := range existing {
		if inst.Status.IsActive() {
			return nil, fmt.Errorf("loan %d already has an active schedule: %w", loanID, models.ErrValidation)
		}
	}

	if firstDueDate.IsZero() {
		firstDueDate = freq.Next(time.Now().UTC().Truncate(24 * time.Hour))
	}

	entries, err := schedule.Recalculate(
		loan.RemainingBalance, contract.PaymentAmount, freq,
		s.annualRate(ctx, loan), firstDueDate, s.config.MaxSchedulePeriods,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	installments := make([]models.Installment, len(entries))
	for i, e := range entries {
		installments[i] = models.Installment{
			LoanID:           loanID,
			PaymentDate:      e.DueDate,
			Amount:           e.Amount,
			Interest:         e.Interest,
			Principal:        e.Principal,
			RemainingBalance: decimal.NullDecimal{Decimal: e.RemainingBalance, Valid: true},
			PaymentNumber:    e.PaymentNumber,
			Status:           models.StatusPending,
		}
	}
	if err := s.store.CreateInstallments(ctx, installments); err != nil {
		return nil, err
	}

	// Best effort: the schedule is already committed, a missing resync is
	// recovered by the next recalculation.
	payload, err := json.Marshal(models.ResyncPayload{LoanID: loanID, Reason: "initial_disbursement"})
	if err == nil {
		err = s.store.EnqueueOutbox(ctx, []models.OutboxEntry{{
			ID:      uuid.NewString(),
			LoanID:  loanID,
			Kind:    models.OutboxProcessorResync,
			Payload: payload,
			Status:  models.OutboxPending,
		}})
	}
	if err != nil {
		s.log.Errorf("Failed to enqueue disbursement resync for loan %d: %v", loanID, err)
	}

	s.log.Infof("Loan %d disbursed: %d installments of %s (%s)", loanID, len(installments), contract.PaymentAmount, freq)
	return installments, nil
}

// ScheduleSummary aggregates a loan's schedule for the admin console.
type ScheduleSummary struct {
	TotalPayments     int             `json:"total_payments"`
	PaidPayments      int             `json:"paid_payments"`
	FailedPayments    int             `json:"failed_payments"`
	RemainingPayments int             `json:"remaining_payments"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	TotalPrincipal    decimal.Decimal `json:"total_principal"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
}

// Schedule returns a loan's full installment list ordered by due date,
// with summary totals.
func (s *Service) Schedule(ctx context.Context, loanID int64) ([]models.Installment, ScheduleSummary, error) {
	if _, err := s.store.LoanByID(ctx, loanID); err != nil {
		return nil, ScheduleSummary{}, err
	}
	installments, err := s.store.InstallmentsByLoan(ctx, loanID)
	if err != nil {
		return nil, ScheduleSummary{}, err
	}

	summary := ScheduleSummary{TotalPayments: len(installments)}
	for _, inst := range installments {
		summary.TotalInterest = summary.TotalInterest.Add(inst.Interest)
		summary.TotalPrincipal = summary.TotalPrincipal.Add(inst.Principal)
		switch {
		case inst.Status.IsSettled():
			summary.PaidPayments++
		case inst.Status == models.StatusFailed:
			summary.FailedPayments++
		case inst.Status.IsActive():
			summary.RemainingPayments++
			summary.RemainingAmount = summary.RemainingAmount.Add(inst.Amount)
		}
	}
	return installments, summary, nil
}
