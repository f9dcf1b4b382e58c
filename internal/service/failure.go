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

const failedPaymentErrorCode = "PAYMENT_FAILED"

// applyFailure rolls a failed installment's interest plus the failure fee
// back into principal, recalculates the remaining schedule from the next due
// date and persists the reconciled diff, the rewritten failed row, the new
// loan balance and the side-effect outbox entries in one transaction.
func (s *Service) applyFailure(ctx context.Context, loan *models.Loan, failed *models.Installment, freq schedule.Frequency, paymentAmount, failureFee decimal.Decimal, errorCode *string) error {
	installments, err := s.store.InstallmentsByLoan(ctx, loan.ID)
	if err != nil {
		return err
	}

	idx := -1
	for i := range installments {
		if installments[i].ID == failed.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("installment %d not in loan %d schedule: %w", failed.ID, loan.ID, models.ErrNotFound)
	}

	// Principal owed before this installment: the previous row's running
	// balance, or the loan's own balance at the head of the schedule.
	prevBalance := loan.RemainingBalance
	if idx > 0 && installments[idx-1].RemainingBalance.Valid {
		prevBalance = installments[idx-1].RemainingBalance.Decimal
	}

	// Nothing was collected, so the period's interest and the penalty fee
	// are both owed on top of the untouched principal.
	rolled := failureFee.Add(failed.Interest).Round(2)
	newPrincipal := prevBalance.Add(rolled).Round(2)

	nextDue := freq.Next(failed.PaymentDate)
	for i := idx + 1; i < len(installments); i++ {
		if installments[i].Status == models.StatusPending {
			nextDue = installments[i].PaymentDate
			break
		}
	}

	annualRate := s.annualRate(ctx, loan)
	entries, err := schedule.Recalculate(newPrincipal, paymentAmount, freq, annualRate, nextDue, s.config.MaxSchedulePeriods)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	// The failed row is rewritten separately below; it must never be part
	// of the positional alignment, even when it shares its due date with
	// the cutover.
	others := make([]models.Installment, 0, len(installments)-1)
	others = append(others, installments[:idx]...)
	others = append(others, installments[idx+1:]...)
	diff, err := schedule.Reconcile(others, entries, &nextDue)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	failedRow := *failed
	failedRow.Status = models.StatusFailed
	failedRow.Amount = decimal.Zero
	failedRow.Interest = decimal.Zero
	// Recorded as a negative ledger adjustment, not a real payment.
	failedRow.Principal = rolled.Neg()
	failedRow.RemainingBalance = decimal.NullDecimal{Decimal: newPrincipal, Valid: true}
	code := failedPaymentErrorCode
	if errorCode != nil && *errorCode != "" {
		code = *errorCode
	}
	failedRow.ErrorCode = &code
	note := fmt.Sprintf("Payment of %s failed on %s; interest %s and fee %s rolled into principal, schedule recalculated from %s",
		failed.Amount, failed.PaymentDate.Format("2006-01-02"), failed.Interest, failureFee, nextDue.Format("2006-01-02"))
	failedRow.Notes = &note

	outbox, err := s.failureOutbox(loan, failed, failureFee, nextDue)
	if err != nil {
		return err
	}

	if err := s.store.ApplyFailure(ctx, loan.ID, failedRow, diff, newPrincipal, outbox); err != nil {
		return err
	}

	s.log.WithFields(map[string]any{
		"loan_id":        loan.ID,
		"installment_id": failed.ID,
		"rolled_amount":  rolled,
		"new_balance":    newPrincipal,
		"updates":        len(diff.Updates),
		"inserts":        len(diff.Inserts),
		"deletes":        len(diff.DeleteIDs),
	}).Info("Failed payment rolled forward, schedule recalculated")
	return nil
}

// failureOutbox builds the processor resync and borrower notification
// entries committed alongside the ledger write. Delivery happens later and
// may fail without ever touching the ledger.
func (s *Service) failureOutbox(loan *models.Loan, failed *models.Installment, fee decimal.Decimal, nextDue time.Time) ([]models.OutboxEntry, error) {
	resync, err := json.Marshal(models.ResyncPayload{
		LoanID: loan.ID,
		Reason: "failed_payment_recalculation",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode resync payload: %w", err)
	}
	notify, err := json.Marshal(models.NotifyPayload{
		Email:       loan.BorrowerEmail,
		Name:        loan.BorrowerName,
		Amount:      failed.Amount.StringFixed(2),
		Fee:         fee.StringFixed(2),
		NextDueDate: nextDue.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}

	return []models.OutboxEntry{
		{
			ID:      uuid.NewString(),
			LoanID:  loan.ID,
			Kind:    models.OutboxProcessorResync,
			Payload: resync,
			Status:  models.OutboxPending,
		},
		{
			ID:      uuid.NewString(),
			LoanID:  loan.ID,
			Kind:    models.OutboxNotifyBorrower,
			Payload: notify,
			Status:  models.OutboxPending,
		},
	}, nil
}
