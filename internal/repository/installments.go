package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avelar-fin/loan-service/internal/models"
	"github.com/avelar-fin/loan-service/internal/schedule"
)

// InstallmentByID retrieves a single installment by its primary key
func (r *Repository) InstallmentByID(ctx context.Context, id int64) (*models.Installment, error) {
	inst := &models.Installment{}
	query := `
		SELECT id, loan_id, payment_date, amount, interest, principal, remaining_balance,
		       payment_number, status, notes, error_code, external_transaction_id,
		       created_at, updated_at
		FROM installments
		WHERE id = $1`
	err := r.db.GetContext(ctx, inst, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load installment %d: %w", id, err)
	}
	return inst, nil
}

// InstallmentsByLoan retrieves the full schedule of a loan ordered by due date
func (r *Repository) InstallmentsByLoan(ctx context.Context, loanID int64) ([]models.Installment, error) {
	var installments []models.Installment
	query := `
		SELECT id, loan_id, payment_date, amount, interest, principal, remaining_balance,
		       payment_number, status, notes, error_code, external_transaction_id,
		       created_at, updated_at
		FROM installments
		WHERE loan_id = $1
		ORDER BY payment_date ASC, payment_number ASC`
	if err := r.db.SelectContext(ctx, &installments, query, loanID); err != nil {
		return nil, fmt.Errorf("failed to load installments for loan %d: %w", loanID, err)
	}
	return installments, nil
}

const insertInstallmentQuery = `
	INSERT INTO installments (
		loan_id, payment_date, amount, interest, principal, remaining_balance,
		payment_number, status, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`

// CreateInstallments bulk-inserts a freshly generated schedule in one transaction
func (r *Repository) CreateInstallments(ctx context.Context, installments []models.Installment) error {
	if len(installments) == 0 {
		return fmt.Errorf("empty installment batch: %w", models.ErrValidation)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertInstallmentQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare installment insert: %w", err)
	}
	defer stmt.Close()

	for _, inst := range installments {
		_, err := stmt.ExecContext(ctx,
			inst.LoanID, inst.PaymentDate, inst.Amount, inst.Interest, inst.Principal,
			inst.RemainingBalance, inst.PaymentNumber, inst.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d for loan %d: %w", inst.PaymentNumber, inst.LoanID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit installment batch: %w", err)
	}
	return nil
}

// SettleInstallment marks an active installment confirmed or paid and moves
// the loan balance in the same transaction. Returns false without error when
// the row was no longer active, which happens when two deliveries of the same
// processor webhook race each other.
func (r *Repository) SettleInstallment(ctx context.Context, installmentID, loanID int64, newStatus models.InstallmentStatus, externalTransactionID *string, newBalance decimal.Decimal) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET status = $1,
		    external_transaction_id = COALESCE($2, external_transaction_id),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND loan_id = $4
		  AND status IN ('pending', 'scheduled', 'authorized')`,
		newStatus, externalTransactionID, installmentID, loanID)
	if err != nil {
		return false, fmt.Errorf("failed to settle installment %d: %w", installmentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := setLoanBalanceTx(ctx, tx, loanID, newBalance); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit settlement of installment %d: %w", installmentID, err)
	}
	return true, nil
}

// ApplyFailure persists a failed-payment recalculation atomically: the
// reconciled schedule diff, the rewritten failed row, the new loan balance
// and the side-effect outbox entries all commit or roll back together.
func (r *Repository) ApplyFailure(ctx context.Context, loanID int64, failed models.Installment, diff schedule.Diff, newBalance decimal.Decimal, outbox []models.OutboxEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The failed row is rewritten first: its status guard is what makes a
	// racing duplicate of the same failure webhook lose cleanly.
	res, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET status = 'failed', amount = 0, interest = 0,
		    principal = $1, remaining_balance = $2,
		    error_code = $3, notes = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND loan_id = $6
		  AND status IN ('pending', 'scheduled', 'authorized')`,
		failed.Principal, failed.RemainingBalance, failed.ErrorCode, failed.Notes,
		failed.ID, loanID)
	if err != nil {
		return fmt.Errorf("failed to mark installment %d failed: %w", failed.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("installment %d: %w", failed.ID, models.ErrConflict)
	}

	updateStmt, err := tx.PrepareContext(ctx, `
		UPDATE installments
		SET payment_date = $1, amount = $2, interest = $3, principal = $4,
		    remaining_balance = $5, payment_number = $6,
		    status = 'pending', notes = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $7`)
	if err != nil {
		return fmt.Errorf("failed to prepare schedule update: %w", err)
	}
	defer updateStmt.Close()

	for _, u := range diff.Updates {
		_, err := updateStmt.ExecContext(ctx,
			u.Entry.DueDate, u.Entry.Amount, u.Entry.Interest, u.Entry.Principal,
			u.Entry.RemainingBalance, u.Entry.PaymentNumber, u.ID)
		if err != nil {
			return fmt.Errorf("failed to update installment %d: %w", u.ID, err)
		}
	}

	insertStmt, err := tx.PrepareContext(ctx, insertInstallmentQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare schedule insert: %w", err)
	}
	defer insertStmt.Close()

	for _, e := range diff.Inserts {
		_, err := insertStmt.ExecContext(ctx,
			loanID, e.DueDate, e.Amount, e.Interest, e.Principal,
			e.RemainingBalance, e.PaymentNumber, models.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d for loan %d: %w", e.PaymentNumber, loanID, err)
		}
	}

	for _, id := range diff.DeleteIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM installments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete installment %d: %w", id, err)
		}
	}

	if err := setLoanBalanceTx(ctx, tx, loanID, newBalance); err != nil {
		return err
	}
	if err := insertOutboxTx(ctx, tx, outbox); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure recalculation for loan %d: %w", loanID, err)
	}
	return nil
}

// InstallmentsDueWithin lists active installments due inside [from, to),
// joined with borrower contact details for reminder dispatch.
func (r *Repository) InstallmentsDueWithin(ctx context.Context, from, to time.Time) ([]models.DueInstallment, error) {
	var due []models.DueInstallment
	query := `
		SELECT i.id, i.loan_id, i.payment_date, i.amount, i.interest, i.principal,
		       i.remaining_balance, i.payment_number, i.status, i.notes, i.error_code,
		       i.external_transaction_id, i.created_at, i.updated_at,
		       l.borrower_name, l.borrower_email
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE i.status IN ('pending', 'scheduled', 'authorized')
		  AND i.payment_date >= $1 AND i.payment_date < $2
		ORDER BY i.payment_date ASC`
	if err := r.db.SelectContext(ctx, &due, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to load due installments: %w", err)
	}
	return due, nil
}
