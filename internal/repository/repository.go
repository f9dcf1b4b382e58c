package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/avelar-fin/loan-service/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// LoanByID retrieves a loan by its primary key
func (r *Repository) LoanByID(ctx context.Context, id int64) (*models.Loan, error) {
	loan := &models.Loan{}
	query := `
		SELECT id, application_id, borrower_name, borrower_email,
		       remaining_balance, interest_rate, created_at, updated_at
		FROM loans
		WHERE id = $1`
	err := r.db.GetContext(ctx, loan, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load loan %d: %w", id, err)
	}
	return loan, nil
}

func setLoanBalanceTx(ctx context.Context, tx *sqlx.Tx, loanID int64, balance decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE loans SET remaining_balance = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2`, balance, loanID)
	if err != nil {
		return fmt.Errorf("failed to update loan %d balance: %w", loanID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("loan %d: %w", loanID, models.ErrNotFound)
	}
	return nil
}

// LatestContractByLoan retrieves the most recently signed contract for a loan
func (r *Repository) LatestContractByLoan(ctx context.Context, loanID int64) (*models.Contract, error) {
	contract := &models.Contract{}
	query := `
		SELECT id, loan_id, payment_frequency, payment_amount, failed_payment_fee, signed_at, created_at
		FROM contracts
		WHERE loan_id = $1
		ORDER BY signed_at DESC
		LIMIT 1`
	err := r.db.GetContext(ctx, contract, query, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract for loan %d: %w", loanID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract for loan %d: %w", loanID, err)
	}
	return contract, nil
}

// CreateStaff creates a new back-office user
func (r *Repository) CreateStaff(ctx context.Context, staff *models.Staff) error {
	query := `
		INSERT INTO staff (email, name, password_hash, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, staff.Email, staff.Name, staff.PasswordHash).
		Scan(&staff.ID, &staff.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create staff user: %w", err)
	}
	return nil
}

// StaffByEmail retrieves a back-office user by email
func (r *Repository) StaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	staff := &models.Staff{}
	query := `
		SELECT id, email, name, password_hash, created_at
		FROM staff
		WHERE email = $1`
	err := r.db.GetContext(ctx, staff, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %s: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff user: %w", err)
	}
	return staff, nil
}
