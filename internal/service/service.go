package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avelar-fin/loan-service/internal/config"
	"github.com/avelar-fin/loan-service/internal/models"
	"github.com/avelar-fin/loan-service/internal/schedule"
)

// Store is the ledger persistence surface the service depends on.
type Store interface {
	LoanByID(ctx context.Context, id int64) (*models.Loan, error)
	InstallmentByID(ctx context.Context, id int64) (*models.Installment, error)
	InstallmentsByLoan(ctx context.Context, loanID int64) ([]models.Installment, error)
	LatestContractByLoan(ctx context.Context, loanID int64) (*models.Contract, error)
	CreateInstallments(ctx context.Context, installments []models.Installment) error
	SettleInstallment(ctx context.Context, installmentID, loanID int64, newStatus models.InstallmentStatus, externalTransactionID *string, newBalance decimal.Decimal) (bool, error)
	ApplyFailure(ctx context.Context, loanID int64, failed models.Installment, diff schedule.Diff, newBalance decimal.Decimal, outbox []models.OutboxEntry) error
	EnqueueOutbox(ctx context.Context, entries []models.OutboxEntry) error
	CreateStaff(ctx context.Context, staff *models.Staff) error
	StaffByEmail(ctx context.Context, email string) (*models.Staff, error)
}

// RateSource supplies a fallback annual percentage rate for loans whose
// contract carries none, e.g. imported legacy accounts.
type RateSource interface {
	BaseRate(ctx context.Context) (decimal.Decimal, error)
}

// Service handles ledger business logic
type Service struct {
	store  Store
	rates  RateSource
	log    *logrus.Logger
	config *config.Config

	defaultFailedFee decimal.Decimal
}

// NewService initializes a new service. rates may be nil when no fallback
// rate source is configured.
func NewService(store Store, rates RateSource, log *logrus.Logger, cfg *config.Config) (*Service, error) {
	fee, err := decimal.NewFromString(cfg.DefaultFailedFee)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:            store,
		rates:            rates,
		log:              log,
		config:           cfg,
		defaultFailedFee: fee,
	}, nil
}

// annualRate resolves the APR used for recalculation: the loan's own rate,
// or the external base-rate source when the loan has none on file.
func (s *Service) annualRate(ctx context.Context, loan *models.Loan) decimal.Decimal {
	if loan.InterestRate.IsPositive() || s.rates == nil {
		return loan.InterestRate
	}
	rate, err := s.rates.BaseRate(ctx)
	if err != nil {
		s.log.Warnf("Base rate lookup failed for loan %d, using 0%%: %v", loan.ID, err)
		return decimal.Zero
	}
	s.log.Infof("Loan %d has no interest rate on file, using base rate %s%%", loan.ID, rate)
	return rate
}
