package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/avelar-fin/loan-service/internal/config"
	"github.com/avelar-fin/loan-service/internal/handler"
	"github.com/avelar-fin/loan-service/internal/integrations/processor"
	"github.com/avelar-fin/loan-service/internal/integrations/rates"
	"github.com/avelar-fin/loan-service/internal/middleware"
	"github.com/avelar-fin/loan-service/internal/outbox"
	"github.com/avelar-fin/loan-service/internal/repository"
	"github.com/avelar-fin/loan-service/internal/service"
	"github.com/avelar-fin/loan-service/internal/utils/email"
	"github.com/avelar-fin/loan-service/migrations"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sqlx.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	if err := runMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	ratesClient := rates.NewClient(cfg, logger)
	svc, err := service.NewService(repo, ratesClient, logger, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize service: %v", err)
	}
	h := handler.NewHandler(svc)
	processorClient := processor.NewClient(cfg, logger)
	mailer := email.NewSender(cfg, logger)
	dispatcher := outbox.NewDispatcher(repo, processorClient, mailer, logger, cfg.OutboxMaxAttempts)

	// Background jobs: outbox drain and borrower payment reminders
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", dispatcher.Run); err != nil {
		logger.Fatalf("Failed to schedule outbox dispatcher: %v", err)
	}
	if _, err := c.AddFunc("0 9 * * *", func() { sendReminders(repo, mailer, logger) }); err != nil {
		logger.Fatalf("Failed to schedule payment reminders: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/webhooks/payments", h.PaymentWebhook).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/loans/{id:[0-9]+}/disburse", h.Disburse).Methods("POST")
	authRouter.HandleFunc("/loans/{id:[0-9]+}/schedule", h.GetSchedule).Methods("GET")
	authRouter.HandleFunc("/loans/{id:[0-9]+}/installments/{installmentID:[0-9]+}/transition", h.TransitionInstallment).Methods("POST")
	// Base rate endpoint
	r.HandleFunc("/base-rate", func(w http.ResponseWriter, r *http.Request) {
		rate, err := ratesClient.BaseRate(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get base rate: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"base_rate": %s}`, rate)
	}).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

func runMigrations(db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// sendReminders emails borrowers whose payments are due within three days
// or already overdue. Best effort: a failed send is logged and retried on
// the next daily run.
func sendReminders(repo *repository.Repository, mailer *email.Sender, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC().Truncate(24 * time.Hour)

	upcoming, err := repo.InstallmentsDueWithin(ctx, now, now.AddDate(0, 0, 3))
	if err != nil {
		logger.Errorf("Failed to load upcoming installments: %v", err)
	}
	for _, due := range upcoming {
		if err := mailer.SendPaymentReminder(due.BorrowerEmail, due.BorrowerName, due.PaymentDate, due.Amount.StringFixed(2), false); err != nil {
			logger.Errorf("Failed to send reminder for installment %d: %v", due.ID, err)
		}
	}

	overdue, err := repo.InstallmentsDueWithin(ctx, now.AddDate(0, 0, -30), now)
	if err != nil {
		logger.Errorf("Failed to load overdue installments: %v", err)
	}
	for _, due := range overdue {
		if err := mailer.SendPaymentReminder(due.BorrowerEmail, due.BorrowerName, due.PaymentDate, due.Amount.StringFixed(2), true); err != nil {
			logger.Errorf("Failed to send overdue notice for installment %d: %v", due.ID, err)
		}
	}
}
