package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/avelar-fin/loan-service/internal/models"
)

func insertOutboxTx(ctx context.Context, tx *sqlx.Tx, entries []models.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outbox (id, loan_id, kind, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outbox insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.LoanID, e.Kind, []byte(e.Payload), e.Status); err != nil {
			return fmt.Errorf("failed to enqueue outbox entry %s: %w", e.Kind, err)
		}
	}
	return nil
}

// EnqueueOutbox records side-effect entries outside a ledger transaction,
// e.g. the resync request after a disbursement.
func (r *Repository) EnqueueOutbox(ctx context.Context, entries []models.OutboxEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertOutboxTx(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox entries: %w", err)
	}
	return nil
}

// PendingOutbox lists undelivered entries, oldest first
func (r *Repository) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	query := `
		SELECT id, loan_id, kind, payload, status, attempts, created_at, sent_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load pending outbox entries: %w", err)
	}
	return entries, nil
}

// MarkOutboxSent records a successful delivery
func (r *Repository) MarkOutboxSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'sent', sent_at = CURRENT_TIMESTAMP
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %s sent: %w", id, err)
	}
	return nil
}

// RecordOutboxFailure bumps the attempt counter and gives up once the entry
// has exhausted maxAttempts deliveries.
func (r *Repository) RecordOutboxFailure(ctx context.Context, id string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $1 THEN 'failed' ELSE 'pending' END
		WHERE id = $2`, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure for %s: %w", id, err)
	}
	return nil
}
