package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avelar-fin/loan-service/internal/config"
)

// Client talks to the external payment processor. The processor owns
// collection timing; this service only tells it when the ledger changed.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Logger
}

// NewClient initializes a new processor client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL: cfg.ProcessorURL,
		apiKey:  cfg.ProcessorAPIKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Resync asks the processor to realign its pending transactions for a loan
// with the current ledger schedule. The engine never waits on the outcome
// beyond the HTTP round trip; retries are the outbox dispatcher's job.
func (c *Client) Resync(ctx context.Context, loanID int64, reason string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"loan_id": loanID,
		"reason":  reason,
	})
	if err != nil {
		return fmt.Errorf("failed to encode resync request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/loans/%d/resync", c.baseURL, loanID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create resync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	// The processor deduplicates on this key, so a redelivered outbox entry
	// cannot trigger a second resync sweep.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("resync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("resync for loan %d returned %d: %s", loanID, resp.StatusCode, body)
	}

	c.log.Infof("Processor resync requested for loan %d (%s)", loanID, reason)
	return nil
}
