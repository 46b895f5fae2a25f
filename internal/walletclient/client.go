// Package walletclient talks to the platform's wallet ledger service.
// The engine never stores balances itself; it only forwards debit and
// credit instructions.
package walletclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is an HTTP client for the wallet ledger.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a wallet client with a bounded request timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type instruction struct {
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// Debit withdraws amount from the user's available balance. The reference
// makes the instruction idempotent on the ledger side.
func (c *Client) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	return c.post(ctx, "/debit", instruction{
		UserID:    userID.String(),
		Amount:    amount.String(),
		Reference: reference,
	})
}

// Credit deposits amount into the user's available balance.
func (c *Client) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	return c.post(ctx, "/credit", instruction{
		UserID:    userID.String(),
		Amount:    amount.String(),
		Reference: reference,
	})
}

func (c *Client) post(ctx context.Context, path string, body instruction) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("wallet ledger returned %d for %s", resp.StatusCode, path)
	}
	return nil
}
