// Package payment talks to the Yoco online payments API.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/easel-entry/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// ErrUpstream wraps every failure of a provider call: transport errors,
// timeouts, non-2xx responses and unreadable bodies.
var ErrUpstream = errors.New("payment provider unavailable")

// CheckoutRequest is the input of CreateCheckout.
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	FailureURL  string
	Metadata    map[string]string
}

// Checkout is the provider's checkout descriptor.
type Checkout struct {
	ID          string            `json:"id"`
	RedirectURL string            `json:"redirectUrl"`
	Status      string            `json:"status"`
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

type checkoutBody struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"successUrl,omitempty"`
	CancelURL  string            `json:"cancelUrl,omitempty"`
	FailureURL string            `json:"failureUrl,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Client creates checkouts with the provider's secret key.
type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *slog.Logger
}

// NewClient returns a Client.  A non-positive timeout uses the default of
// ten seconds.
func NewClient(baseURL, secretKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// CreateCheckout calls POST /api/checkouts.  Every failure is returned
// wrapped in ErrUpstream.
func (c *Client) CreateCheckout(ctx context.Context, in CheckoutRequest) (Checkout, error) {
	payload, err := json.Marshal(checkoutBody{
		Amount:     in.AmountCents,
		Currency:   in.Currency,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		FailureURL: in.FailureURL,
		Metadata:   in.Metadata,
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("encode checkout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/checkouts", bytes.NewReader(payload))
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ProviderLatency(start)
	if err != nil {
		c.logger.ErrorContext(ctx, "checkout request failed", "error", err)
		return Checkout{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 300 {
		c.logger.ErrorContext(ctx, "checkout rejected by provider", "status", resp.StatusCode, "body", string(body))
		return Checkout{}, fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}

	var out Checkout
	if err := json.Unmarshal(body, &out); err != nil {
		return Checkout{}, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if out.ID == "" || out.RedirectURL == "" {
		return Checkout{}, fmt.Errorf("%w: response without id or redirectUrl", ErrUpstream)
	}
	return out, nil
}
