package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.paystack.co"

	// Mobile-money charges can sit on the operator side for a while.
	requestTimeout = 30 * time.Second

	// Error bodies are truncated before they reach logs or wrapped errors.
	maxErrorBody = 512
)

// ErrAuth means the gateway rejected the secret key. This is an operator
// problem, never a user-facing payment failure.
var ErrAuth = errors.New("paystack: secret key rejected")

// APIError is a non-2xx gateway reply other than 401.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: api error (status %d): %s", e.StatusCode, e.Message)
}

type Client struct {
	secretKey   string
	CallbackURL string

	BaseURL    string
	HTTPClient *http.Client
}

// New builds a gateway client. The secret key comes from configuration and
// must be present; it is never logged.
func New(secretKey, callbackURL string) (*Client, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("paystack: secret key is required")
	}

	return &Client{
		secretKey:   secretKey,
		CallbackURL: callbackURL,
		BaseURL:     defaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

// Charge starts a mobile-money charge. The reference in the request is also
// the gateway-side idempotency key, so retries never double-charge.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.Currency == "" {
		req.Currency = "GHS"
	}

	var envelope chargeEnvelope
	if err := c.do(ctx, http.MethodPost, "/charge", req, &envelope); err != nil {
		return nil, err
	}

	return &ChargeResult{
		State:       ParseChargeState(envelope.Data.Status),
		RawStatus:   envelope.Data.Status,
		Reference:   envelope.Data.Reference,
		Message:     envelope.Message,
		DisplayText: envelope.Data.DisplayText,
	}, nil
}

// SubmitOTP forwards the one-time code the operator sent to the customer.
func (c *Client) SubmitOTP(ctx context.Context, reference, otp string) (*OTPResult, error) {
	payload := map[string]string{
		"reference": reference,
		"otp":       otp,
	}

	var envelope chargeEnvelope
	if err := c.do(ctx, http.MethodPost, "/charge/submit_otp", payload, &envelope); err != nil {
		return nil, err
	}

	return &OTPResult{
		RawStatus: envelope.Data.Status,
		Message:   envelope.Message,
	}, nil
}

// Verify fetches the authoritative state of a transaction by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var envelope verifyEnvelope
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &envelope); err != nil {
		return nil, err
	}

	return &VerifyResult{
		State:           ParseVerifyState(envelope.Data.Status),
		RawStatus:       envelope.Data.Status,
		AmountMinor:     envelope.Data.Amount,
		GatewayResponse: envelope.Data.GatewayResponse,
		Message:         envelope.Message,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paystack: could not encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("paystack: could not build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Transport-level failure, distinct from gateway-side errors.
		return fmt.Errorf("paystack: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paystack: could not read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuth
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(raw), maxErrorBody),
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paystack: could not decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
