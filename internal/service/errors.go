package service

import "errors"

// Sentinel errors the controllers map onto HTTP statuses.
var (
	// ErrInvalidInput covers malformed phone numbers, bad operators and
	// missing references. 400.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is an unknown reference or plan for this user. 404.
	ErrNotFound = errors.New("not found")

	// ErrGatewayMisconfigured is a missing or rejected gateway secret.
	// Operator-actionable; surfaces as 500 with no detail leaked.
	ErrGatewayMisconfigured = errors.New("payment gateway misconfigured")

	// ErrGatewayUnavailable is a timeout or 5xx from the gateway. 503.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrAmountMismatch means the confirmed amount does not match the
	// recorded one; the record is parked terminally. 400.
	ErrAmountMismatch = errors.New("payment amount mismatch")

	// ErrInvalidSignature is a webhook whose signature failed. 401.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is a webhook body that could not be parsed. 400.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// errAlreadyCompleted is internal: the CAS found the record already
	// completed, which callers treat as idempotent success.
	errAlreadyCompleted = errors.New("payment already completed")
)
