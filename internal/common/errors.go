// Package common defines shared sentinel errors used across the service
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors (missing/malformed required fields). Surfaced as
	// 400 and never retried.
	ErrorValidation = errors.New("validation error")

	// Structural conflicts (duplicate chunk with differing content, etc.).
	ErrorConflict = errors.New("conflict")

	// Webhook signature mismatch or missing signature.
	ErrorUnauthorized = errors.New("unauthorized")

	// Generic internal flow control.
	ErrorInternal = errors.New("internal error")
)
