package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking
// infrastructure details.
var (
	// ErrBadRequest covers missing or malformed input. No unit of work is
	// opened for requests that fail with it.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict covers uniqueness violations and already-verified accounts.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means no account matched.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means the credentials did not match.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidOTP covers wrong, expired and already-used codes alike, so the
	// response never reveals which codes exist.
	ErrInvalidOTP = errors.New("invalid or expired OTP")
	// ErrStoreUnavailable covers pool exhaustion and connection failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
