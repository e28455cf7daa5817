package services

import "errors"

var (
	// ErrValidation indicates missing or malformed input; its message is safe
	// to surface verbatim to the caller.
	ErrValidation = errors.New("validation error")

	// ErrInvalidOrExpiredCode deliberately conflates a wrong code, an expired
	// code and an already-used code so callers cannot tell which one occurred.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrNotFound indicates an unknown report or profile.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration indicates the persistence backend is unreachable or
	// unconfigured.
	ErrConfiguration = errors.New("backend not configured")

	// ErrUpload wraps any storage-layer or validation failure during a proof
	// upload.
	ErrUpload = errors.New("upload failed")

	// ErrTooManyRequests indicates the resend cooldown or the hourly issuance
	// cap is active for a phone number.
	ErrTooManyRequests = errors.New("too many OTP requests")
)
