package service

import "errors"

var (
	// ErrInvalidCredentials covers unknown devices, wrong passwords and
	// inactive devices. Callers cannot tell which.
	ErrInvalidCredentials = errors.New("device id or password is incorrect")
	// ErrDuplicateDevice is returned when the device id is taken.
	ErrDuplicateDevice = errors.New("device already exists")
	// ErrNotFound is returned for unknown devices, sessions and photos.
	ErrNotFound = errors.New("not found")
	// ErrMalformedToken is returned for tokens that fail to decode or
	// whose signature does not verify.
	ErrMalformedToken = errors.New("malformed token")
	// ErrTokenExpired is returned for well-formed tokens past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidInput is returned for empty or oversized arguments.
	ErrInvalidInput = errors.New("invalid input")
)
