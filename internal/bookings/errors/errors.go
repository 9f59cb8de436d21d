package errors

import "errors"

var (
	ErrNotFound = errors.New("booking request not found")

	ErrInvalidID = errors.New("invalid booking request ID format")

	// ErrStatusChanged means the request left the expected status between read
	// and write.
	ErrStatusChanged = errors.New("booking request status changed concurrently")
)
