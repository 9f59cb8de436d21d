package errors

import "errors"

var (
	ErrNotFound = errors.New("conversation not found")

	ErrInvalidID = errors.New("invalid conversation ID format")

	// ErrDuplicate is returned when a conversation for the same client, owner
	// and property already exists.
	ErrDuplicate = errors.New("conversation already exists")
)
