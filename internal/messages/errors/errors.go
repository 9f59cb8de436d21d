package errors

import "errors"

var (
	ErrNotFound = errors.New("message not found")

	// ErrDuplicateClientRef means a message with the same client reference was
	// already stored in the conversation.
	ErrDuplicateClientRef = errors.New("message with this client reference already exists")
)
