package errors

import "errors"

var (
	ErrSessionClosed = errors.New("live session is closed")

	// ErrIdentityChanged ends a session whose viewer signed out or switched
	// to another account.
	ErrIdentityChanged = errors.New("viewer identity changed")
)
