package errors

import "errors"

var (
	ErrVersionConflict = errors.New("calendar was modified concurrently")

	ErrPropertyNotFound = errors.New("property not found")
)
