package service

import "errors"

// Service layer errors for better error handling
var (
	// Drawing errors
	ErrMalformedDrawing = errors.New("malformed drawing file")
	ErrInvalidParameter = errors.New("invalid parameter")

	// Session / commit errors
	ErrNotFound        = errors.New("resource not found")
	ErrAlreadyConsumed = errors.New("preview session already consumed")

	// Export errors
	ErrIndexOutOfRange = errors.New("view index out of range")
)
