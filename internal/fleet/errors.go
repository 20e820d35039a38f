package fleet

import "errors"

// Orchestration errors. Entity-level errors (not found, exists, capacity)
// surface from the underlying packages and are passed through wrapped.
var (
	// ErrWrongGateway indicates the addressed node exists but belongs to a
	// different gateway than the one named in the request.
	ErrWrongGateway = errors.New("fleet: node is not assigned to that gateway")

	// ErrInvalidInput indicates a request failed validation before any
	// state was touched.
	ErrInvalidInput = errors.New("fleet: invalid input")
)
