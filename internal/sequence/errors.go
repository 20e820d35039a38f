package sequence

import "errors"

// Domain-specific errors for sequence allocation.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCapacityExceeded is returned when a node allocation would exceed
	// the configured per-gateway node limit. The underlying counter has
	// still incremented; the caller must not persist the node.
	ErrCapacityExceeded = errors.New("sequence: node capacity exceeded for gateway")
)
