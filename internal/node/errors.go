package node

import "errors"

// Domain-specific errors for node operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNodeNotFound is returned when a node lookup finds no match.
	ErrNodeNotFound = errors.New("node: not found")

	// ErrNodeExists is returned when registration would duplicate a
	// natural key (macAddress, or nodeId within a gateway).
	ErrNodeExists = errors.New("node: already exists")

	// ErrInvalidNode is returned when a node fails validation.
	ErrInvalidNode = errors.New("node: invalid node data")
)
