package command

import "errors"

// Domain-specific errors for command ledger operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCommandNotFound is returned when no ledger entry matches a
	// lookup or ack correlation.
	ErrCommandNotFound = errors.New("command: not found")

	// ErrInvalidCommand is returned when a command fails validation.
	ErrInvalidCommand = errors.New("command: invalid command data")
)
