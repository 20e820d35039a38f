package downlink

import "errors"

// Domain-specific errors for downlink publishing.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrPublishFailed is returned when the broker client rejected or
	// failed to queue a device-bound message.
	ErrPublishFailed = errors.New("downlink: publish failed")
)
