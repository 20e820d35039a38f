package protocol

import "errors"

// Domain-specific errors for protocol decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedPayload is returned when a device payload fails to parse
	// or is missing a required field. The router logs and drops these;
	// device-side misbehavior must not destabilize the backend.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)
