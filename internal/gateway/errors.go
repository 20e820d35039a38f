package gateway

import "errors"

// Domain-specific errors for gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrGatewayNotFound is returned when a gateway lookup finds no match.
	ErrGatewayNotFound = errors.New("gateway: not found")

	// ErrGatewayExists is returned when registration would duplicate a
	// natural key (gatewayId or macAddress).
	ErrGatewayExists = errors.New("gateway: already exists")

	// ErrInvalidGateway is returned when a gateway fails validation.
	ErrInvalidGateway = errors.New("gateway: invalid gateway data")
)
