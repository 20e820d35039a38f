// Package protocol defines the device-facing MQTT wire protocol.
//
// It is the single place that knows topic shapes and payload schemas:
//
//   - Classify turns an inbound topic into a typed Intent by structure
//     alone (segment count and trailing segments), never by inspecting
//     device naming conventions.
//   - Decode* functions turn raw payloads into closed message variants;
//     malformed input yields ErrMalformedPayload, unknown type tags and
//     topics map to unrecognized variants rather than errors.
//   - Topic builders construct the cloud→device addresses for config and
//     control publishes.
//
// Everything here is pure - no I/O, no state - so the full topic grammar
// can be exhaustively unit-tested.
package protocol
