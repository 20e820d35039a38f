package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (256KB).
// Device-bound config and control payloads are small; anything larger
// indicates a bug upstream rather than a legitimate message.
const maxPayloadSize = 256 << 10

// Publish sends a message to the specified MQTT topic.
//
// The call returns once the client library has accepted the message for
// delivery (or the publish timeout elapses). For QoS 1 this means the
// broker acknowledged receipt - it says nothing about whether a field
// device behind a LoRa link ever saw it.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "iot/gateway/GW-4/node/ND-1/control")
//   - payload: The message payload (JSON, max 256KB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	// Validate inputs
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Publish with timeout
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// DefaultQoS returns the configured default QoS level for this client.
func (c *Client) DefaultQoS() byte {
	return byte(c.cfg.QoS)
}
