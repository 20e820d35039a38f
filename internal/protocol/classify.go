package protocol

import "strings"

// Intent identifies what an inbound device topic is trying to do.
//
// Exactly one intent matches any given topic; anything outside the five
// documented shapes classifies as IntentUnrecognized. Unrecognized is not
// an error - field firmware ships new topics before the backend learns
// about them, and the router must tolerate that.
type Intent int

const (
	// IntentUnrecognized is any topic outside the documented shapes.
	IntentUnrecognized Intent = iota

	// IntentGatewayRegister is iot/gateway/{gw}/register.
	IntentGatewayRegister

	// IntentGatewayStatus is iot/gateway/{gw}/status.
	IntentGatewayStatus

	// IntentNodeRegister is iot/gateway/{gw}/node/{node}/register.
	IntentNodeRegister

	// IntentNodeConfigAck is iot/gateway/{gw}/node/{node}/config/ack.
	IntentNodeConfigAck

	// IntentNodeControlAck is iot/gateway/{gw}/node/{node}/control/ack.
	IntentNodeControlAck
)

// String returns a human-readable name for logging.
func (i Intent) String() string {
	switch i {
	case IntentGatewayRegister:
		return "gateway_register"
	case IntentGatewayStatus:
		return "gateway_status"
	case IntentNodeRegister:
		return "node_register"
	case IntentNodeConfigAck:
		return "node_config_ack"
	case IntentNodeControlAck:
		return "node_control_ack"
	default:
		return "unrecognized"
	}
}

// Topic segment counts for the documented shapes.
const (
	gatewayTopicSegments = 4 // iot/gateway/{gw}/register|status
	nodeShortSegments    = 6 // iot/gateway/{gw}/node/{node}/register
	nodeAckSegments      = 7 // iot/gateway/{gw}/node/{node}/config|control/ack
)

// Classify parses an MQTT topic into its Intent.
//
// Classification is purely structural: segment count plus the trailing one
// or two segments. It deliberately does not inspect the {gw} or {node}
// placeholder values - device naming conventions (GW-4, ND-2) are
// operational convention, not protocol, and must not affect routing.
//
// Classify is a pure function with no I/O.
func Classify(topic string) Intent {
	parts := strings.Split(topic, "/")

	if len(parts) < 2 || parts[0] != "iot" || parts[1] != "gateway" {
		return IntentUnrecognized
	}

	switch len(parts) {
	case gatewayTopicSegments:
		switch parts[3] {
		case "register":
			return IntentGatewayRegister
		case "status":
			return IntentGatewayStatus
		}

	case nodeShortSegments:
		if parts[3] == "node" && parts[5] == "register" {
			return IntentNodeRegister
		}

	case nodeAckSegments:
		if parts[3] != "node" || parts[6] != "ack" {
			return IntentUnrecognized
		}
		switch parts[5] {
		case "config":
			return IntentNodeConfigAck
		case "control":
			return IntentNodeControlAck
		}
	}

	return IntentUnrecognized
}

// Refs extracts the gateway and node placeholder segments from a topic.
//
// The gateway segment is parts[2] of any recognized shape; the node segment
// is parts[4] of the node-addressed shapes and empty otherwise. Callers
// should classify first - Refs on an unrecognized topic returns whatever
// happens to sit in those positions.
//
// Parameters:
//   - topic: The full topic string
//
// Returns:
//   - gateway: The {gw} segment, or "" if the topic is too short
//   - node: The {node} segment, or "" if not a node-addressed topic
func Refs(topic string) (gateway, node string) {
	parts := strings.Split(topic, "/")
	if len(parts) > 2 {
		gateway = parts[2]
	}
	if len(parts) > 4 && parts[3] == "node" {
		node = parts[4]
	}
	return gateway, node
}
