package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OfflineLiteral is the bare (non-JSON) payload a gateway's LWT publishes
// on its own register topic when the broker declares it dead.
const OfflineLiteral = "OFFLINE"

// Message type tags carried in the "type" field of device payloads.
// Unknown tags decode to an unrecognized variant rather than an error,
// for the same reason unknown topics classify as IntentUnrecognized.
const (
	TypeRegister   = "register"
	TypeStatus     = "status"
	TypeControlAck = "control_ack"
)

// GatewayRegister is the payload of iot/gateway/{gw}/register.
type GatewayRegister struct {
	Type            string `json:"type"`
	DeviceID        string `json:"deviceId"`
	FirmwareVersion string `json:"firmwareVersion"`
}

// GatewayStatus is the payload of iot/gateway/{gw}/status.
type GatewayStatus struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId"`
	GatewayID int64  `json:"gatewayId"`
	UptimeS   int64  `json:"uptime_s"`
	NodeCount int    `json:"nodeCount"`
}

// NodeRegister is the payload of iot/gateway/{gw}/node/{node}/register.
type NodeRegister struct {
	Type      string  `json:"type"`
	DeviceID  string  `json:"deviceId"`
	GatewayID int64   `json:"gatewayId"`
	NodeID    string  `json:"nodeId"`
	RSSI      float64 `json:"rssi"`
	SNR       float64 `json:"snr"`
	Timestamp int64   `json:"timestamp"`
}

// NodeConfigAck is the payload of iot/gateway/{gw}/node/{node}/config/ack.
// Nodes keep this one tiny - no type tag, just the two fields that matter
// over a constrained radio link.
type NodeConfigAck struct {
	NodeID string `json:"nodeId"`
	CfgVer int    `json:"cfgVer"`
}

// NodeControlAck is the payload of iot/gateway/{gw}/node/{node}/control/ack.
type NodeControlAck struct {
	Type      string `json:"type"`
	GatewayID int64  `json:"gatewayId"`
	DeviceID  string `json:"deviceId"`
	NodeID    string `json:"nodeId"`
	CmdID     int    `json:"cmdId"`
	Success   bool   `json:"success"`
	TS        int64  `json:"ts"`
}

// IsOfflineLiteral reports whether a register-topic payload is the bare
// OFFLINE marker rather than a JSON registration.
func IsOfflineLiteral(payload []byte) bool {
	return string(bytes.TrimSpace(payload)) == OfflineLiteral
}

// DecodeGatewayRegister parses a gateway registration payload.
//
// Callers must check IsOfflineLiteral first; the OFFLINE marker is not
// JSON and will fail here.
func DecodeGatewayRegister(payload []byte) (GatewayRegister, error) {
	var msg GatewayRegister
	if err := json.Unmarshal(payload, &msg); err != nil {
		return GatewayRegister{}, fmt.Errorf("%w: gateway register: %w", ErrMalformedPayload, err)
	}
	if msg.DeviceID == "" {
		return GatewayRegister{}, fmt.Errorf("%w: gateway register: missing deviceId", ErrMalformedPayload)
	}
	return msg, nil
}

// DecodeGatewayStatus parses a gateway status payload.
func DecodeGatewayStatus(payload []byte) (GatewayStatus, error) {
	var msg GatewayStatus
	if err := json.Unmarshal(payload, &msg); err != nil {
		return GatewayStatus{}, fmt.Errorf("%w: gateway status: %w", ErrMalformedPayload, err)
	}
	if msg.DeviceID == "" {
		return GatewayStatus{}, fmt.Errorf("%w: gateway status: missing deviceId", ErrMalformedPayload)
	}
	return msg, nil
}

// DecodeNodeRegister parses a node registration payload.
func DecodeNodeRegister(payload []byte) (NodeRegister, error) {
	var msg NodeRegister
	if err := json.Unmarshal(payload, &msg); err != nil {
		return NodeRegister{}, fmt.Errorf("%w: node register: %w", ErrMalformedPayload, err)
	}
	if msg.DeviceID == "" {
		return NodeRegister{}, fmt.Errorf("%w: node register: missing deviceId", ErrMalformedPayload)
	}
	return msg, nil
}

// DecodeNodeConfigAck parses a node config acknowledgment payload.
func DecodeNodeConfigAck(payload []byte) (NodeConfigAck, error) {
	var msg NodeConfigAck
	if err := json.Unmarshal(payload, &msg); err != nil {
		return NodeConfigAck{}, fmt.Errorf("%w: node config ack: %w", ErrMalformedPayload, err)
	}
	return msg, nil
}

// DecodeNodeControlAck parses a node control acknowledgment payload.
func DecodeNodeControlAck(payload []byte) (NodeControlAck, error) {
	var msg NodeControlAck
	if err := json.Unmarshal(payload, &msg); err != nil {
		return NodeControlAck{}, fmt.Errorf("%w: node control ack: %w", ErrMalformedPayload, err)
	}
	if msg.CmdID < 0 || msg.CmdID > 65535 {
		return NodeControlAck{}, fmt.Errorf("%w: node control ack: cmdId %d out of 16-bit range", ErrMalformedPayload, msg.CmdID)
	}
	return msg, nil
}
