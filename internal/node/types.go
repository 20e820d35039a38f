package node

import (
	"fmt"
	"strings"
	"time"
)

// Status represents a node's connectivity state.
type Status string

// Connectivity states.
const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// NodeIDPrefix is the prefix of every allocated nodeId ("ND-<n>").
const NodeIDPrefix = "ND-"

// Node represents a single controllable lighting unit reachable only
// through its owning gateway's radio link.
//
// NodeID is scoped per gateway (ND-1 exists under many gateways);
// MACAddress is unique fleet-wide.
type Node struct {
	// NodeID is the per-gateway sequence identity, e.g. "ND-3".
	NodeID string `json:"nodeId"`

	// GatewayID references the owning gateway, which must exist at
	// creation time.
	GatewayID int64 `json:"gatewayId"`

	// MACAddress is the device-assigned hardware address, stored
	// normalized (uppercase).
	MACAddress string `json:"macAddress"`

	// Name is a human-readable label (e.g., "Lamp post 17").
	Name string `json:"name"`

	// Status is the current connectivity state.
	Status Status `json:"status"`

	// LastSeen is when the node last registered or acked. Nil until
	// first contact.
	LastSeen *time.Time `json:"lastSeen,omitempty"`

	// Schedule is the lighting schedule pushed to the node.
	Schedule Schedule `json:"schedule"`

	// RSSI is the last reported signal strength in dBm. Nil until the
	// node first reports.
	RSSI *float64 `json:"rssi,omitempty"`

	// SNR is the last reported signal-to-noise ratio in dB.
	SNR *float64 `json:"snr,omitempty"`

	// LastConfigAck is when the node last acknowledged a config push.
	LastConfigAck *time.Time `json:"lastConfigAck,omitempty"`

	// ConfigVersion is the schedule config revision the node last acked.
	ConfigVersion int `json:"configVersion"`

	// Fault is set when the node reports a hardware fault.
	Fault bool `json:"fault"`

	// FirmwareVersion as last reported.
	FirmwareVersion string `json:"firmwareVersion,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Schedule is a node's daily lighting schedule.
type Schedule struct {
	// OnHour is the hour (0-23) lights switch on.
	OnHour int `json:"onHour"`

	// OffHour is the hour (0-23) lights switch off.
	OffHour int `json:"offHour"`

	// PowerLimit caps output power as a percentage (0-100).
	PowerLimit int `json:"powerLimit"`
}

// FormatNodeID builds the canonical nodeId for a sequence value.
func FormatNodeID(seq int64) string {
	return fmt.Sprintf("%s%d", NodeIDPrefix, seq)
}

// NormalizeMAC canonicalizes a MAC address for storage and lookup.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

// Validate checks that a node has the fields required for registration.
func (n *Node) Validate() error {
	if NormalizeMAC(n.MACAddress) == "" {
		return ErrInvalidNode
	}
	if n.GatewayID == 0 {
		return ErrInvalidNode
	}
	if !strings.HasPrefix(n.NodeID, NodeIDPrefix) {
		return ErrInvalidNode
	}
	return nil
}
