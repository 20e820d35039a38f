package gateway

import (
	"strings"
	"time"
)

// Status represents a gateway's connectivity state.
type Status string

// Connectivity states. A gateway transitions OFFLINE→ONLINE only on a
// successful registration or a status uplink whose reported gatewayId
// matches the stored one.
const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Gateway represents a LoRa-to-MQTT bridge device managing a set of
// lighting nodes.
//
// GatewayID is sequence-allocated and globally unique; MACAddress is
// device-assigned and also globally unique. Both are natural keys and both
// are checked for conflicts before registration.
type Gateway struct {
	// GatewayID is the sequence-allocated numeric identity.
	GatewayID int64 `json:"gatewayId"`

	// MACAddress is the device-assigned hardware address, stored
	// normalized (uppercase).
	MACAddress string `json:"macAddress"`

	// Name is a human-readable label (e.g., "North Car Park").
	Name string `json:"name"`

	// Status is the current connectivity state.
	Status Status `json:"status"`

	// LastSeen is when the gateway last registered or reported status.
	// Nil until first contact.
	LastSeen *time.Time `json:"lastSeen,omitempty"`

	// FirmwareVersion as reported in the last registration.
	FirmwareVersion string `json:"firmwareVersion,omitempty"`

	// Radio holds the LoRa parameters pushed in the bootstrap config.
	Radio RadioConfig `json:"radio"`

	// Network holds the cellular/IP parameters.
	Network NetworkConfig `json:"network"`

	// Location is the physical installation site.
	Location Location `json:"location"`

	// AssignedNodes lists the nodeIds registered under this gateway, in
	// registration order. Weak references: node records are independently
	// addressable and are not deleted with the gateway.
	AssignedNodes []string `json:"assignedNodes"`

	// ConfigVersion is the gateway config revision string.
	ConfigVersion string `json:"configVersion"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RadioConfig holds a gateway's LoRa radio parameters.
type RadioConfig struct {
	// Frequency in Hz (e.g., 433000000).
	Frequency int64 `json:"frequency"`

	// Bandwidth in Hz (e.g., 125000).
	Bandwidth int `json:"bandwidth"`

	// SpreadingFactor 7-12. Higher reaches further, slower.
	SpreadingFactor int `json:"spreadingFactor"`
}

// NetworkConfig holds a gateway's uplink network parameters.
type NetworkConfig struct {
	SIMICCID  string `json:"simIccid,omitempty"`
	APN       string `json:"apn,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Location is a gateway's physical installation site.
type Location struct {
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	Address string  `json:"address,omitempty"`
}

// NormalizeMAC canonicalizes a MAC address for storage and lookup:
// trimmed and uppercased. Devices report MACs with inconsistent casing.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

// Validate checks that a gateway has the fields required for registration.
func (g *Gateway) Validate() error {
	if NormalizeMAC(g.MACAddress) == "" {
		return ErrInvalidGateway
	}
	return nil
}
