package protocol

import "strings"

// Device identifier prefixes used by field firmware.
//
// These are operational convention only - classification never depends on
// them. They exist so handlers can sanity-check that a payload's deviceId
// plausibly belongs to the class of device the topic claims.
const (
	DevicePrefix  = "device"
	GatewayPrefix = "GW"
	NodePrefix    = "node"
)

// IsGatewayDeviceID reports whether an identifier looks like a gateway's
// device id ("GW..." or "device...").
func IsGatewayDeviceID(id string) bool {
	return strings.HasPrefix(id, GatewayPrefix) || strings.HasPrefix(id, DevicePrefix)
}

// IsNodeDeviceID reports whether an identifier looks like a node's
// device id ("node...").
func IsNodeDeviceID(id string) bool {
	return strings.HasPrefix(id, NodePrefix)
}
