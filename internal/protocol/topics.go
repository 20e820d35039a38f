package protocol

import "fmt"

// WildcardAll matches every device-facing topic under the iot/gateway root.
// The router subscribes to this single wildcard and classifies per message.
const WildcardAll = "iot/gateway/#"

// GatewayConfigSetTopic builds the cloud→device topic carrying a gateway's
// bootstrap configuration.
func GatewayConfigSetTopic(gateway string) string {
	return fmt.Sprintf("iot/gateway/%s/config/set", gateway)
}

// NodeConfigSetTopic builds the cloud→device topic carrying a node's
// schedule configuration.
func NodeConfigSetTopic(gateway, node string) string {
	return fmt.Sprintf("iot/gateway/%s/node/%s/config/set", gateway, node)
}

// NodeControlTopic builds the cloud→device topic carrying a control command
// for a single node.
func NodeControlTopic(gateway, node string) string {
	return fmt.Sprintf("iot/gateway/%s/node/%s/control", gateway, node)
}
