package downlink

import (
	"encoding/json"
	"fmt"

	"github.com/lumigrid/lumigrid-core/internal/infrastructure/config"
	"github.com/lumigrid/lumigrid-core/internal/node"
	"github.com/lumigrid/lumigrid-core/internal/protocol"
)

// Broker is the interface for publishing messages to the MQTT broker.
// This is typically implemented by the infrastructure mqtt.Client.
type Broker interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher builds and publishes all cloud→device messages: gateway
// bootstrap configs, node schedule configs, and node control commands.
//
// Publishing is fire-and-forget at the device level: success means the
// broker client queued the message, not that a device behind a LoRa link
// received it. Device receipt is tracked separately (config acks, command
// acks).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Publisher struct {
	broker    Broker
	qos       byte
	bootstrap config.BootstrapConfig
}

// NewPublisher creates a publisher.
//
// Parameters:
//   - broker: The shared broker connection
//   - qos: QoS level for device-bound publishes (typically 1)
//   - bootstrap: Values for gateway bootstrap config payloads
func NewPublisher(broker Broker, qos byte, bootstrap config.BootstrapConfig) *Publisher {
	return &Publisher{
		broker:    broker,
		qos:       qos,
		bootstrap: bootstrap,
	}
}

// GatewayConfigPayload is the bootstrap config pushed to a gateway
// immediately after it registers.
type GatewayConfigPayload struct {
	Type          string     `json:"type"`
	GatewayID     int64      `json:"gatewayId"`
	ConfigVersion string     `json:"configVersion"`
	MQTT          MQTTParams `json:"mqtt"`
	LoRa          LoRaParams `json:"lora"`
	APN           string     `json:"apn"`
	Nodes         []string   `json:"nodes"`
}

// MQTTParams tells the gateway where to find the broker.
type MQTTParams struct {
	Broker string `json:"broker"`
	Port   int    `json:"port"`
}

// LoRaParams carries the gateway's radio settings.
type LoRaParams struct {
	Frequency       int64 `json:"frequency"`
	Bandwidth       int   `json:"bandwidth"`
	SpreadingFactor int   `json:"spreadingFactor"`
}

// NodeConfigPayload is a node's schedule config.
type NodeConfigPayload struct {
	Type          string          `json:"type"`
	NodeID        string          `json:"nodeId"`
	GatewayID     int64           `json:"gatewayId"`
	Schedule      SchedulePayload `json:"schedule"`
	ConfigVersion int             `json:"configVersion"`
}

// SchedulePayload is the on/off schedule in the device wire format.
// Nodes schedule to the minute; the backend currently configures whole
// hours, so the minute fields ride along as zero.
type SchedulePayload struct {
	OnHour  int `json:"onHour"`
	OnMin   int `json:"onMin"`
	OffHour int `json:"offHour"`
	OffMin  int `json:"offMin"`
}

// ControlPayload is a control command for a single node.
type ControlPayload struct {
	Type      string `json:"type"`
	CmdID     int    `json:"cmdId"`
	GatewayID int64  `json:"gatewayId"`
	NodeID    string `json:"nodeId"`
	Action    string `json:"action"`
	Mode      string `json:"mode"`
}

// Outbound message type tags.
const (
	typeConfig  = "config"
	typeControl = "control"
)

// GatewayBootstrap holds what PublishGatewayBootstrap needs from the
// gateway record.
type GatewayBootstrap struct {
	GatewayID     int64
	ConfigVersion string
	Radio         LoRaParams
	APN           string
	Nodes         []string
}

// PublishGatewayBootstrap pushes the one-shot bootstrap config to a
// freshly registered gateway.
//
// Parameters:
//   - gatewayRef: The {gw} topic segment the gateway registered under
//   - gw: Bootstrap values from the gateway record
//
// Returns:
//   - error: ErrPublishFailed (wrapped) if the broker rejected the message
func (p *Publisher) PublishGatewayBootstrap(gatewayRef string, gw GatewayBootstrap) error {
	radio := gw.Radio
	if radio.Frequency == 0 {
		radio.Frequency = int64(p.bootstrap.LoRaFrequency)
	}
	apn := gw.APN
	if apn == "" {
		apn = p.bootstrap.APN
	}
	nodes := gw.Nodes
	if nodes == nil {
		nodes = []string{}
	}

	payload := GatewayConfigPayload{
		Type:          typeConfig,
		GatewayID:     gw.GatewayID,
		ConfigVersion: gw.ConfigVersion,
		MQTT: MQTTParams{
			Broker: p.bootstrap.MQTTBroker,
			Port:   p.bootstrap.MQTTPort,
		},
		LoRa:  radio,
		APN:   apn,
		Nodes: nodes,
	}

	return p.publishJSON(protocol.GatewayConfigSetTopic(gatewayRef), payload)
}

// PublishNodeConfig pushes a node's current schedule config.
//
// Parameters:
//   - gatewayRef: The {gw} topic segment for the owning gateway
//   - n: The node whose schedule to push
//
// Returns:
//   - error: ErrPublishFailed (wrapped) if the broker rejected the message
func (p *Publisher) PublishNodeConfig(gatewayRef string, n *node.Node) error {
	payload := NodeConfigPayload{
		Type:      typeConfig,
		NodeID:    n.NodeID,
		GatewayID: n.GatewayID,
		Schedule: SchedulePayload{
			OnHour:  n.Schedule.OnHour,
			OffHour: n.Schedule.OffHour,
		},
		ConfigVersion: n.ConfigVersion,
	}

	return p.publishJSON(protocol.NodeConfigSetTopic(gatewayRef, n.NodeID), payload)
}

// PublishControl pushes a control command to a node and returns the exact
// JSON that went over the wire, for the ledger's payload snapshot.
//
// Parameters:
//   - gatewayRef: The {gw} topic segment for the owning gateway
//   - cmd: The control payload (Type is set here)
//
// Returns:
//   - []byte: The published JSON, for the command ledger snapshot
//   - error: ErrPublishFailed (wrapped) if the broker rejected the message
func (p *Publisher) PublishControl(gatewayRef string, cmd ControlPayload) ([]byte, error) {
	cmd.Type = typeControl

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshaling control payload: %w", err)
	}

	topic := protocol.NodeControlTopic(gatewayRef, cmd.NodeID)
	if err := p.broker.Publish(topic, data, p.qos, false); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return data, nil
}

// publishJSON serializes and publishes a payload.
func (p *Publisher) publishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}
	if err := p.broker.Publish(topic, data, p.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
