package uplink

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumigrid/lumigrid-core/internal/command"
	"github.com/lumigrid/lumigrid-core/internal/downlink"
	"github.com/lumigrid/lumigrid-core/internal/gateway"
	"github.com/lumigrid/lumigrid-core/internal/infrastructure/mqtt"
	"github.com/lumigrid/lumigrid-core/internal/node"
	"github.com/lumigrid/lumigrid-core/internal/protocol"
)

// Subscriber is the broker subscription surface the router needs.
// Implemented by the infrastructure mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Downlink is the outbound publishing surface the router needs for
// bootstrap and config pushes. Implemented by downlink.Publisher.
type Downlink interface {
	PublishGatewayBootstrap(gatewayRef string, gw downlink.GatewayBootstrap) error
	PublishNodeConfig(gatewayRef string, n *node.Node) error
	FanOutConfig(gatewayRef string, nodes []node.Node, concurrency int) downlink.FanOutResult
}

// Telemetry records fleet history points. Implemented by influxdb.Client;
// nil when InfluxDB is disabled.
type Telemetry interface {
	WriteGatewayStatus(gatewayID string, uptimeSeconds int64, nodeCount int)
	WriteNodeSignal(gatewayID, nodeID string, rssi, snr float64)
}

// Logger interface for router logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Router subscribes to the device topic wildcard, classifies every inbound
// message, and dispatches it to the matching handler.
//
// Message handling is per-message independent and safely concurrent:
// handlers mutate state only through the directories' atomic
// update-by-key operations, never via in-process locks. Unrecognized
// topics and malformed payloads are logged and dropped - one misbehaving
// device must never stop the loop.
type Router struct {
	gateways  gateway.Repository
	events    gateway.EventLog
	nodes     node.Repository
	ledger    command.Ledger
	downlink  Downlink
	telemetry Telemetry
	logger    Logger

	qos               byte
	fanOutConcurrency int
}

// Config holds the router's collaborators and settings.
type Config struct {
	Gateways gateway.Repository
	Events   gateway.EventLog
	Nodes    node.Repository
	Ledger   command.Ledger
	Downlink Downlink

	// Telemetry is optional; nil disables history writes.
	Telemetry Telemetry

	Logger Logger

	// QoS for the wildcard subscription. Default 1.
	QoS byte

	// FanOutConcurrency caps simultaneous publishes during config
	// fan-out. Default 5.
	FanOutConcurrency int
}

// NewRouter creates a router. Call Start to begin receiving messages.
func NewRouter(cfg Config) *Router {
	qos := cfg.QoS
	if qos == 0 {
		qos = 1
	}
	concurrency := cfg.FanOutConcurrency
	if concurrency == 0 {
		concurrency = 5
	}

	return &Router{
		gateways:          cfg.Gateways,
		events:            cfg.Events,
		nodes:             cfg.Nodes,
		ledger:            cfg.Ledger,
		downlink:          cfg.Downlink,
		telemetry:         cfg.Telemetry,
		logger:            cfg.Logger,
		qos:               qos,
		fanOutConcurrency: concurrency,
	}
}

// Start subscribes to the device topic wildcard.
//
// Returns:
//   - error: If the subscription fails
func (r *Router) Start(sub Subscriber) error {
	if err := sub.Subscribe(protocol.WildcardAll, r.qos, r.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", protocol.WildcardAll, err)
	}
	r.logger.Info("uplink router started", "subscription", protocol.WildcardAll, "qos", r.qos)
	return nil
}

// HandleMessage classifies and dispatches one inbound message.
//
// Returned errors are logged by the broker client wrapper; they never
// stop message processing. Exported so tests can drive the router without
// a broker.
func (r *Router) HandleMessage(topic string, payload []byte) error {
	ctx := context.Background()

	intent := protocol.Classify(topic)
	switch intent {
	case protocol.IntentGatewayRegister:
		return r.handleGatewayRegister(ctx, topic, payload)
	case protocol.IntentGatewayStatus:
		return r.handleGatewayStatus(ctx, topic, payload)
	case protocol.IntentNodeRegister:
		return r.handleNodeRegister(ctx, topic, payload)
	case protocol.IntentNodeConfigAck:
		return r.handleNodeConfigAck(ctx, topic, payload)
	case protocol.IntentNodeControlAck:
		return r.handleNodeControlAck(ctx, topic, payload)
	default:
		// Ignored is terminal: unknown and future topics are tolerated.
		r.logger.Debug("ignoring unrecognized topic", "topic", topic)
		return nil
	}
}

// resolveGatewayRef finds the gateway a topic segment or deviceId refers
// to. Accepts "GW-<n>" (numeric identity) and "device-<mac>" / bare MAC
// forms.
func (r *Router) resolveGatewayRef(ctx context.Context, ref string) (*gateway.Gateway, error) {
	if rest, ok := strings.CutPrefix(ref, "GW-"); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err == nil {
			return r.gateways.GetByID(ctx, id)
		}
	}
	mac := strings.TrimPrefix(ref, "device-")
	return r.gateways.GetByMAC(ctx, mac)
}

// nodeMAC extracts the MAC from a node deviceId ("node-<mac>" or bare MAC).
func nodeMAC(deviceID string) string {
	return strings.TrimPrefix(deviceID, "node-")
}
