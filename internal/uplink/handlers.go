package uplink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lumigrid/lumigrid-core/internal/command"
	"github.com/lumigrid/lumigrid-core/internal/downlink"
	"github.com/lumigrid/lumigrid-core/internal/gateway"
	"github.com/lumigrid/lumigrid-core/internal/node"
	"github.com/lumigrid/lumigrid-core/internal/protocol"
)

// handleGatewayRegister processes iot/gateway/{gw}/register.
//
// Two payload forms arrive here: a JSON registration from a booting
// gateway, and the bare OFFLINE literal published by the gateway's own
// LWT when the broker declares it dead.
func (r *Router) handleGatewayRegister(ctx context.Context, topic string, payload []byte) error {
	gatewayRef, _ := protocol.Refs(topic)

	if protocol.IsOfflineLiteral(payload) {
		return r.handleGatewayOffline(ctx, gatewayRef)
	}

	msg, err := protocol.DecodeGatewayRegister(payload)
	if err != nil {
		r.logger.Warn("dropping malformed gateway registration", "topic", topic, "error", err)
		return nil
	}

	gw, err := r.resolveGatewayRef(ctx, msg.DeviceID)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotFound) {
			r.logger.Warn("registration from unknown gateway", "topic", topic, "deviceId", msg.DeviceID)
			return nil
		}
		return fmt.Errorf("resolving gateway %s: %w", msg.DeviceID, err)
	}

	now := time.Now().UTC()
	if err := r.gateways.MarkOnline(ctx, gw.GatewayID, msg.FirmwareVersion, now); err != nil {
		return fmt.Errorf("marking gateway %d online: %w", gw.GatewayID, err)
	}

	if err := r.events.Record(ctx, &gateway.Event{
		GatewayID: gw.GatewayID,
		Event:     gateway.EventRegistered,
		Message:   "gateway registered",
		Payload:   map[string]any{"firmwareVersion": msg.FirmwareVersion, "topic": topic},
	}); err != nil {
		r.logger.Error("failed to record registration event", "gatewayId", gw.GatewayID, "error", err)
	}

	r.logger.Info("gateway registered",
		"gatewayId", gw.GatewayID,
		"mac", gw.MACAddress,
		"firmware", msg.FirmwareVersion,
	)

	// One-shot bootstrap config, addressed to the registering device.
	if err := r.downlink.PublishGatewayBootstrap(gatewayRef, downlink.GatewayBootstrap{
		GatewayID:     gw.GatewayID,
		ConfigVersion: gw.ConfigVersion,
		Radio: downlink.LoRaParams{
			Frequency:       gw.Radio.Frequency,
			Bandwidth:       gw.Radio.Bandwidth,
			SpreadingFactor: gw.Radio.SpreadingFactor,
		},
		APN:   gw.Network.APN,
		Nodes: gw.AssignedNodes,
	}); err != nil {
		r.logger.Error("bootstrap config publish failed", "gatewayId", gw.GatewayID, "error", err)
	}

	// A rebooted gateway has lost its nodes' schedules; push them all.
	nodes, err := r.nodes.ListByGateway(ctx, gw.GatewayID)
	if err != nil {
		return fmt.Errorf("listing nodes for gateway %d: %w", gw.GatewayID, err)
	}
	if len(nodes) > 0 {
		result := r.downlink.FanOutConfig(gatewayRef, nodes, r.fanOutConcurrency)
		if result.Failed() {
			r.logger.Warn("config fan-out completed with failures",
				"gatewayId", gw.GatewayID,
				"total", result.Total,
				"failed", len(result.Failures),
			)
		}
	}

	return nil
}

// handleGatewayOffline processes the OFFLINE LWT literal.
func (r *Router) handleGatewayOffline(ctx context.Context, gatewayRef string) error {
	gw, err := r.resolveGatewayRef(ctx, gatewayRef)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotFound) {
			r.logger.Warn("offline marker for unknown gateway", "ref", gatewayRef)
			return nil
		}
		return fmt.Errorf("resolving gateway %s: %w", gatewayRef, err)
	}

	if err := r.gateways.MarkOffline(ctx, gw.GatewayID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking gateway %d offline: %w", gw.GatewayID, err)
	}

	if err := r.events.Record(ctx, &gateway.Event{
		GatewayID: gw.GatewayID,
		Level:     gateway.EventLevelWarning,
		Event:     gateway.EventWentOffline,
		Message:   "broker reported gateway offline",
	}); err != nil {
		r.logger.Error("failed to record offline event", "gatewayId", gw.GatewayID, "error", err)
	}

	r.logger.Warn("gateway went offline", "gatewayId", gw.GatewayID)
	return nil
}

// handleGatewayStatus processes iot/gateway/{gw}/status.
//
// The reported gatewayId is correlated against the gateway stored for the
// reporting deviceId; a mismatch is logged and dropped with no state
// mutation, which protects against topic spoofing and misrouted uplinks.
func (r *Router) handleGatewayStatus(ctx context.Context, topic string, payload []byte) error {
	msg, err := protocol.DecodeGatewayStatus(payload)
	if err != nil {
		r.logger.Warn("dropping malformed gateway status", "topic", topic, "error", err)
		return nil
	}

	gw, err := r.resolveGatewayRef(ctx, msg.DeviceID)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotFound) {
			r.logger.Warn("status from unknown gateway", "topic", topic, "deviceId", msg.DeviceID)
			return nil
		}
		return fmt.Errorf("resolving gateway %s: %w", msg.DeviceID, err)
	}

	if msg.GatewayID != gw.GatewayID {
		r.logger.Warn("gateway status id mismatch, dropping",
			"deviceId", msg.DeviceID,
			"reported", msg.GatewayID,
			"stored", gw.GatewayID,
		)
		if err := r.events.Record(ctx, &gateway.Event{
			GatewayID: gw.GatewayID,
			Level:     gateway.EventLevelWarning,
			Event:     gateway.EventStatusMismatch,
			Message:   "status uplink reported a different gatewayId",
			Payload:   map[string]any{"reported": msg.GatewayID},
		}); err != nil {
			r.logger.Error("failed to record mismatch event", "gatewayId", gw.GatewayID, "error", err)
		}
		return nil
	}

	if err := r.gateways.Touch(ctx, gw.GatewayID, time.Now().UTC()); err != nil {
		return fmt.Errorf("refreshing gateway %d: %w", gw.GatewayID, err)
	}

	if r.telemetry != nil {
		r.telemetry.WriteGatewayStatus(formatGatewayTag(gw.GatewayID), msg.UptimeS, msg.NodeCount)
	}

	return nil
}

// handleNodeRegister processes iot/gateway/{gw}/node/{node}/register.
//
// The node's connectivity and signal fields are upserted by macAddress,
// then its current schedule config is pushed back down.
func (r *Router) handleNodeRegister(ctx context.Context, topic string, payload []byte) error {
	gatewayRef, _ := protocol.Refs(topic)

	msg, err := protocol.DecodeNodeRegister(payload)
	if err != nil {
		r.logger.Warn("dropping malformed node registration", "topic", topic, "error", err)
		return nil
	}

	mac := nodeMAC(msg.DeviceID)
	now := time.Now().UTC()

	if err := r.nodes.MarkOnline(ctx, mac, msg.RSSI, msg.SNR, now); err != nil {
		if errors.Is(err, node.ErrNodeNotFound) {
			r.logger.Warn("registration from unknown node", "topic", topic, "mac", mac)
			return nil
		}
		return fmt.Errorf("marking node %s online: %w", mac, err)
	}

	n, err := r.nodes.GetByMAC(ctx, mac)
	if err != nil {
		return fmt.Errorf("loading node %s: %w", mac, err)
	}

	r.logger.Info("node registered",
		"nodeId", n.NodeID,
		"gatewayId", n.GatewayID,
		"rssi", msg.RSSI,
		"snr", msg.SNR,
	)

	if r.telemetry != nil {
		r.telemetry.WriteNodeSignal(formatGatewayTag(n.GatewayID), n.NodeID, msg.RSSI, msg.SNR)
	}

	// Push the node's current schedule so a rebooted node recovers it.
	if err := r.downlink.PublishNodeConfig(gatewayRef, n); err != nil {
		r.logger.Error("node config publish failed", "nodeId", n.NodeID, "error", err)
	}

	return nil
}

// handleNodeConfigAck processes iot/gateway/{gw}/node/{node}/config/ack.
func (r *Router) handleNodeConfigAck(ctx context.Context, topic string, payload []byte) error {
	gatewayRef, nodeRef := protocol.Refs(topic)

	msg, err := protocol.DecodeNodeConfigAck(payload)
	if err != nil {
		r.logger.Warn("dropping malformed config ack", "topic", topic, "error", err)
		return nil
	}

	gw, err := r.resolveGatewayRef(ctx, gatewayRef)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotFound) {
			r.logger.Warn("config ack for unknown gateway", "topic", topic)
			return nil
		}
		return fmt.Errorf("resolving gateway %s: %w", gatewayRef, err)
	}

	nodeID := r.resolveNodeID(ctx, msg.NodeID, nodeRef)

	if err := r.nodes.RecordConfigAck(ctx, gw.GatewayID, nodeID, msg.CfgVer, time.Now().UTC()); err != nil {
		if errors.Is(err, node.ErrNodeNotFound) {
			r.logger.Warn("config ack from unknown node", "topic", topic, "nodeId", nodeID)
			return nil
		}
		return fmt.Errorf("recording config ack for %s: %w", nodeID, err)
	}

	r.logger.Debug("node config acked", "nodeId", nodeID, "cfgVer", msg.CfgVer)
	return nil
}

// handleNodeControlAck processes iot/gateway/{gw}/node/{node}/control/ack.
//
// The ack resolves against the command ledger scoped by (cmdId, nodeId);
// an ack that matches nothing is logged and dropped (stale ack after
// expiry and purge, or a device echoing garbage).
func (r *Router) handleNodeControlAck(ctx context.Context, topic string, payload []byte) error {
	_, nodeRef := protocol.Refs(topic)

	msg, err := protocol.DecodeNodeControlAck(payload)
	if err != nil {
		r.logger.Warn("dropping malformed control ack", "topic", topic, "error", err)
		return nil
	}

	nodeID := r.resolveNodeID(ctx, msg.NodeID, nodeRef)

	cmd, err := r.ledger.Ack(ctx, msg.CmdID, nodeID, msg.Success, time.Now().UTC())
	if err != nil {
		if errors.Is(err, command.ErrCommandNotFound) {
			r.logger.Warn("control ack matched no command", "topic", topic, "cmdId", msg.CmdID, "nodeId", nodeID)
			return nil
		}
		return fmt.Errorf("resolving control ack cmdId %d: %w", msg.CmdID, err)
	}

	r.logger.Info("control command resolved",
		"cmdId", cmd.CmdID,
		"nodeId", cmd.NodeID,
		"status", string(cmd.Status),
	)
	return nil
}

// resolveNodeID picks the node identity an ack refers to. Prefers the
// payload field, falls back to the topic segment, and maps a MAC-form
// reference (some firmware echoes the MAC in nodeId) to the stored
// "ND-<n>" identity the ledger and directory key on.
func (r *Router) resolveNodeID(ctx context.Context, payloadRef, topicRef string) string {
	ref := payloadRef
	if ref == "" {
		ref = topicRef
	}
	if strings.HasPrefix(ref, node.NodeIDPrefix) {
		return ref
	}
	if n, err := r.nodes.GetByMAC(ctx, nodeMAC(ref)); err == nil {
		return n.NodeID
	}
	return ref
}

// formatGatewayTag builds the telemetry tag for a gateway id.
func formatGatewayTag(gatewayID int64) string {
	return "GW-" + strconv.FormatInt(gatewayID, 10)
}
