package fleet

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/lumigrid/lumigrid-core/internal/command"
	"github.com/lumigrid/lumigrid-core/internal/downlink"
	"github.com/lumigrid/lumigrid-core/internal/gateway"
	"github.com/lumigrid/lumigrid-core/internal/node"
	"github.com/lumigrid/lumigrid-core/internal/sequence"
)

// ControlPublisher is the downlink surface the orchestrator needs.
// Implemented by downlink.Publisher.
type ControlPublisher interface {
	PublishControl(gatewayRef string, cmd downlink.ControlPayload) ([]byte, error)
	PublishNodeConfig(gatewayRef string, n *node.Node) error
}

// Logger interface for orchestrator logging.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Orchestrator is the fleet management façade: gateway and node
// provisioning, node control, and the read models behind them.
//
// Provisioning here is administrative - it creates the directory records
// that device registrations (handled by the uplink router) later bind to.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//     Cross-entity consistency relies on the directories' atomic
//     statements and the allocator's atomic increments, not on locks.
type Orchestrator struct {
	gateways  gateway.Repository
	nodes     node.Repository
	alloc     *sequence.Allocator
	ledger    command.Ledger
	cmdIDs    *command.CmdIDSource
	publisher ControlPublisher
	logger    Logger

	maxNodesPerGateway int
}

// Config holds the orchestrator's collaborators and settings.
type Config struct {
	Gateways  gateway.Repository
	Nodes     node.Repository
	Allocator *sequence.Allocator
	Ledger    command.Ledger
	CmdIDs    *command.CmdIDSource
	Publisher ControlPublisher
	Logger    Logger

	// MaxNodesPerGateway caps node registrations per gateway. Default 50.
	MaxNodesPerGateway int
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	maxNodes := cfg.MaxNodesPerGateway
	if maxNodes == 0 {
		maxNodes = 50
	}

	return &Orchestrator{
		gateways:           cfg.Gateways,
		nodes:              cfg.Nodes,
		alloc:              cfg.Allocator,
		ledger:             cfg.Ledger,
		cmdIDs:             cfg.CmdIDs,
		publisher:          cfg.Publisher,
		logger:             cfg.Logger,
		maxNodesPerGateway: maxNodes,
	}
}

// RegisterGatewayInput holds the fields for provisioning a gateway.
type RegisterGatewayInput struct {
	MACAddress string
	Name       string
	Radio      gateway.RadioConfig
	Network    gateway.NetworkConfig
	Location   gateway.Location
}

// RegisterGateway provisions a new gateway, allocating its numeric
// identity from the global sequence.
//
// The macAddress uniqueness pre-check runs before allocation so a
// duplicate registration burns no sequence value. The insert itself still
// enforces uniqueness, so a concurrent duplicate loses there instead.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - in: Gateway fields; MACAddress is required
//
// Returns:
//   - *gateway.Gateway: The created gateway with its allocated gatewayId
//   - error: ErrGatewayExists on a duplicate MAC, or a database error
func (o *Orchestrator) RegisterGateway(ctx context.Context, in RegisterGatewayInput) (*gateway.Gateway, error) {
	mac := gateway.NormalizeMAC(in.MACAddress)
	if mac == "" {
		return nil, fmt.Errorf("%w: macAddress is required", ErrInvalidInput)
	}

	if _, err := o.gateways.GetByMAC(ctx, mac); err == nil {
		return nil, fmt.Errorf("%w: mac %s already registered", gateway.ErrGatewayExists, mac)
	} else if !errors.Is(err, gateway.ErrGatewayNotFound) {
		return nil, fmt.Errorf("checking mac %s: %w", mac, err)
	}

	seq, err := o.alloc.NextGateway(ctx)
	if err != nil {
		return nil, err
	}

	gw := &gateway.Gateway{
		GatewayID:  seq,
		MACAddress: mac,
		Name:       in.Name,
		Radio:      in.Radio,
		Network:    in.Network,
		Location:   in.Location,
	}
	if err := o.gateways.Create(ctx, gw); err != nil {
		return nil, err
	}

	o.logger.Info("gateway provisioned", "gatewayId", gw.GatewayID, "mac", mac)
	return gw, nil
}

// RegisterNodeInput holds the fields for provisioning a node.
type RegisterNodeInput struct {
	GatewayID  int64
	MACAddress string
	Name       string
	Schedule   node.Schedule
}

// RegisterNode provisions a new lighting node under a gateway.
//
// The gateway existence check runs before any sequence allocation, so a
// registration against a missing gateway consumes nothing from that
// gateway's node ledger. Capacity is enforced by the allocator; a rejected
// registration persists no node.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - in: Node fields; GatewayID and MACAddress are required
//
// Returns:
//   - *node.Node: The created node with its allocated "ND-<n>" identity
//   - error: ErrGatewayNotFound, ErrNodeExists, ErrCapacityExceeded, or a
//     database error
func (o *Orchestrator) RegisterNode(ctx context.Context, in RegisterNodeInput) (*node.Node, error) {
	mac := node.NormalizeMAC(in.MACAddress)
	if mac == "" {
		return nil, fmt.Errorf("%w: macAddress is required", ErrInvalidInput)
	}

	gw, err := o.gateways.GetByID(ctx, in.GatewayID)
	if err != nil {
		return nil, fmt.Errorf("resolving gateway %d: %w", in.GatewayID, err)
	}

	if _, err := o.nodes.GetByMAC(ctx, mac); err == nil {
		return nil, fmt.Errorf("%w: mac %s already registered", node.ErrNodeExists, mac)
	} else if !errors.Is(err, node.ErrNodeNotFound) {
		return nil, fmt.Errorf("checking mac %s: %w", mac, err)
	}

	seq, err := o.alloc.NextNode(ctx, gw.GatewayID, o.maxNodesPerGateway)
	if err != nil {
		return nil, err
	}

	n := &node.Node{
		NodeID:     node.FormatNodeID(seq),
		GatewayID:  gw.GatewayID,
		MACAddress: mac,
		Name:       in.Name,
		Schedule:   in.Schedule,
	}
	if err := o.nodes.Create(ctx, n); err != nil {
		return nil, err
	}

	if err := o.gateways.AssignNode(ctx, gw.GatewayID, n.NodeID); err != nil {
		return nil, fmt.Errorf("assigning %s to gateway %d: %w", n.NodeID, gw.GatewayID, err)
	}

	o.logger.Info("node provisioned", "nodeId", n.NodeID, "gatewayId", gw.GatewayID, "mac", mac)
	return n, nil
}

// ControlNodeInput holds the fields for a node control command.
// The node is addressed by its macAddress.
type ControlNodeInput struct {
	GatewayID  int64
	MACAddress string
	Action     string
	Mode       command.Mode
}

// ControlNode publishes a control command to a node and records it as a
// PENDING ledger entry.
//
// The publish happens first; only an accepted publish creates the ledger
// entry, so the ledger never claims a command that was never sent. The
// call returns immediately after the entry is written - the device's ack
// arrives asynchronously through the uplink router and resolves the entry
// by (cmdId, nodeId).
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - in: GatewayID, the node's MACAddress, Action, and Mode (defaults
//     to MANUAL)
//
// Returns:
//   - *command.Command: The PENDING ledger entry, including its cmdId
//   - error: ErrGatewayNotFound, ErrNodeNotFound, ErrWrongGateway,
//     ErrPublishFailed, or a database error
func (o *Orchestrator) ControlNode(ctx context.Context, in ControlNodeInput) (*command.Command, error) {
	if in.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	mode := in.Mode
	if mode == "" {
		mode = command.ModeManual
	}

	gw, err := o.gateways.GetByID(ctx, in.GatewayID)
	if err != nil {
		return nil, fmt.Errorf("resolving gateway %d: %w", in.GatewayID, err)
	}

	n, err := o.nodes.GetByMAC(ctx, node.NormalizeMAC(in.MACAddress))
	if err != nil {
		return nil, fmt.Errorf("resolving node %s: %w", in.MACAddress, err)
	}
	if n.GatewayID != gw.GatewayID {
		return nil, fmt.Errorf("%w: %s belongs to gateway %d", ErrWrongGateway, n.NodeID, n.GatewayID)
	}

	cmdID := o.cmdIDs.Next()

	raw, err := o.publisher.PublishControl(gatewayRef(gw.GatewayID), downlink.ControlPayload{
		CmdID:     cmdID,
		GatewayID: gw.GatewayID,
		NodeID:    n.NodeID,
		Action:    in.Action,
		Mode:      string(mode),
	})
	if err != nil {
		return nil, err
	}

	cmd := &command.Command{
		CmdID:      cmdID,
		NodeID:     n.NodeID,
		GatewayID:  gw.GatewayID,
		Action:     in.Action,
		Mode:       mode,
		RawPayload: string(raw),
	}
	if err := o.ledger.Issue(ctx, cmd); err != nil {
		// The command went out but the ledger write failed; the ack, if
		// any, will find nothing to resolve and be dropped as unmatched.
		return nil, fmt.Errorf("recording command %d: %w", cmdID, err)
	}

	o.logger.Info("control command issued",
		"cmdId", cmd.CmdID,
		"nodeId", cmd.NodeID,
		"action", cmd.Action,
		"mode", string(cmd.Mode),
	)
	return cmd, nil
}

// UpdateNodeSchedule replaces a node's schedule, bumps its config version,
// and pushes the new config to the device.
//
// The push is best-effort: the stored schedule is authoritative, and a
// node that missed the push recovers it on its next registration.
func (o *Orchestrator) UpdateNodeSchedule(ctx context.Context, gatewayID int64, nodeID string, schedule node.Schedule) (*node.Node, error) {
	n, err := o.nodes.UpdateSchedule(ctx, gatewayID, nodeID, schedule)
	if err != nil {
		return nil, err
	}

	if err := o.publisher.PublishNodeConfig(gatewayRef(gatewayID), n); err != nil {
		o.logger.Error("schedule config push failed", "nodeId", nodeID, "error", err)
	}

	return n, nil
}

// GetGateway returns a gateway by its numeric id.
func (o *Orchestrator) GetGateway(ctx context.Context, gatewayID int64) (*gateway.Gateway, error) {
	return o.gateways.GetByID(ctx, gatewayID)
}

// ListGateways returns all gateways ordered by gatewayId.
func (o *Orchestrator) ListGateways(ctx context.Context) ([]gateway.Gateway, error) {
	return o.gateways.List(ctx)
}

// GetNode returns a node by its per-gateway identity.
func (o *Orchestrator) GetNode(ctx context.Context, gatewayID int64, nodeID string) (*node.Node, error) {
	return o.nodes.GetByNodeID(ctx, gatewayID, nodeID)
}

// ListNodes returns a gateway's nodes ordered by nodeId.
func (o *Orchestrator) ListNodes(ctx context.Context, gatewayID int64) ([]node.Node, error) {
	return o.nodes.ListByGateway(ctx, gatewayID)
}

// GetCommand returns the most recent ledger entry carrying a cmdId.
func (o *Orchestrator) GetCommand(ctx context.Context, cmdID int) (*command.Command, error) {
	return o.ledger.GetByCmdID(ctx, cmdID)
}

// ListNodeCommands returns a node's commands, newest first, up to limit.
func (o *Orchestrator) ListNodeCommands(ctx context.Context, gatewayID int64, nodeID string, limit int) ([]command.Command, error) {
	return o.ledger.ListByNode(ctx, gatewayID, nodeID, limit)
}

// gatewayRef builds the {gw} topic segment for a gateway's numeric id.
func gatewayRef(gatewayID int64) string {
	return "GW-" + strconv.FormatInt(gatewayID, 10)
}
