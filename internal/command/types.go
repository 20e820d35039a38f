package command

import "time"

// Status represents a command's resolution state.
type Status string

// Command lifecycle states.
//
// A command is created PENDING once the publish is accepted, moves to
// ACKED or FAILED when the device's control-ack arrives, and is marked
// EXPIRED by the sweeper if no ack arrives within the deadline.
const (
	StatusPending Status = "PENDING"
	StatusAcked   Status = "ACKED"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// Mode selects how a node applies a control action.
type Mode string

// Control modes. MANUAL overrides the schedule until reverted; AUTO
// returns the node to schedule-driven operation.
const (
	ModeAuto   Mode = "AUTO"
	ModeManual Mode = "MANUAL"
)

// Actions are light-state targets. Free-form by design - firmware adds
// actions faster than the backend enumerates them - but these two cover
// the fleet today.
const (
	ActionOn  = "ON"
	ActionOff = "OFF"
)

// TypeNodeControl is the only command type currently issued.
const TypeNodeControl = "node_control"

// MaxCmdID is the upper bound of the 16-bit correlation id space.
const MaxCmdID = 1 << 16 // 65536

// Command is one ledger entry: a control instruction sent to a node and
// its resolution state.
//
// CmdID is a 16-bit correlation value echoed back in the device's ack. It
// wraps and is reused over time - it is NOT a unique key. ID is the
// ledger's own unique, append-ordered identity.
type Command struct {
	// ID is the unique ledger row id.
	ID int64 `json:"id"`

	// CmdID is the 16-bit correlation id (0-65535) carried in the
	// control message and echoed in the ack.
	CmdID int `json:"cmdId"`

	// Type is the command kind. Currently always TypeNodeControl.
	Type string `json:"type"`

	// NodeID and GatewayID address the target node.
	NodeID    string `json:"nodeId"`
	GatewayID int64  `json:"gatewayId"`

	// Action is the light-state target (e.g. "ON").
	Action string `json:"action"`

	// Mode is AUTO or MANUAL.
	Mode Mode `json:"mode"`

	// Status is the resolution state.
	Status Status `json:"status"`

	// Success is nil while PENDING/EXPIRED, set from the ack otherwise.
	Success *bool `json:"success,omitempty"`

	// SentAt is when the publish was accepted by the broker client.
	SentAt time.Time `json:"sentAt"`

	// AckAt is when the device's ack arrived. Nil until resolved.
	AckAt *time.Time `json:"ackAt,omitempty"`

	// RawPayload is a JSON snapshot of the published control message.
	RawPayload string `json:"rawPayload,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
