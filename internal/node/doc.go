// Package node is the directory of lighting nodes: identity, owning
// gateway, schedule config, connectivity, signal quality, and config
// acknowledgment state.
//
// NodeIds are per-gateway ("ND-3" exists under many gateways); MAC
// addresses are unique fleet-wide, which is why connectivity updates from
// uplinks key on MAC. Mutators are idempotent for at-least-once delivery.
package node
