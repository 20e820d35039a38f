// Package gateway is the directory of LoRa gateways: identity, connectivity
// status, radio/network parameters, and the per-gateway node assignment list.
//
// A gateway has two natural keys - the sequence-allocated gatewayId and the
// device-assigned macAddress - and both are unique fleet-wide. The
// repository mutators (MarkOnline, Touch, AssignNode) are idempotent so
// at-least-once MQTT delivery can replay registrations and status uplinks
// harmlessly. Lifecycle events land in an append-only event log.
package gateway
