// Package fleet is the orchestration façade over the gateway and node
// directories, the sequence allocator, the command ledger, and the
// downlink publisher.
//
// It owns the provisioning flows (gateway and node registration with
// identity allocation) and the control flow (publish-then-record, with
// ack resolution left to the uplink router). Callers - the request
// boundary, operational tooling - talk to this package rather than to
// the individual directories.
package fleet
