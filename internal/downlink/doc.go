// Package downlink builds and publishes every cloud→device message:
// gateway bootstrap configs, node schedule configs, and node control
// commands.
//
// Publishes are accepted-by-broker, not received-by-device; device receipt
// arrives later as config and control acks on the uplink side. Config
// fan-out to a gateway's nodes runs under a bounded worker pool with
// partial-failure semantics: each node's outcome is collected, none is
// allowed to cancel the rest.
package downlink
