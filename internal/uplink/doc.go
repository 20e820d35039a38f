// Package uplink routes inbound device messages.
//
// The router holds one wildcard subscription (iot/gateway/#), classifies
// each message through the protocol package, and dispatches to a per-intent
// handler: gateway registration (including the OFFLINE LWT literal),
// gateway status with spoofing protection, node registration with a config
// push-back, config acks, and control acks resolved against the command
// ledger.
//
// Every drop path - unrecognized topic, malformed payload, unknown device,
// unmatched ack - is logged and swallowed: device misbehavior must never
// destabilize the backend.
package uplink
