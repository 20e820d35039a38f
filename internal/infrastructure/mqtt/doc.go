// Package mqtt provides the shared MQTT broker connection for LumiGrid Core.
//
// A single Client wraps paho.mqtt.golang and is constructed exactly once at
// startup; every publisher and subscriber receives it by injection. The
// wrapper adds:
//
//   - Automatic reconnection with exponential backoff
//   - Subscription tracking and restoration after reconnect
//   - Panic recovery around message handlers, so one bad device message
//     can never take down the router loop
//   - Last Will and Testament on lumigrid/system/status
//
// Device-facing topic construction and classification live in the protocol
// package; this package is transport only.
package mqtt
