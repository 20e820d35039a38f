// Package influxdb records fleet telemetry history.
//
// SQLite is the source of truth for current gateway and node state; this
// package keeps the time-series side: gateway uptime and node counts from
// status uplinks, and per-node RSSI/SNR from register and config-ack
// uplinks. Writes are batched and non-blocking, and the package is entirely
// optional - when influxdb.enabled is false in config, Core runs without it
// and callers simply skip the writes.
package influxdb
