package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteGatewayStatus records a gateway status report.
//
// Called once per status uplink (roughly every few minutes per gateway),
// so cardinality stays low: one series per gateway.
//
// Parameters:
//   - gatewayID: Gateway identifier (e.g., "GW-4")
//   - uptimeSeconds: Seconds since the gateway last booted
//   - nodeCount: Number of nodes the gateway currently hears
func (c *Client) WriteGatewayStatus(gatewayID string, uptimeSeconds int64, nodeCount int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gateway_status",
		map[string]string{
			"gateway_id": gatewayID,
		},
		map[string]interface{}{
			"uptime_s":   uptimeSeconds,
			"node_count": nodeCount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteNodeSignal records a node's LoRa link quality as heard by its gateway.
//
// RSSI and SNR arrive with node register and config-ack uplinks; trending
// them is how degrading links get spotted before nodes drop off entirely.
//
// Parameters:
//   - gatewayID: Owning gateway identifier
//   - nodeID: Node identifier within the gateway (e.g., "ND-2")
//   - rssi: Received signal strength in dBm (negative, closer to 0 is better)
//   - snr: Signal-to-noise ratio in dB
func (c *Client) WriteNodeSignal(gatewayID, nodeID string, rssi, snr float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"node_signal",
		map[string]string{
			"gateway_id": gatewayID,
			"node_id":    nodeID,
		},
		map[string]interface{}{
			"rssi": rssi,
			"snr":  snr,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
