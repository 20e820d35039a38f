// Package sequence allocates gateway and per-gateway node sequence numbers.
//
// Registration requests race: two gateways can register in the same
// millisecond and must not receive the same gatewayId. The allocator backs
// every allocation with one atomic increment-and-fetch on the counters
// table, keyed "gateway" globally and "node_gateway_<id>" per gateway, so
// values are distinct and strictly increasing with no reuse after deletion.
package sequence
