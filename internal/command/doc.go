// Package command is the append-only ledger of control commands and their
// acknowledgment state.
//
// Every control instruction sent to a node lands here as a PENDING entry
// carrying a 16-bit cmdId. The id space is tiny and wraps, so it is a
// correlation value, not a key: acks resolve against the most recent
// PENDING entry for (cmdId, nodeId), and duplicate acks are no-ops. A
// background sweeper marks unacked commands EXPIRED after a deadline and
// purges everything past the retention window.
package command
