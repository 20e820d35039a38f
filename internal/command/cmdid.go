package command

import (
	"sync/atomic"
	"time"
)

// CmdIDSource issues 16-bit correlation ids for control commands.
//
// Ids come from an atomic counter seeded with the current coarse clock, so
// process restarts do not restart at the same value the last run used.
// The counter wraps at 65536: cmdIds are reused over time by design, and
// correlation on ack is therefore scoped by (cmdId, nodeId) against the
// most recent PENDING ledger entry.
//
// Thread Safety:
//   - Next is safe for concurrent use; no two concurrent calls return the
//     same value until the counter wraps.
type CmdIDSource struct {
	counter atomic.Uint32
}

// NewCmdIDSource creates a source seeded from the clock.
func NewCmdIDSource() *CmdIDSource {
	s := &CmdIDSource{}
	s.counter.Store(uint32(time.Now().Unix() % MaxCmdID)) // #nosec G115 -- bounded by modulus
	return s
}

// Next returns the next correlation id (0-65535).
func (s *CmdIDSource) Next() int {
	return int(s.counter.Add(1) % MaxCmdID)
}
