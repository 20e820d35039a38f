package sequence

import (
	"context"
	"database/sql"
	"fmt"
)

// Counter keys. The gateway counter is global; node counters are scoped
// per gateway so each gateway numbers its nodes from 1.
const (
	gatewayCounterKey     = "gateway"
	nodeCounterKeyPattern = "node_gateway_%d"
)

// Allocator issues monotonically increasing, collision-free sequence
// numbers backed by the counters table.
//
// Each allocation is a single UPSERT with RETURNING, so concurrent callers
// never observe the same value for the same key: SQLite serializes the
// statement and the increment-and-fetch is atomic. Values are never reused,
// even after the gateway or node they numbered is deleted.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Allocator struct {
	db *sql.DB
}

// NewAllocator creates an allocator backed by the given database.
func NewAllocator(db *sql.DB) *Allocator {
	return &Allocator{db: db}
}

// NextGateway allocates the next global gateway sequence number.
//
// The first call returns 1.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - int64: The allocated sequence value (strictly increasing, no reuse)
//   - error: If the database operation fails
func (a *Allocator) NextGateway(ctx context.Context) (int64, error) {
	seq, err := a.next(ctx, gatewayCounterKey)
	if err != nil {
		return 0, fmt.Errorf("allocating gateway sequence: %w", err)
	}
	return seq, nil
}

// NextNode allocates the next node sequence number for a gateway, enforcing
// the per-gateway node cap.
//
// The counter increments even when the cap is exceeded - it is a monotonic
// ledger, not an assigned count - so callers must reject the registration
// on ErrCapacityExceeded without persisting a node. A later capacity raise
// resumes numbering from where the ledger left off.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - gatewayID: The owning gateway's numeric id
//   - maxNodes: The configured per-gateway node cap
//
// Returns:
//   - int64: The allocated sequence value
//   - error: ErrCapacityExceeded if the value exceeds maxNodes, or a
//     database error
func (a *Allocator) NextNode(ctx context.Context, gatewayID int64, maxNodes int) (int64, error) {
	key := fmt.Sprintf(nodeCounterKeyPattern, gatewayID)
	seq, err := a.next(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("allocating node sequence for gateway %d: %w", gatewayID, err)
	}
	if seq > int64(maxNodes) {
		return 0, fmt.Errorf("%w: gateway %d is at its limit of %d nodes", ErrCapacityExceeded, gatewayID, maxNodes)
	}
	return seq, nil
}

// next performs the atomic increment-and-fetch for a counter key.
func (a *Allocator) next(ctx context.Context, key string) (int64, error) {
	query := `
		INSERT INTO counters (id, seq) VALUES (?, 1)
		ON CONFLICT(id) DO UPDATE SET seq = seq + 1
		RETURNING seq`

	var seq int64
	if err := a.db.QueryRowContext(ctx, query, key).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
