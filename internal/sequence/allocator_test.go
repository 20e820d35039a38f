package sequence

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the counters table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE counters (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL DEFAULT 0
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	// Serialize access the way production does: SQLite single writer.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestNextGateway(t *testing.T) {
	db := setupTestDB(t)
	alloc := NewAllocator(db)
	ctx := context.Background()

	t.Run("starts at one", func(t *testing.T) {
		seq, err := alloc.NextGateway(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seq != 1 {
			t.Errorf("first sequence = %d, want 1", seq)
		}
	})

	t.Run("strictly increasing", func(t *testing.T) {
		prev, err := alloc.NextGateway(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < 10; i++ {
			seq, err := alloc.NextGateway(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seq != prev+1 {
				t.Errorf("sequence jumped from %d to %d", prev, seq)
			}
			prev = seq
		}
	})
}

func TestNextGatewayConcurrent(t *testing.T) {
	db := setupTestDB(t)
	alloc := NewAllocator(db)
	ctx := context.Background()

	const n = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[int64]bool)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := alloc.NextGateway(ctx)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			if results[seq] {
				t.Errorf("duplicate sequence value %d", seq)
			}
			results[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(results) != n {
		t.Fatalf("got %d distinct values, want %d", len(results), n)
	}
	// Distinct and contiguous: exactly 1..n.
	for i := int64(1); i <= n; i++ {
		if !results[i] {
			t.Errorf("missing sequence value %d", i)
		}
	}
}

func TestNextNode(t *testing.T) {
	db := setupTestDB(t)
	alloc := NewAllocator(db)
	ctx := context.Background()

	t.Run("scoped per gateway", func(t *testing.T) {
		seqA, err := alloc.NextNode(ctx, 1, 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seqB, err := alloc.NextNode(ctx, 2, 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seqA != 1 || seqB != 1 {
			t.Errorf("per-gateway counters should be independent: got %d and %d", seqA, seqB)
		}
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		const max = 3
		for i := 0; i < max-1; i++ {
			if _, err := alloc.NextNode(ctx, 7, max); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		_, err := alloc.NextNode(ctx, 7, max)
		if err != nil {
			t.Fatalf("allocation at the cap should succeed: %v", err)
		}

		_, err = alloc.NextNode(ctx, 7, max)
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}
	})

	t.Run("counter keeps incrementing past the cap", func(t *testing.T) {
		// A raised cap resumes from the ledger position, not from the
		// last persisted node.
		seq, err := alloc.NextNode(ctx, 7, 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seq != 5 {
			t.Errorf("sequence = %d, want 5 (ledger kept counting through the rejected allocation)", seq)
		}
	})
}
