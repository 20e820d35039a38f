package command

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the commands table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cmd_id INTEGER NOT NULL,
			type TEXT NOT NULL DEFAULT 'node_control',
			node_id TEXT NOT NULL,
			gateway_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			success INTEGER,
			sent_at TEXT NOT NULL,
			ack_at TEXT,
			raw_payload TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testCommand creates a command for testing.
func testCommand(cmdID int, nodeID string) *Command {
	return &Command{
		CmdID:     cmdID,
		NodeID:    nodeID,
		GatewayID: 1,
		Action:    ActionOn,
		Mode:      ModeManual,
	}
}

func TestLedgerIssue(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	t.Run("creates pending entry", func(t *testing.T) {
		cmd := testCommand(4242, "ND-1")
		if err := ledger.Issue(ctx, cmd); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cmd.ID == 0 {
			t.Error("ledger id should be assigned")
		}
		if cmd.Status != StatusPending {
			t.Errorf("status = %s, want PENDING", cmd.Status)
		}
		if cmd.Type != TypeNodeControl {
			t.Errorf("type = %q, want %q", cmd.Type, TypeNodeControl)
		}

		got, err := ledger.GetByCmdID(ctx, 4242)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Success != nil {
			t.Error("success should be nil while pending")
		}
		if got.AckAt != nil {
			t.Error("ackAt should be nil while pending")
		}
	})

	t.Run("cmdId out of range rejected", func(t *testing.T) {
		err := ledger.Issue(ctx, testCommand(65536, "ND-1"))
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("expected ErrInvalidCommand, got %v", err)
		}
	})

	t.Run("missing target rejected", func(t *testing.T) {
		err := ledger.Issue(ctx, testCommand(1, ""))
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("expected ErrInvalidCommand, got %v", err)
		}
	})
}

func TestLedgerAck(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	cmd := testCommand(100, "ND-1")
	if err := ledger.Issue(ctx, cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ackAt := time.Date(2026, 8, 15, 21, 0, 0, 0, time.UTC)

	t.Run("pending to acked", func(t *testing.T) {
		resolved, err := ledger.Ack(ctx, 100, "ND-1", true, ackAt)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved.Status != StatusAcked {
			t.Errorf("status = %s, want ACKED", resolved.Status)
		}
		if resolved.Success == nil || !*resolved.Success {
			t.Error("success should be true")
		}
		if resolved.AckAt == nil || !resolved.AckAt.Equal(ackAt) {
			t.Errorf("ackAt = %v, want %v", resolved.AckAt, ackAt)
		}
	})

	t.Run("duplicate ack is a no-op", func(t *testing.T) {
		again, err := ledger.Ack(ctx, 100, "ND-1", true, ackAt.Add(time.Minute))
		if err != nil {
			t.Fatalf("duplicate ack should not error: %v", err)
		}
		if again.AckAt == nil || !again.AckAt.Equal(ackAt) {
			t.Errorf("ackAt moved on duplicate ack: %v", again.AckAt)
		}
	})

	t.Run("failure ack", func(t *testing.T) {
		failing := testCommand(101, "ND-1")
		if err := ledger.Issue(ctx, failing); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resolved, err := ledger.Ack(ctx, 101, "ND-1", false, ackAt)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved.Status != StatusFailed {
			t.Errorf("status = %s, want FAILED", resolved.Status)
		}
		if resolved.Success == nil || *resolved.Success {
			t.Error("success should be false")
		}
	})

	t.Run("unknown correlation", func(t *testing.T) {
		_, err := ledger.Ack(ctx, 9999, "ND-1", true, ackAt)
		if !errors.Is(err, ErrCommandNotFound) {
			t.Errorf("expected ErrCommandNotFound, got %v", err)
		}
	})

	t.Run("ack scoped by node", func(t *testing.T) {
		// Same cmdId on two different nodes: the ack for one node must
		// not resolve the other node's command.
		cmdA := testCommand(200, "ND-2")
		cmdB := testCommand(200, "ND-3")
		if err := ledger.Issue(ctx, cmdA); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := ledger.Issue(ctx, cmdB); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := ledger.Ack(ctx, 200, "ND-3", true, ackAt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		remaining, err := ledger.ListByNode(ctx, 1, "ND-2", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(remaining) != 1 || remaining[0].Status != StatusPending {
			t.Errorf("ND-2's command should still be PENDING, got %+v", remaining)
		}
	})

	t.Run("reused cmdId resolves the newest entry", func(t *testing.T) {
		// cmdIds wrap; an ack must land on the most recent PENDING
		// command, not an old resolved one.
		first := testCommand(300, "ND-4")
		if err := ledger.Issue(ctx, first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := ledger.Ack(ctx, 300, "ND-4", true, ackAt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second := testCommand(300, "ND-4")
		if err := ledger.Issue(ctx, second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resolved, err := ledger.Ack(ctx, 300, "ND-4", true, ackAt.Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved.ID != second.ID {
			t.Errorf("resolved entry %d, want the newer entry %d", resolved.ID, second.ID)
		}
	})
}

func TestLedgerExpireAndPurge(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	old := testCommand(400, "ND-1")
	old.SentAt = time.Now().UTC().Add(-10 * time.Minute)
	if err := ledger.Issue(ctx, old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh := testCommand(401, "ND-1")
	if err := ledger.Issue(ctx, fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("expires only stale pending entries", func(t *testing.T) {
		n, err := ledger.ExpireOlderThan(ctx, time.Now().UTC().Add(-2*time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 1 {
			t.Errorf("expired %d entries, want 1", n)
		}

		got, err := ledger.GetByCmdID(ctx, 400)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != StatusExpired {
			t.Errorf("status = %s, want EXPIRED", got.Status)
		}

		still, err := ledger.GetByCmdID(ctx, 401)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if still.Status != StatusPending {
			t.Errorf("fresh command should stay PENDING, got %s", still.Status)
		}
	})

	t.Run("late ack after expiry is a no-op", func(t *testing.T) {
		resolved, err := ledger.Ack(ctx, 400, "ND-1", true, time.Now().UTC())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved.Status != StatusExpired {
			t.Errorf("late ack should not resurrect an expired command, got %s", resolved.Status)
		}
	})

	t.Run("purges regardless of status", func(t *testing.T) {
		// Everything was created moments ago, so a future cutoff
		// removes it all.
		n, err := ledger.PurgeOlderThan(ctx, time.Now().UTC().Add(time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 2 {
			t.Errorf("purged %d entries, want 2", n)
		}

		_, err = ledger.GetByCmdID(ctx, 400)
		if !errors.Is(err, ErrCommandNotFound) {
			t.Errorf("expected ErrCommandNotFound after purge, got %v", err)
		}
	})
}

func TestSweeper(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewSQLiteLedger(db)
	ctx := context.Background()

	stale := testCommand(500, "ND-1")
	stale.SentAt = time.Now().UTC().Add(-5 * time.Minute)
	if err := ledger.Issue(ctx, stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sweeper := NewSweeper(SweeperConfig{
		Ledger:      ledger,
		AckDeadline: 2 * time.Minute,
		Interval:    time.Hour, // sweep manually
		Retention:   30 * 24 * time.Hour,
	})

	sweeper.SweepOnce(ctx)

	got, err := ledger.GetByCmdID(ctx, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("status = %s, want EXPIRED after sweep", got.Status)
	}

	t.Run("stop is safe to call twice", func(t *testing.T) {
		sweeper.Start(ctx)
		sweeper.Stop()
		sweeper.Stop()
	})
}

func TestCmdIDSource(t *testing.T) {
	src := NewCmdIDSource()

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		id := src.Next()
		if id < 0 || id >= MaxCmdID {
			t.Fatalf("cmdId %d out of 16-bit range", id)
		}
		if seen[id] {
			t.Fatalf("cmdId %d repeated within 1000 allocations", id)
		}
		seen[id] = true
	}
}
