package node

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the nodes table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE nodes (
			node_id TEXT NOT NULL,
			gateway_id INTEGER NOT NULL,
			mac_address TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'OFFLINE',
			last_seen TEXT,
			on_hour INTEGER NOT NULL DEFAULT 0,
			off_hour INTEGER NOT NULL DEFAULT 0,
			power_limit INTEGER NOT NULL DEFAULT 0,
			rssi REAL,
			snr REAL,
			last_config_ack TEXT,
			config_version INTEGER NOT NULL DEFAULT 0,
			fault INTEGER NOT NULL DEFAULT 0,
			firmware_version TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (gateway_id, node_id)
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

// testNode creates a node for testing.
func testNode(gatewayID int64, seq int64, mac string) *Node {
	return &Node{
		NodeID:     FormatNodeID(seq),
		GatewayID:  gatewayID,
		MACAddress: mac,
		Name:       "Test Node",
		Schedule: Schedule{
			OnHour:     18,
			OffHour:    6,
			PowerLimit: 80,
		},
	}
}

func TestFormatNodeID(t *testing.T) {
	if got := FormatNodeID(1); got != "ND-1" {
		t.Errorf("FormatNodeID(1) = %q, want ND-1", got)
	}
	if got := FormatNodeID(42); got != "ND-42" {
		t.Errorf("FormatNodeID(42) = %q, want ND-42", got)
	}
}

func TestRepositoryCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates node", func(t *testing.T) {
		n := testNode(1, 1, "cc:dd:ee:ff:00:01")
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := repo.GetByNodeID(ctx, 1, "ND-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.MACAddress != "CC:DD:EE:FF:00:01" {
			t.Errorf("MAC should be stored normalized, got %q", got.MACAddress)
		}
		if got.Status != StatusOffline {
			t.Errorf("new node status = %s, want OFFLINE", got.Status)
		}
		if got.Schedule.OnHour != 18 || got.Schedule.OffHour != 6 || got.Schedule.PowerLimit != 80 {
			t.Errorf("schedule not persisted: %+v", got.Schedule)
		}
		if got.RSSI != nil || got.SNR != nil {
			t.Error("signal fields should be nil until first report")
		}
	})

	t.Run("same nodeId under different gateways", func(t *testing.T) {
		if err := repo.Create(ctx, testNode(2, 1, "cc:dd:ee:ff:00:02")); err != nil {
			t.Fatalf("nodeId is per-gateway, creation should succeed: %v", err)
		}
	})

	t.Run("duplicate mac conflicts", func(t *testing.T) {
		err := repo.Create(ctx, testNode(3, 1, "CC:DD:EE:FF:00:01"))
		if !errors.Is(err, ErrNodeExists) {
			t.Errorf("expected ErrNodeExists, got %v", err)
		}
	})

	t.Run("duplicate nodeId within gateway conflicts", func(t *testing.T) {
		err := repo.Create(ctx, testNode(1, 1, "cc:dd:ee:ff:00:03"))
		if !errors.Is(err, ErrNodeExists) {
			t.Errorf("expected ErrNodeExists, got %v", err)
		}
	})

	t.Run("invalid node rejected", func(t *testing.T) {
		n := testNode(1, 2, "cc:dd:ee:ff:00:04")
		n.NodeID = "node-4" // wrong prefix
		if err := repo.Create(ctx, n); !errors.Is(err, ErrInvalidNode) {
			t.Errorf("expected ErrInvalidNode, got %v", err)
		}
	})
}

func TestRepositoryMarkOnline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testNode(1, 1, "CC:DD:EE:FF:00:10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := time.Date(2026, 8, 15, 20, 0, 0, 0, time.UTC)

	t.Run("refreshes connectivity and signal", func(t *testing.T) {
		if err := repo.MarkOnline(ctx, "cc:dd:ee:ff:00:10", -87.5, 9.25, seen); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		n, err := repo.GetByMAC(ctx, "CC:DD:EE:FF:00:10")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.Status != StatusOnline {
			t.Errorf("status = %s, want ONLINE", n.Status)
		}
		if n.RSSI == nil || *n.RSSI != -87.5 {
			t.Errorf("rssi = %v, want -87.5", n.RSSI)
		}
		if n.SNR == nil || *n.SNR != 9.25 {
			t.Errorf("snr = %v, want 9.25", n.SNR)
		}
		if n.LastSeen == nil || !n.LastSeen.Equal(seen) {
			t.Errorf("lastSeen = %v, want %v", n.LastSeen, seen)
		}
	})

	t.Run("idempotent re-registration", func(t *testing.T) {
		later := seen.Add(time.Minute)
		if err := repo.MarkOnline(ctx, "CC:DD:EE:FF:00:10", -90, 8, later); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		nodes, err := repo.ListByGateway(ctx, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(nodes) != 1 {
			t.Fatalf("re-registration duplicated the node: %d records", len(nodes))
		}
		if nodes[0].RSSI == nil || *nodes[0].RSSI != -90 {
			t.Errorf("rssi should refresh, got %v", nodes[0].RSSI)
		}
	})

	t.Run("unknown mac", func(t *testing.T) {
		err := repo.MarkOnline(ctx, "FF:FF:FF:FF:FF:FF", -80, 10, seen)
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})
}

func TestRepositoryRecordConfigAck(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testNode(1, 1, "CC:DD:EE:FF:00:20")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ackAt := time.Date(2026, 8, 15, 20, 30, 0, 0, time.UTC)

	if err := repo.RecordConfigAck(ctx, 1, "ND-1", 3, ackAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := repo.GetByNodeID(ctx, 1, "ND-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ConfigVersion != 3 {
		t.Errorf("configVersion = %d, want 3", n.ConfigVersion)
	}
	if n.LastConfigAck == nil || !n.LastConfigAck.Equal(ackAt) {
		t.Errorf("lastConfigAck = %v, want %v", n.LastConfigAck, ackAt)
	}
	if n.Status != StatusOnline {
		t.Errorf("an acking node is online, got %s", n.Status)
	}

	t.Run("unknown node", func(t *testing.T) {
		err := repo.RecordConfigAck(ctx, 1, "ND-99", 1, ackAt)
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})
}

func TestRepositoryUpdateSchedule(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testNode(1, 1, "CC:DD:EE:FF:00:30")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := repo.UpdateSchedule(ctx, 1, "ND-1", Schedule{OnHour: 19, OffHour: 5, PowerLimit: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Schedule.OnHour != 19 || updated.Schedule.OffHour != 5 || updated.Schedule.PowerLimit != 60 {
		t.Errorf("schedule not updated: %+v", updated.Schedule)
	}
	if updated.ConfigVersion != 1 {
		t.Errorf("configVersion should bump to 1, got %d", updated.ConfigVersion)
	}
}

func TestRepositoryDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testNode(1, 1, "CC:DD:EE:FF:00:01")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.Delete(ctx, 1, "ND-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetByNodeID(ctx, 1, "ND-1"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("deleted node should be gone, got %v", err)
	}

	t.Run("unknown node", func(t *testing.T) {
		if err := repo.Delete(ctx, 1, "ND-9"); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})
}

func TestRepositoryListAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// 11 nodes to exercise the length-aware ordering (ND-2 before ND-10).
	for i := int64(1); i <= 11; i++ {
		mac := "CC:DD:EE:FF:01:" + string(rune('A'+i))
		if err := repo.Create(ctx, testNode(1, i, mac)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	nodes, err := repo.ListByGateway(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 11 {
		t.Fatalf("got %d nodes, want 11", len(nodes))
	}
	if nodes[1].NodeID != "ND-2" || nodes[9].NodeID != "ND-10" {
		t.Errorf("ordering wrong: %s at index 1, %s at index 9", nodes[1].NodeID, nodes[9].NodeID)
	}

	count, err := repo.CountByGateway(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 11 {
		t.Errorf("count = %d, want 11", count)
	}

	empty, err := repo.ListByGateway(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("gateway 2 should have no nodes")
	}
}
