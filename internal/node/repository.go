package node

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for node persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a new node.
	// Returns ErrNodeExists if the macAddress or (gatewayId, nodeId) is taken.
	Create(ctx context.Context, n *Node) error

	// GetByNodeID retrieves a node by its per-gateway identity.
	// Returns ErrNodeNotFound if the node does not exist.
	GetByNodeID(ctx context.Context, gatewayID int64, nodeID string) (*Node, error)

	// GetByMAC retrieves a node by its normalized MAC address.
	// Returns ErrNodeNotFound if the node does not exist.
	GetByMAC(ctx context.Context, macAddress string) (*Node, error)

	// ListByGateway retrieves a gateway's nodes ordered by nodeId.
	ListByGateway(ctx context.Context, gatewayID int64) ([]Node, error)

	// CountByGateway returns how many nodes are registered under a gateway.
	CountByGateway(ctx context.Context, gatewayID int64) (int, error)

	// MarkOnline refreshes connectivity and signal fields by macAddress.
	// Idempotent: repeated registrations only refresh these fields, never
	// duplicate the record. Returns ErrNodeNotFound for unknown MACs.
	MarkOnline(ctx context.Context, macAddress string, rssi, snr float64, lastSeen time.Time) error

	// RecordConfigAck stamps lastConfigAck and the acked configVersion.
	// Returns ErrNodeNotFound if the node does not exist.
	RecordConfigAck(ctx context.Context, gatewayID int64, nodeID string, configVersion int, ackAt time.Time) error

	// UpdateSchedule replaces a node's schedule and bumps its config
	// version. The new version is pushed to the device separately.
	UpdateSchedule(ctx context.Context, gatewayID int64, nodeID string, schedule Schedule) (*Node, error)

	// Delete removes a node. Its sequence value is never reused.
	// Returns ErrNodeNotFound if the node does not exist.
	Delete(ctx context.Context, gatewayID int64, nodeID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const nodeColumns = `node_id, gateway_id, mac_address, name, status, last_seen,
	on_hour, off_hour, power_limit, rssi, snr,
	last_config_ack, config_version, fault, firmware_version,
	created_at, updated_at`

// Create inserts a new node.
func (r *SQLiteRepository) Create(ctx context.Context, n *Node) error {
	if err := n.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	n.MACAddress = NormalizeMAC(n.MACAddress)
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = StatusOffline
	}

	query := `
		INSERT INTO nodes (` + nodeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		n.NodeID,
		n.GatewayID,
		n.MACAddress,
		n.Name,
		string(n.Status),
		nullTime(n.LastSeen),
		n.Schedule.OnHour,
		n.Schedule.OffHour,
		n.Schedule.PowerLimit,
		nullFloat(n.RSSI),
		nullFloat(n.SNR),
		nullTime(n.LastConfigAck),
		n.ConfigVersion,
		boolToInt(n.Fault),
		nullString(n.FirmwareVersion),
		formatTime(n.CreatedAt),
		formatTime(n.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s / mac %s", ErrNodeExists, n.NodeID, n.MACAddress)
		}
		return fmt.Errorf("creating node: %w", err)
	}

	return nil
}

// GetByNodeID retrieves a node by its per-gateway identity.
func (r *SQLiteRepository) GetByNodeID(ctx context.Context, gatewayID int64, nodeID string) (*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE gateway_id = ? AND node_id = ?`
	row := r.db.QueryRowContext(ctx, query, gatewayID, nodeID)
	return r.scanOne(row)
}

// GetByMAC retrieves a node by its MAC address (normalized before lookup).
func (r *SQLiteRepository) GetByMAC(ctx context.Context, macAddress string) (*Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE mac_address = ?`
	row := r.db.QueryRowContext(ctx, query, NormalizeMAC(macAddress))
	return r.scanOne(row)
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*Node, error) {
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("getting node: %w", err)
	}
	return n, nil
}

// ListByGateway retrieves a gateway's nodes ordered by nodeId length then
// value, so ND-2 sorts before ND-10.
func (r *SQLiteRepository) ListByGateway(ctx context.Context, gatewayID int64) ([]Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE gateway_id = ? ORDER BY length(node_id), node_id`

	rows, err := r.db.QueryContext(ctx, query, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// CountByGateway returns how many nodes are registered under a gateway.
func (r *SQLiteRepository) CountByGateway(ctx context.Context, gatewayID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE gateway_id = ?", gatewayID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting nodes: %w", err)
	}
	return count, nil
}

// MarkOnline refreshes connectivity and signal fields by macAddress.
func (r *SQLiteRepository) MarkOnline(ctx context.Context, macAddress string, rssi, snr float64, lastSeen time.Time) error {
	query := `
		UPDATE nodes
		SET status = ?, last_seen = ?, rssi = ?, snr = ?, updated_at = ?
		WHERE mac_address = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusOnline),
		formatTime(lastSeen.UTC()),
		rssi,
		snr,
		formatTime(time.Now().UTC()),
		NormalizeMAC(macAddress),
	)
	if err != nil {
		return fmt.Errorf("marking node online: %w", err)
	}
	return requireNodeRow(result, macAddress)
}

// RecordConfigAck stamps lastConfigAck and the acked configVersion.
func (r *SQLiteRepository) RecordConfigAck(ctx context.Context, gatewayID int64, nodeID string, configVersion int, ackAt time.Time) error {
	query := `
		UPDATE nodes
		SET last_config_ack = ?, config_version = ?, last_seen = ?, status = ?, updated_at = ?
		WHERE gateway_id = ? AND node_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		formatTime(ackAt.UTC()),
		configVersion,
		formatTime(ackAt.UTC()),
		string(StatusOnline),
		formatTime(time.Now().UTC()),
		gatewayID,
		nodeID,
	)
	if err != nil {
		return fmt.Errorf("recording config ack: %w", err)
	}
	return requireNodeRow(result, nodeID)
}

// UpdateSchedule replaces a node's schedule and bumps its config version.
func (r *SQLiteRepository) UpdateSchedule(ctx context.Context, gatewayID int64, nodeID string, schedule Schedule) (*Node, error) {
	query := `
		UPDATE nodes
		SET on_hour = ?, off_hour = ?, power_limit = ?, config_version = config_version + 1, updated_at = ?
		WHERE gateway_id = ? AND node_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		schedule.OnHour,
		schedule.OffHour,
		schedule.PowerLimit,
		formatTime(time.Now().UTC()),
		gatewayID,
		nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating schedule: %w", err)
	}
	if err := requireNodeRow(result, nodeID); err != nil {
		return nil, err
	}

	return r.GetByNodeID(ctx, gatewayID, nodeID)
}

// Delete removes a node record. The gateway's per-gateway counter is a
// monotonic ledger, so the removed node's sequence value is never reissued.
func (r *SQLiteRepository) Delete(ctx context.Context, gatewayID int64, nodeID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM nodes WHERE gateway_id = ? AND node_id = ?`, gatewayID, nodeID)
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return requireNodeRow(result, nodeID)
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

// scanNode scans a node row into a Node struct.
func scanNode(s scanner) (*Node, error) {
	var (
		n             Node
		status        string
		lastSeen      sql.NullString
		rssi          sql.NullFloat64
		snr           sql.NullFloat64
		lastConfigAck sql.NullString
		fault         int
		firmware      sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := s.Scan(
		&n.NodeID,
		&n.GatewayID,
		&n.MACAddress,
		&n.Name,
		&status,
		&lastSeen,
		&n.Schedule.OnHour,
		&n.Schedule.OffHour,
		&n.Schedule.PowerLimit,
		&rssi,
		&snr,
		&lastConfigAck,
		&n.ConfigVersion,
		&fault,
		&firmware,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Status = Status(status)
	n.Fault = fault != 0
	n.FirmwareVersion = firmware.String

	if rssi.Valid {
		n.RSSI = &rssi.Float64
	}
	if snr.Valid {
		n.SNR = &snr.Float64
	}
	if lastSeen.Valid {
		t, err := parseTime(lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		n.LastSeen = &t
	}
	if lastConfigAck.Valid {
		t, err := parseTime(lastConfigAck.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_config_ack: %w", err)
		}
		n.LastConfigAck = &t
	}

	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &n, nil
}

// requireNodeRow converts a zero-row UPDATE into ErrNodeNotFound.
func requireNodeRow(result sql.Result, ref string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	return nil
}

// isUniqueViolation reports whether an error is a SQLite UNIQUE constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// formatTime formats a timestamp for storage (RFC3339 UTC).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// nullString converts an empty string to NULL for storage.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime converts a nil timestamp to NULL for storage.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullFloat converts a nil float pointer to NULL for storage.
func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// boolToInt converts a bool for SQLite integer storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
