package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for gateway persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a new gateway.
	// Returns ErrGatewayExists if the gatewayId or macAddress is taken.
	Create(ctx context.Context, gw *Gateway) error

	// GetByID retrieves a gateway by its numeric id.
	// Returns ErrGatewayNotFound if the gateway does not exist.
	GetByID(ctx context.Context, gatewayID int64) (*Gateway, error)

	// GetByMAC retrieves a gateway by its normalized MAC address.
	// Returns ErrGatewayNotFound if the gateway does not exist.
	GetByMAC(ctx context.Context, macAddress string) (*Gateway, error)

	// List retrieves all gateways ordered by gatewayId.
	List(ctx context.Context) ([]Gateway, error)

	// MarkOnline sets status ONLINE and refreshes lastSeen and firmware.
	// Idempotent: repeated registrations only refresh these fields.
	MarkOnline(ctx context.Context, gatewayID int64, firmwareVersion string, lastSeen time.Time) error

	// MarkOffline sets status OFFLINE, stamping lastSeen.
	MarkOffline(ctx context.Context, gatewayID int64, lastSeen time.Time) error

	// Touch refreshes lastSeen (and forces status ONLINE) from a status
	// uplink. Idempotent.
	Touch(ctx context.Context, gatewayID int64, lastSeen time.Time) error

	// AssignNode appends a nodeId to the gateway's assignment list.
	// Idempotent: re-assigning an already-listed node is a no-op.
	AssignNode(ctx context.Context, gatewayID int64, nodeID string) error

	// Delete removes a gateway. Its sequence value is never reused.
	// Returns ErrGatewayNotFound if the gateway does not exist.
	Delete(ctx context.Context, gatewayID int64) error
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

const gatewayColumns = `gateway_id, mac_address, name, status, last_seen, firmware_version,
	lora_frequency, lora_bandwidth, lora_spreading_factor,
	sim_iccid, apn, ip_address,
	location_lat, location_lng, location_address,
	assigned_nodes, config_version, created_at, updated_at`

// Create inserts a new gateway.
func (r *SQLiteRepository) Create(ctx context.Context, gw *Gateway) error {
	if err := gw.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	gw.MACAddress = NormalizeMAC(gw.MACAddress)
	gw.CreatedAt = now
	gw.UpdatedAt = now
	if gw.Status == "" {
		gw.Status = StatusOffline
	}
	if gw.ConfigVersion == "" {
		gw.ConfigVersion = "v1"
	}
	if gw.AssignedNodes == nil {
		gw.AssignedNodes = []string{}
	}

	nodesJSON, err := json.Marshal(gw.AssignedNodes)
	if err != nil {
		return fmt.Errorf("marshaling assigned nodes: %w", err)
	}

	query := `
		INSERT INTO gateways (` + gatewayColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		gw.GatewayID,
		gw.MACAddress,
		gw.Name,
		string(gw.Status),
		nullTime(gw.LastSeen),
		nullString(gw.FirmwareVersion),
		gw.Radio.Frequency,
		gw.Radio.Bandwidth,
		gw.Radio.SpreadingFactor,
		nullString(gw.Network.SIMICCID),
		nullString(gw.Network.APN),
		nullString(gw.Network.IPAddress),
		gw.Location.Lat,
		gw.Location.Lng,
		gw.Location.Address,
		string(nodesJSON),
		gw.ConfigVersion,
		formatTime(gw.CreatedAt),
		formatTime(gw.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: gatewayId %d / mac %s", ErrGatewayExists, gw.GatewayID, gw.MACAddress)
		}
		return fmt.Errorf("creating gateway: %w", err)
	}

	return nil
}

// GetByID retrieves a gateway by its numeric id.
func (r *SQLiteRepository) GetByID(ctx context.Context, gatewayID int64) (*Gateway, error) {
	query := `SELECT ` + gatewayColumns + ` FROM gateways WHERE gateway_id = ?`
	return r.getOne(ctx, query, gatewayID)
}

// GetByMAC retrieves a gateway by its MAC address (normalized before lookup).
func (r *SQLiteRepository) GetByMAC(ctx context.Context, macAddress string) (*Gateway, error) {
	query := `SELECT ` + gatewayColumns + ` FROM gateways WHERE mac_address = ?`
	return r.getOne(ctx, query, NormalizeMAC(macAddress))
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*Gateway, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	gw, err := scanGateway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGatewayNotFound
		}
		return nil, fmt.Errorf("getting gateway: %w", err)
	}
	return gw, nil
}

// List retrieves all gateways ordered by gatewayId.
func (r *SQLiteRepository) List(ctx context.Context) ([]Gateway, error) {
	query := `SELECT ` + gatewayColumns + ` FROM gateways ORDER BY gateway_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing gateways: %w", err)
	}
	defer rows.Close()

	var gateways []Gateway
	for rows.Next() {
		gw, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway: %w", err)
		}
		gateways = append(gateways, *gw)
	}
	return gateways, rows.Err()
}

// MarkOnline sets status ONLINE and refreshes lastSeen and firmware.
func (r *SQLiteRepository) MarkOnline(ctx context.Context, gatewayID int64, firmwareVersion string, lastSeen time.Time) error {
	query := `
		UPDATE gateways
		SET status = ?, last_seen = ?, firmware_version = COALESCE(?, firmware_version), updated_at = ?
		WHERE gateway_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusOnline),
		formatTime(lastSeen.UTC()),
		nullString(firmwareVersion),
		formatTime(time.Now().UTC()),
		gatewayID,
	)
	if err != nil {
		return fmt.Errorf("marking gateway online: %w", err)
	}
	return requireRow(result, gatewayID)
}

// MarkOffline sets status OFFLINE, stamping lastSeen.
func (r *SQLiteRepository) MarkOffline(ctx context.Context, gatewayID int64, lastSeen time.Time) error {
	query := `
		UPDATE gateways
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE gateway_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusOffline),
		formatTime(lastSeen.UTC()),
		formatTime(time.Now().UTC()),
		gatewayID,
	)
	if err != nil {
		return fmt.Errorf("marking gateway offline: %w", err)
	}
	return requireRow(result, gatewayID)
}

// Touch refreshes lastSeen and forces status ONLINE from a status uplink.
func (r *SQLiteRepository) Touch(ctx context.Context, gatewayID int64, lastSeen time.Time) error {
	query := `
		UPDATE gateways
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE gateway_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusOnline),
		formatTime(lastSeen.UTC()),
		formatTime(time.Now().UTC()),
		gatewayID,
	)
	if err != nil {
		return fmt.Errorf("touching gateway: %w", err)
	}
	return requireRow(result, gatewayID)
}

// AssignNode appends a nodeId to the gateway's assignment list.
//
// Read-modify-write on the JSON column is safe under SQLite's single-writer
// connection; the store serializes concurrent assignments.
func (r *SQLiteRepository) AssignNode(ctx context.Context, gatewayID int64, nodeID string) error {
	gw, err := r.GetByID(ctx, gatewayID)
	if err != nil {
		return err
	}

	for _, existing := range gw.AssignedNodes {
		if existing == nodeID {
			return nil
		}
	}

	nodes := append(gw.AssignedNodes, nodeID)
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("marshaling assigned nodes: %w", err)
	}

	query := `UPDATE gateways SET assigned_nodes = ?, updated_at = ? WHERE gateway_id = ?`
	result, err := r.db.ExecContext(ctx, query, string(nodesJSON), formatTime(time.Now().UTC()), gatewayID)
	if err != nil {
		return fmt.Errorf("assigning node: %w", err)
	}
	return requireRow(result, gatewayID)
}

// Delete removes a gateway record. Node records under it are left in
// place: they remain addressable by MAC and can be reassigned. The
// gateway's sequence value is never reused.
func (r *SQLiteRepository) Delete(ctx context.Context, gatewayID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM gateways WHERE gateway_id = ?`, gatewayID)
	if err != nil {
		return fmt.Errorf("deleting gateway: %w", err)
	}
	return requireRow(result, gatewayID)
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

// scanGateway scans a gateway row into a Gateway struct.
func scanGateway(s scanner) (*Gateway, error) {
	var (
		gw              Gateway
		status          string
		lastSeen        sql.NullString
		firmware        sql.NullString
		simICCID        sql.NullString
		apn             sql.NullString
		ipAddress       sql.NullString
		assignedNodes   string
		createdAt       string
		updatedAt       string
	)

	err := s.Scan(
		&gw.GatewayID,
		&gw.MACAddress,
		&gw.Name,
		&status,
		&lastSeen,
		&firmware,
		&gw.Radio.Frequency,
		&gw.Radio.Bandwidth,
		&gw.Radio.SpreadingFactor,
		&simICCID,
		&apn,
		&ipAddress,
		&gw.Location.Lat,
		&gw.Location.Lng,
		&gw.Location.Address,
		&assignedNodes,
		&gw.ConfigVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	gw.Status = Status(status)
	gw.FirmwareVersion = firmware.String
	gw.Network.SIMICCID = simICCID.String
	gw.Network.APN = apn.String
	gw.Network.IPAddress = ipAddress.String

	if lastSeen.Valid {
		t, err := parseTime(lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		gw.LastSeen = &t
	}

	if gw.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if gw.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(assignedNodes), &gw.AssignedNodes); err != nil {
		return nil, fmt.Errorf("parsing assigned_nodes: %w", err)
	}

	return &gw, nil
}

// requireRow converts a zero-row UPDATE into ErrGatewayNotFound.
func requireRow(result sql.Result, gatewayID int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: gatewayId %d", ErrGatewayNotFound, gatewayID)
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
