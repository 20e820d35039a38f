package command

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ledger defines the interface for command persistence and ack correlation.
type Ledger interface {
	// Issue appends a PENDING entry. Call only after the publish has been
	// accepted by the broker client - a command that was never sent must
	// not appear in the ledger.
	Issue(ctx context.Context, cmd *Command) error

	// Ack resolves the most recent PENDING entry matching (cmdId, nodeId).
	// Idempotent: if the match is already resolved, the stored record is
	// returned unchanged. Returns ErrCommandNotFound when no entry ever
	// carried that (cmdId, nodeId) pair.
	Ack(ctx context.Context, cmdID int, nodeID string, success bool, ackAt time.Time) (*Command, error)

	// GetByCmdID returns the most recent entry carrying a cmdId,
	// regardless of node or status. Diagnostic lookup; ack correlation
	// goes through Ack.
	GetByCmdID(ctx context.Context, cmdID int) (*Command, error)

	// ListByNode returns a node's commands, newest first, up to limit.
	ListByNode(ctx context.Context, gatewayID int64, nodeID string, limit int) ([]Command, error)

	// ExpireOlderThan marks PENDING entries sent before cutoff as EXPIRED.
	// Returns how many entries were marked.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// PurgeOlderThan deletes entries created before cutoff, regardless of
	// status. Returns how many entries were deleted.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a new SQLite-backed command ledger.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

const commandColumns = `id, cmd_id, type, node_id, gateway_id, action, mode,
	status, success, sent_at, ack_at, raw_payload, created_at`

// Issue appends a PENDING entry.
func (l *SQLiteLedger) Issue(ctx context.Context, cmd *Command) error {
	if cmd.CmdID < 0 || cmd.CmdID >= MaxCmdID {
		return fmt.Errorf("%w: cmdId %d out of 16-bit range", ErrInvalidCommand, cmd.CmdID)
	}
	if cmd.NodeID == "" || cmd.GatewayID == 0 {
		return fmt.Errorf("%w: missing node or gateway reference", ErrInvalidCommand)
	}

	now := time.Now().UTC()
	if cmd.Type == "" {
		cmd.Type = TypeNodeControl
	}
	if cmd.SentAt.IsZero() {
		cmd.SentAt = now
	}
	if cmd.RawPayload == "" {
		cmd.RawPayload = "{}"
	}
	cmd.Status = StatusPending
	cmd.CreatedAt = now

	query := `
		INSERT INTO commands (cmd_id, type, node_id, gateway_id, action, mode, status, sent_at, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := l.db.ExecContext(ctx, query,
		cmd.CmdID,
		cmd.Type,
		cmd.NodeID,
		cmd.GatewayID,
		cmd.Action,
		string(cmd.Mode),
		string(cmd.Status),
		formatTime(cmd.SentAt),
		cmd.RawPayload,
		formatTime(cmd.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("issuing command: %w", err)
	}

	cmd.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading command id: %w", err)
	}
	return nil
}

// Ack resolves the most recent PENDING entry matching (cmdId, nodeId).
//
// cmdId alone is only 16 bits and reused over time, so correlation is
// scoped by node and anchored to the newest matching entry. A duplicate
// ack finds that entry already resolved and returns it untouched - ackAt
// never moves once set.
func (l *SQLiteLedger) Ack(ctx context.Context, cmdID int, nodeID string, success bool, ackAt time.Time) (*Command, error) {
	query := `SELECT ` + commandColumns + `
		FROM commands
		WHERE cmd_id = ? AND node_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	row := l.db.QueryRowContext(ctx, query, cmdID, nodeID)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cmdId %d for node %s", ErrCommandNotFound, cmdID, nodeID)
		}
		return nil, fmt.Errorf("correlating ack: %w", err)
	}

	if cmd.Status != StatusPending {
		// Already resolved (or expired) - duplicate acks are a no-op.
		return cmd, nil
	}

	status := StatusAcked
	if !success {
		status = StatusFailed
	}

	update := `UPDATE commands SET status = ?, success = ?, ack_at = ? WHERE id = ? AND status = ?`
	result, err := l.db.ExecContext(ctx, update,
		string(status),
		boolToInt(success),
		formatTime(ackAt.UTC()),
		cmd.ID,
		string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("resolving command: %w", err)
	}

	// A concurrent ack may have won the race; either way the row is
	// resolved now, so re-read it.
	if _, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	return l.getByID(ctx, cmd.ID)
}

// GetByCmdID returns the most recent entry carrying a cmdId.
func (l *SQLiteLedger) GetByCmdID(ctx context.Context, cmdID int) (*Command, error) {
	query := `SELECT ` + commandColumns + `
		FROM commands
		WHERE cmd_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	row := l.db.QueryRowContext(ctx, query, cmdID)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cmdId %d", ErrCommandNotFound, cmdID)
		}
		return nil, fmt.Errorf("getting command: %w", err)
	}
	return cmd, nil
}

// ListByNode returns a node's commands, newest first.
func (l *SQLiteLedger) ListByNode(ctx context.Context, gatewayID int64, nodeID string, limit int) ([]Command, error) {
	query := `SELECT ` + commandColumns + `
		FROM commands
		WHERE gateway_id = ? AND node_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, gatewayID, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

// ExpireOlderThan marks PENDING entries sent before cutoff as EXPIRED.
func (l *SQLiteLedger) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE commands SET status = ? WHERE status = ? AND sent_at < ?`

	result, err := l.db.ExecContext(ctx, query,
		string(StatusExpired),
		string(StatusPending),
		formatTime(cutoff.UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring commands: %w", err)
	}
	return result.RowsAffected()
}

// PurgeOlderThan deletes entries created before cutoff.
func (l *SQLiteLedger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM commands WHERE created_at < ?",
		formatTime(cutoff.UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("purging commands: %w", err)
	}
	return result.RowsAffected()
}

func (l *SQLiteLedger) getByID(ctx context.Context, id int64) (*Command, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrCommandNotFound, id)
		}
		return nil, fmt.Errorf("getting command: %w", err)
	}
	return cmd, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

// scanCommand scans a command row into a Command struct.
func scanCommand(s scanner) (*Command, error) {
	var (
		cmd       Command
		mode      string
		status    string
		success   sql.NullInt64
		sentAt    string
		ackAt     sql.NullString
		createdAt string
	)

	err := s.Scan(
		&cmd.ID,
		&cmd.CmdID,
		&cmd.Type,
		&cmd.NodeID,
		&cmd.GatewayID,
		&cmd.Action,
		&mode,
		&status,
		&success,
		&sentAt,
		&ackAt,
		&cmd.RawPayload,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	cmd.Mode = Mode(mode)
	cmd.Status = Status(status)

	if success.Valid {
		v := success.Int64 != 0
		cmd.Success = &v
	}
	if ackAt.Valid {
		t, err := parseTime(ackAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ack_at: %w", err)
		}
		cmd.AckAt = &t
	}

	if cmd.SentAt, err = parseTime(sentAt); err != nil {
		return nil, fmt.Errorf("parsing sent_at: %w", err)
	}
	if cmd.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &cmd, nil
}

// formatTime formats a timestamp for storage (RFC3339 UTC).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// boolToInt converts a bool for SQLite integer storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
