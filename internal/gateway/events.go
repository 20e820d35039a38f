package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is an operational log entry for a gateway: registrations, offline
// transitions, spoofing drops. Events are append-only.
type Event struct {
	ID        string         `json:"id"`
	GatewayID int64          `json:"gatewayId"`
	Level     string         `json:"level"`
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Well-known event names.
const (
	EventRegistered     = "registered"
	EventWentOffline    = "went_offline"
	EventStatusMismatch = "status_mismatch"
)

// EventLog records gateway lifecycle events.
type EventLog interface {
	// Record appends an event. The event's ID and CreatedAt are assigned
	// here if unset.
	Record(ctx context.Context, event *Event) error

	// ListByGateway returns a gateway's events, newest first, up to limit.
	ListByGateway(ctx context.Context, gatewayID int64, limit int) ([]Event, error)
}

// SQLiteEventLog implements EventLog using SQLite.
type SQLiteEventLog struct {
	db *sql.DB
}

// NewSQLiteEventLog creates a new SQLite-backed event log.
func NewSQLiteEventLog(db *sql.DB) *SQLiteEventLog {
	return &SQLiteEventLog{db: db}
}

// Record appends an event.
func (l *SQLiteEventLog) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()[:16]
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}

	query := `
		INSERT INTO gateway_events (id, gateway_id, level, event, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = l.db.ExecContext(ctx, query,
		event.ID,
		event.GatewayID,
		event.Level,
		event.Event,
		event.Message,
		string(payloadJSON),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("recording gateway event: %w", err)
	}
	return nil
}

// ListByGateway returns a gateway's events, newest first.
func (l *SQLiteEventLog) ListByGateway(ctx context.Context, gatewayID int64, limit int) ([]Event, error) {
	query := `
		SELECT id, gateway_id, level, event, message, payload, created_at
		FROM gateway_events
		WHERE gateway_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, gatewayID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing gateway events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev        Event
			payload   string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.GatewayID, &ev.Level, &ev.Event, &ev.Message, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning gateway event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("parsing event payload: %w", err)
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing event created_at: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
