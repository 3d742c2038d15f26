// Package ledger provides an append-only audit history of primitive invocations.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventInvoked     EventType = "invoked"
	EventInvokeError EventType = "invoke_failed"
	EventPhaseReset  EventType = "phase_reset"
	EventExpired     EventType = "timer_expired"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID           int64          `json:"id"`
	InvocationID string         `json:"invocation_id"`
	EventType    EventType      `json:"event_type"`
	Primitive    string         `json:"primitive,omitempty"`
	Target       string         `json:"target"`
	Source       string         `json:"source,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Payload      map[string]any `json:"payload,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// NewInvocationID returns a fresh id for one Invoke call
func NewInvocationID() string {
	return uuid.NewString()
}

// Append adds an entry. An empty InvocationID gets a new one.
func (l *Ledger) Append(e Entry) error {
	var payloadJSON []byte
	var err error

	if e.Payload != nil {
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	if e.InvocationID == "" {
		e.InvocationID = NewInvocationID()
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = l.db.Exec(`
		INSERT INTO event_ledger (invocation_id, event_type, primitive, target, source, timestamp, payload, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.InvocationID, string(e.EventType), e.Primitive, e.Target, e.Source, ts.UTC().UnixMilli(), string(payloadJSON), e.Error)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ByTarget returns the newest entries for an area or zone
func (l *Ledger) ByTarget(target string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, invocation_id, event_type, primitive, target, source, timestamp, payload, error
		FROM event_ledger
		WHERE target = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByTimeRange returns entries within a time range
func (l *Ledger) ByTimeRange(start, end time.Time, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, invocation_id, event_type, primitive, target, source, timestamp, payload, error
		FROM event_ledger
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, start.UTC().UnixMilli(), end.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunCleanup applies the retention policy every interval until ctx is done
func (l *Ledger) RunCleanup(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Ledger cleanup")
			}
		}
	}
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var primitive, target, source, payloadStr, errStr sql.NullString
		var ts int64

		err := rows.Scan(
			&entry.ID, &entry.InvocationID, &entry.EventType, &primitive, &target, &source, &ts, &payloadStr, &errStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(ts).UTC()
		entry.Primitive = primitive.String
		entry.Target = target.String
		entry.Source = source.String
		entry.Error = errStr.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
