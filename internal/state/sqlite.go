package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	kindArea = "area"
	kindZone = "zone"
)

// SQLite persists snapshots into the resource_state table, one row per
// area or zone.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates SQLite persistence on an open database
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Load reads every area and zone row. Any undecodable row fails the whole load.
func (s *SQLite) Load() (Snapshot, error) {
	snap := NewSnapshot()

	areas, err := loadKind[AreaState](s.db, kindArea)
	if err != nil {
		return snap, err
	}
	zones, err := loadKind[ZoneState](s.db, kindZone)
	if err != nil {
		return snap, err
	}

	snap.Areas = areas
	snap.Zones = zones
	return snap, nil
}

// Save writes the snapshot in one transaction and drops rows no longer present.
func (s *SQLite) Save(snap Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Unix()
	if err := saveKind(tx, kindArea, snap.Areas, now); err != nil {
		return err
	}
	if err := saveKind(tx, kindZone, snap.Zones, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	log.Debug().
		Int("areas", len(snap.Areas)).
		Int("zones", len(snap.Zones)).
		Msg("Saved state snapshot")
	return nil
}

func loadKind[T any](db *sql.DB, kind string) (map[string]T, error) {
	rows, err := db.Query(`SELECT id, payload FROM resource_state WHERE kind = ?`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s state: %w", kind, err)
	}
	defer rows.Close()

	out := make(map[string]T)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s state: %w", kind, err)
		}
		var value T
		if err := json.Unmarshal([]byte(payload), &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s state for %s: %w", kind, id, err)
		}
		out[id] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s state: %w", kind, err)
	}
	return out, nil
}

func saveKind[T any](tx *sql.Tx, kind string, values map[string]T, now int64) error {
	if _, err := tx.Exec(`DELETE FROM resource_state WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("failed to clear %s state: %w", kind, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", kind, err)
	}
	defer stmt.Close()

	for id, v := range values {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s state for %s: %w", kind, id, err)
		}
		if _, err := stmt.Exec(kind, id, string(payload), now); err != nil {
			return fmt.Errorf("failed to write %s state for %s: %w", kind, id, err)
		}
	}
	return nil
}
