package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSnapshotUnsafe is returned by Save after a failed load, so a bad read
// never overwrites the good data still on disk.
var ErrSnapshotUnsafe = errors.New("snapshot was not loaded cleanly, refusing to save")

// Persistence loads and saves whole snapshots
type Persistence interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// Store is the authoritative in-memory copy of all area and zone state.
//
// Reads and writes of single records are atomic. Callers that read, modify
// and write a record must hold its lock from LockAreas or LockZone.
type Store struct {
	mu    sync.RWMutex
	areas map[string]AreaState
	zones map[string]ZoneState

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	persist  Persistence
	loadedOK bool
	dirty    bool
}

// NewStore creates an empty store. persist may be nil for a memory-only store.
func NewStore(persist Persistence) *Store {
	return &Store{
		areas:    make(map[string]AreaState),
		zones:    make(map[string]ZoneState),
		locks:    make(map[string]*sync.Mutex),
		persist:  persist,
		loadedOK: persist == nil,
	}
}

// Load replaces the store's contents with the persisted snapshot.
// A failed load leaves the store empty and blocks later saves.
func (s *Store) Load() error {
	if s.persist == nil {
		return nil
	}

	snap, err := s.persist.Load()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.areas = make(map[string]AreaState)
		s.zones = make(map[string]ZoneState)
		s.loadedOK = false
		return fmt.Errorf("failed to load state snapshot: %w", err)
	}

	s.areas = snap.Areas
	s.zones = snap.Zones
	if s.areas == nil {
		s.areas = make(map[string]AreaState)
	}
	if s.zones == nil {
		s.zones = make(map[string]ZoneState)
	}
	s.loadedOK = true
	s.dirty = false

	log.Info().
		Int("areas", len(s.areas)).
		Int("zones", len(s.zones)).
		Msg("Loaded state snapshot")
	return nil
}

// Reset discards everything and allows saving again
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas = make(map[string]AreaState)
	s.zones = make(map[string]ZoneState)
	s.loadedOK = true
	s.dirty = true
}

// LoadedOK reports whether the last load succeeded
func (s *Store) LoadedOK() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedOK
}

// Save persists the current state if anything changed
func (s *Store) Save() error {
	if s.persist == nil {
		return nil
	}

	s.mu.Lock()
	if !s.loadedOK {
		s.mu.Unlock()
		return ErrSnapshotUnsafe
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshotLocked()
	s.dirty = false
	s.mu.Unlock()

	if err := s.persist.Save(snap); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("failed to save state snapshot: %w", err)
	}
	return nil
}

// RunSaver saves on every interval until ctx is done, then saves once more
func (s *Store) RunSaver(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Save(); err != nil {
				log.Error().Err(err).Msg("Final state save failed")
			}
			return
		case <-ticker.C:
			if err := s.Save(); err != nil {
				log.Error().Err(err).Msg("State save failed")
			}
		}
	}
}

// Snapshot returns a copy of all state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := NewSnapshot()
	for id, a := range s.areas {
		snap.Areas[id] = a
	}
	for id, z := range s.zones {
		z.Areas = slices.Clone(z.Areas)
		snap.Zones[id] = z
	}
	return snap
}

// Area returns the area's state, creating it with defaults on first access
func (s *Store) Area(id string) AreaState {
	s.mu.RLock()
	a, ok := s.areas[id]
	s.mu.RUnlock()
	if ok {
		return a
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.areas[id]; ok {
		return a
	}
	s.areas[id] = AreaState{}
	s.dirty = true
	log.Debug().Str("area", id).Msg("Created area state")
	return AreaState{}
}

// LookupArea returns the area's state without creating it
func (s *Store) LookupArea(id string) (AreaState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.areas[id]
	return a, ok
}

// PutArea stores the area's state
func (s *Store) PutArea(id string, a AreaState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas[id] = a
	s.dirty = true
}

// Zone returns the zone's state, creating it on first access
func (s *Store) Zone(id string) ZoneState {
	s.mu.RLock()
	z, ok := s.zones[id]
	s.mu.RUnlock()
	if ok {
		z.Areas = slices.Clone(z.Areas)
		return z
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zones[id]; ok {
		z.Areas = slices.Clone(z.Areas)
		return z
	}
	s.zones[id] = ZoneState{}
	s.dirty = true
	return ZoneState{}
}

// LookupZone returns the zone's state without creating it
func (s *Store) LookupZone(id string) (ZoneState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[id]
	z.Areas = slices.Clone(z.Areas)
	return z, ok
}

// PutZone stores the zone's state
func (s *Store) PutZone(id string, z ZoneState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z.Areas = slices.Clone(z.Areas)
	s.zones[id] = z
	s.dirty = true
}

// AreaIDs returns every known area id in sorted order
func (s *Store) AreaIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.areas))
	for id := range s.areas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ZoneIDs returns every known zone id in sorted order
func (s *Store) ZoneIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ZoneOf returns the zone listing the area, or DefaultZone
func (s *Store) ZoneOf(areaID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if slices.Contains(s.zones[id].Areas, areaID) {
			return id
		}
	}
	return DefaultZone
}

// LockAreas locks the given areas in sorted order and returns the unlock func
func (s *Store) LockAreas(ids ...string) func() {
	return s.lockKeys(areaKeys(ids))
}

// LockZone locks the zone first, then each member area in sorted order
func (s *Store) LockZone(zoneID string, areaIDs []string) func() {
	zoneUnlock := s.lockKeys([]string{"zone:" + zoneID})
	areaUnlock := s.lockKeys(areaKeys(areaIDs))
	return func() {
		areaUnlock()
		zoneUnlock()
	}
}

func areaKeys(ids []string) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "area:"+id)
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func (s *Store) lockKeys(keys []string) func() {
	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		m := s.mutex(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *Store) mutex(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}
