package engine

import (
	"slices"

	"github.com/dokzlo13/circadiand/internal/state"
)

// zoneMembers returns the zone's areas, with extra included
func (e *Engine) zoneMembers(zoneID string, extra ...string) []string {
	ids := e.store.Zone(zoneID).Areas
	for _, id := range extra {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// lockZone locks a zone and its members. Both are resolved again once the
// locks are held and the locks are retaken if a topology sync moved them.
func (e *Engine) lockZone(resolve func() (string, []string)) (string, []string, func()) {
	zoneID, members := resolve()
	for {
		unlock := e.store.LockZone(zoneID, members)
		gotZone, gotMembers := resolve()
		if gotZone == zoneID && slices.Equal(gotMembers, members) {
			return zoneID, members, unlock
		}
		unlock()
		zoneID, members = gotZone, gotMembers
	}
}

// gloUp pushes the area's triple to its zone and every other member
func (e *Engine) gloUp(target string, _ Params) (outcome, error) {
	zoneID, members, unlock := e.lockZone(func() (string, []string) {
		z := e.store.ZoneOf(target)
		return z, e.zoneMembers(z, target)
	})
	defer unlock()

	src := e.store.Area(target)
	z := e.store.Zone(zoneID)
	z.Triple = src.Triple
	e.store.PutZone(zoneID, z)

	r := e.zoneRhythm(zoneID)
	var out outcome
	out.areas = append(out.areas, target)
	for _, id := range members {
		if id == target {
			continue
		}
		a := e.store.Area(id)
		a.Triple = src.Triple
		e.store.PutArea(id, a)
		out.touch(id, e.emit(id, a, r, e.actionTransition))
	}
	return out, nil
}

// gloDown pulls the zone's triple into the area
func (e *Engine) gloDown(target string, _ Params) (outcome, error) {
	zoneID, _, unlock := e.lockZone(func() (string, []string) {
		return e.store.ZoneOf(target), []string{target}
	})
	defer unlock()

	z := e.store.Zone(zoneID)
	a := e.store.Area(target)
	noop := state.InSync(a.Triple, z.Triple)
	a.Triple = z.Triple
	e.store.PutArea(target, a)

	out := outcome{noop: noop}
	out.touch(target, e.emit(target, a, e.zoneRhythm(zoneID), e.actionTransition))
	return out, nil
}

// gloReset clears the triple of a zone and all its members. The target may
// name the zone itself or any area in it.
func (e *Engine) gloReset(target string, _ Params) (outcome, error) {
	zoneID, members, unlock := e.lockZone(func() (string, []string) {
		if slices.Contains(e.store.ZoneIDs(), target) {
			return target, e.zoneMembers(target)
		}
		z := e.store.ZoneOf(target)
		return z, e.zoneMembers(z, target)
	})
	defer unlock()

	z := e.store.Zone(zoneID)
	z.Triple = state.Triple{}
	e.store.PutZone(zoneID, z)

	r := e.zoneRhythm(zoneID)
	var out outcome
	for _, id := range members {
		a := e.store.Area(id)
		a.Triple = state.Triple{}
		e.store.PutArea(id, a)
		out.touch(id, e.emit(id, a, r, e.actionTransition))
	}
	return out, nil
}
