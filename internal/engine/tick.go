package engine

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/rhythm"
)

// PhaseResetPolicy decides what a phase-boundary reset does to power state
type PhaseResetPolicy string

const (
	// PreservePower clears midpoints only
	PreservePower PhaseResetPolicy = "preserve_power"
	// ClearPower also marks every reset area off
	ClearPower PhaseResetPolicy = "clear_power"
)

// Assert re-emits the current target of every circadian area, skipping
// grouping areas. Returns the number of areas emitted.
func (e *Engine) Assert() int {
	n := 0
	for _, id := range e.store.AreaIDs() {
		if e.IsGroup(id) {
			continue
		}
		if e.assertArea(id) {
			n++
		}
	}
	return n
}

func (e *Engine) assertArea(id string) bool {
	unlock := e.store.LockAreas(id)
	defer unlock()

	a := e.store.Area(id)
	if !a.IsCircadian {
		return false
	}
	r, _ := e.rhythmFor(id)
	// errors are logged by submit; the next tick retries
	_ = e.emit(id, a, r, e.transition)
	return true
}

// ZoneRhythms maps every zone to the rhythm it follows
func (e *Engine) ZoneRhythms() map[string]rhythm.Rhythm {
	out := make(map[string]rhythm.Rhythm)
	for _, id := range e.store.ZoneIDs() {
		out[id] = e.zoneRhythm(id)
	}
	return out
}

// PhaseReset clears the midpoints of the given zones and their non-frozen
// areas. Called by the scheduler when a phase boundary or solar midnight is
// crossed.
func (e *Engine) PhaseReset(policy PhaseResetPolicy, reason string, zoneIDs []string) {
	var areas, zones int

	for _, zoneID := range zoneIDs {
		_, members, unlock := e.lockZone(func() (string, []string) {
			return zoneID, e.zoneMembers(zoneID)
		})

		z := e.store.Zone(zoneID)
		if !z.Frozen() && (z.BrightnessMid != nil || z.ColorMid != nil) {
			z.BrightnessMid = nil
			z.ColorMid = nil
			e.store.PutZone(zoneID, z)
			zones++
		}

		for _, id := range members {
			a := e.store.Area(id)
			if a.Frozen() {
				continue
			}
			a.ResetRuntime()
			if policy == ClearPower {
				a.IsOn = false
			}
			e.store.PutArea(id, a)
			areas++
		}
		unlock()
	}

	log.Info().
		Str("reason", reason).
		Str("policy", string(policy)).
		Int("areas", areas).
		Int("zones", zones).
		Msg("Phase reset")

	if e.ledger != nil {
		err := e.ledger.Append(ledger.Entry{
			InvocationID: ledger.NewInvocationID(),
			EventType:    ledger.EventPhaseReset,
			Target:       strings.Join(zoneIDs, ","),
			Source:       "scheduler",
			Timestamp:    e.now(),
			Payload: map[string]any{
				"reason": reason,
				"policy": string(policy),
				"areas":  areas,
				"zones":  zones,
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to record phase reset")
		}
	}
}
