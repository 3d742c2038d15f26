package engine

import (
	"github.com/dokzlo13/circadiand/internal/curve"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

// AreaStatus is the read-only view of one area
type AreaStatus struct {
	ID             string      `json:"id"`
	Zone           string      `json:"zone"`
	IsCircadian    bool        `json:"is_circadian"`
	IsOn           bool        `json:"is_on"`
	Brightness     int         `json:"brightness"`
	Kelvin         int         `json:"kelvin"`
	XY             curve.XY    `json:"xy"`
	Phase          solar.Phase `json:"phase"`
	Frozen         bool        `json:"frozen"`
	FrozenAt       *float64    `json:"frozen_at,omitempty"`
	Boosted        bool        `json:"boosted"`
	InSyncWithZone bool        `json:"in_sync_with_zone"`
}

// AreaStatus evaluates the area at the current time. Values are what the
// area would show when on, even if it is off.
func (e *Engine) AreaStatus(id string) AreaStatus {
	return e.areaStatus(id, e.store.Area(id))
}

// LookupArea is AreaStatus for an area that already exists. Unknown ids
// report false and leave the store untouched.
func (e *Engine) LookupArea(id string) (AreaStatus, bool) {
	a, ok := e.store.LookupArea(id)
	if !ok {
		return AreaStatus{}, false
	}
	return e.areaStatus(id, a), true
}

func (e *Engine) areaStatus(id string, a state.AreaState) AreaStatus {
	r, zoneID := e.rhythmFor(id)
	z, _ := e.store.LookupZone(zoneID)
	res := e.evaluate(a, r)

	return AreaStatus{
		ID:             id,
		Zone:           zoneID,
		IsCircadian:    a.IsCircadian,
		IsOn:           a.IsOn,
		Brightness:     res.Brightness,
		Kelvin:         res.Kelvin,
		XY:             res.XY,
		Phase:          res.Phase,
		Frozen:         a.Frozen(),
		FrozenAt:       a.FrozenAt,
		Boosted:        a.Boosted(e.now()),
		InSyncWithZone: state.InSync(a.Triple, z.Triple),
	}
}

// ZoneStatus is the read-only view of one zone
type ZoneStatus struct {
	ID            string       `json:"id"`
	Rhythm        string       `json:"rhythm"`
	BrightnessMid *float64     `json:"brightness_mid,omitempty"`
	ColorMid      *float64     `json:"color_mid,omitempty"`
	FrozenAt      *float64     `json:"frozen_at,omitempty"`
	Frozen        bool         `json:"frozen"`
	Brightness    int          `json:"brightness"`
	Kelvin        int          `json:"kelvin"`
	AllInSync     bool         `json:"all_in_sync"`
	Areas         []AreaStatus `json:"areas"`
}

// ZoneStatus evaluates the zone's own triple and reports its members
func (e *Engine) ZoneStatus(id string) ZoneStatus {
	return e.zoneStatus(id, e.store.Zone(id))
}

// LookupZone is ZoneStatus for a zone that already exists
func (e *Engine) LookupZone(id string) (ZoneStatus, bool) {
	z, ok := e.store.LookupZone(id)
	if !ok {
		return ZoneStatus{}, false
	}
	return e.zoneStatus(id, z), true
}

func (e *Engine) zoneStatus(id string, z state.ZoneState) ZoneStatus {
	r := e.zoneRhythm(id)

	rt := curve.Runtime{BrightnessMid: z.BrightnessMid, ColorMid: z.ColorMid}
	hour := e.hour()
	if z.FrozenAt != nil {
		hour = *z.FrozenAt
	}
	res := curve.Evaluate(hour, r, rt, e.sunTimes())

	st := ZoneStatus{
		ID:            id,
		Rhythm:        r.Name,
		BrightnessMid: z.BrightnessMid,
		ColorMid:      z.ColorMid,
		FrozenAt:      z.FrozenAt,
		Frozen:        z.Frozen(),
		Brightness:    res.Brightness,
		Kelvin:        res.Kelvin,
		AllInSync:     true,
		Areas:         []AreaStatus{},
	}
	for _, areaID := range z.Areas {
		as, ok := e.LookupArea(areaID)
		if !ok {
			as = e.areaStatus(areaID, state.AreaState{})
		}
		st.AllInSync = st.AllInSync && as.InSyncWithZone
		st.Areas = append(st.Areas, as)
	}
	return st
}

// AreaIDs lists every known area
func (e *Engine) AreaIDs() []string {
	return e.store.AreaIDs()
}

// ZoneIDs lists every known zone, the default zone included
func (e *Engine) ZoneIDs() []string {
	return e.store.ZoneIDs()
}
