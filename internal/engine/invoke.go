package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/ledger"
)

// ErrUnknownPrimitive is returned by Invoke for names it does not know
var ErrUnknownPrimitive = errors.New("unknown primitive")

// Primitive names
const (
	EnableCircadian      = "enable_circadian"
	CircadianOff         = "circadian_off"
	LightsOn             = "lights_on"
	LightsOff            = "lights_off"
	LightsToggle         = "lights_toggle"
	LightsToggleMultiple = "lights_toggle_multiple"
	StepUp               = "step_up"
	StepDown             = "step_down"
	BrightUp             = "bright_up"
	BrightDown           = "bright_down"
	ColorUp              = "color_up"
	ColorDown            = "color_down"
	FreezeToggle         = "freeze_toggle"
	FreezeToggleMultiple = "freeze_toggle_multiple"
	Reset                = "reset"
	Set                  = "set"
	Broadcast            = "broadcast"
	ToggleWakeBed        = "toggle_wake_bed"
	GloUp                = "glo_up"
	GloDown              = "glo_down"
	GloReset             = "glo_reset"
	Boost                = "boost"
	MotionOnOnly         = "motion_on_only"
	MotionOnOff          = "motion_on_off"
	ContactOff           = "contact_off"
)

// Params carries optional primitive arguments
type Params struct {
	Preset   string   `json:"preset,omitempty"`
	FrozenAt *float64 `json:"frozen_at,omitempty"`
	CopyFrom string   `json:"copy_from,omitempty"`
	Areas    []string `json:"areas,omitempty"`
	Amount   int      `json:"amount,omitempty"`
	Seconds  float64  `json:"seconds,omitempty"`
	Forever  bool     `json:"forever,omitempty"`
	Source   string   `json:"source,omitempty"`
}

func (p Params) duration(def time.Duration) time.Duration {
	if p.Seconds <= 0 {
		return def
	}
	return time.Duration(p.Seconds * float64(time.Second))
}

// targets returns the explicit area list, or the single target
func (p Params) targets(target string) []string {
	if len(p.Areas) > 0 {
		ids := slices.Clone(p.Areas)
		slices.Sort(ids)
		return slices.Compact(ids)
	}
	return []string{target}
}

// Applied is the outcome of one Invoke
type Applied struct {
	InvocationID string       `json:"invocation_id"`
	Primitive    string       `json:"primitive"`
	Target       string       `json:"target"`
	Noop         bool         `json:"noop,omitempty"`
	AtLimit      bool         `json:"at_limit,omitempty"`
	Areas        []AreaStatus `json:"areas"`
	Errors       []string     `json:"actuation_errors,omitempty"`
}

// outcome is what a handler reports back to Invoke
type outcome struct {
	areas   []string
	noop    bool
	atLimit bool
	errs    []error
}

func (o *outcome) touch(areaID string, err error) {
	o.areas = append(o.areas, areaID)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: %w", areaID, err))
	}
}

type handler func(target string, p Params) (outcome, error)

// registry maps primitive names to handlers
type registry struct {
	handlers map[string]handler
}

func newRegistry(e *Engine) *registry {
	return &registry{handlers: map[string]handler{
		EnableCircadian:      e.enableCircadian,
		CircadianOff:         e.circadianOff,
		LightsOn:             e.lightsOn,
		LightsOff:            e.lightsOff,
		LightsToggle:         e.lightsToggle,
		LightsToggleMultiple: e.lightsToggleMultiple,
		StepUp:               e.stepUp,
		StepDown:             e.stepDown,
		BrightUp:             e.brightUp,
		BrightDown:           e.brightDown,
		ColorUp:              e.colorUp,
		ColorDown:            e.colorDown,
		FreezeToggle:         e.freezeToggle,
		FreezeToggleMultiple: e.freezeToggleMultiple,
		Reset:                e.reset,
		Set:                  e.set,
		Broadcast:            e.broadcast,
		ToggleWakeBed:        e.toggleWakeBed,
		GloUp:                e.gloUp,
		GloDown:              e.gloDown,
		GloReset:             e.gloReset,
		Boost:                e.boost,
		MotionOnOnly:         e.motionOnOnly,
		MotionOnOff:          e.motionOnOff,
		ContactOff:           e.contactOff,
	}}
}

func (r *registry) get(name string) (handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Primitives returns every primitive name, sorted
func (e *Engine) Primitives() []string {
	names := make([]string, 0, len(e.registry.handlers))
	for name := range e.registry.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke runs a primitive against an area (or zone, for glo_reset).
// Unknown ids are created with defaults. Actuation problems do not fail
// the call; they are reported in Applied.Errors.
func (e *Engine) Invoke(ctx context.Context, primitive, target string, p Params) (Applied, error) {
	applied := Applied{
		InvocationID: ledger.NewInvocationID(),
		Primitive:    primitive,
		Target:       target,
	}
	if err := ctx.Err(); err != nil {
		return applied, err
	}

	h, ok := e.registry.get(primitive)
	if !ok {
		return applied, fmt.Errorf("%w: %q", ErrUnknownPrimitive, primitive)
	}

	out, err := h(target, p)
	if err != nil {
		e.record(applied, p, ledger.EventInvokeError, err)
		return applied, err
	}

	applied.Noop = out.noop
	applied.AtLimit = out.atLimit
	for _, id := range compact(out.areas) {
		applied.Areas = append(applied.Areas, e.AreaStatus(id))
	}
	for _, err := range out.errs {
		applied.Errors = append(applied.Errors, err.Error())
	}

	log.Info().
		Str("primitive", primitive).
		Str("target", target).
		Str("source", p.Source).
		Bool("noop", out.noop).
		Bool("at_limit", out.atLimit).
		Msg("Invoked primitive")

	e.record(applied, p, ledger.EventInvoked, nil)
	return applied, nil
}

func (e *Engine) record(a Applied, p Params, typ ledger.EventType, invokeErr error) {
	if e.ledger == nil {
		return
	}

	entry := ledger.Entry{
		InvocationID: a.InvocationID,
		EventType:    typ,
		Primitive:    a.Primitive,
		Target:       a.Target,
		Source:       p.Source,
		Timestamp:    e.now(),
		Payload: map[string]any{
			"noop":     a.Noop,
			"at_limit": a.AtLimit,
			"areas":    len(a.Areas),
		},
	}
	if invokeErr != nil {
		entry.Error = invokeErr.Error()
	}
	if err := e.ledger.Append(entry); err != nil {
		log.Error().Err(err).Str("primitive", a.Primitive).Msg("Failed to record invocation")
	}
}

func compact(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
