package app

import (
	"context"

	"github.com/dokzlo13/circadiand/internal/config"
	"github.com/dokzlo13/circadiand/internal/engine"
	luart "github.com/dokzlo13/circadiand/internal/lua"
)

// LuaService owns one Lua runtime per distinct switch script
type LuaService struct {
	runtimes map[string]*luart.Runtime // script path -> runtime
}

// NewLuaService loads every script named by a switch
func NewLuaService(cfg *config.Config, eng *engine.Engine) (*LuaService, error) {
	s := &LuaService{runtimes: make(map[string]*luart.Runtime)}
	status := statusFunc(eng)

	for _, sw := range cfg.Switches {
		if sw.Script == "" {
			continue
		}
		if _, ok := s.runtimes[sw.Script]; ok {
			continue
		}
		rt := luart.NewRuntime(sw.Script, status)
		if err := rt.LoadFile(sw.Script); err != nil {
			rt.Close()
			s.Close()
			return nil, err
		}
		s.runtimes[sw.Script] = rt
	}
	return s, nil
}

// Runtime returns the runtime for a script, or nil
func (s *LuaService) Runtime(script string) *luart.Runtime {
	return s.runtimes[script]
}

// Start begins each runtime's worker goroutine. It is the only goroutine
// that touches that VM.
func (s *LuaService) Start(ctx context.Context) {
	for _, rt := range s.runtimes {
		go rt.Run(ctx)
	}
}

// Close closes every runtime
func (s *LuaService) Close() {
	for _, rt := range s.runtimes {
		rt.Close()
	}
}

// statusFunc exposes area status to scripts as plain values
func statusFunc(eng *engine.Engine) func(string) map[string]any {
	return func(areaID string) map[string]any {
		st, ok := eng.LookupArea(areaID)
		if !ok {
			return nil
		}
		m := map[string]any{
			"id":           st.ID,
			"zone":         st.Zone,
			"is_circadian": st.IsCircadian,
			"is_on":        st.IsOn,
			"brightness":   st.Brightness,
			"kelvin":       st.Kelvin,
			"phase":        string(st.Phase),
			"frozen":       st.Frozen,
			"boosted":      st.Boosted,
			"in_sync":      st.InSyncWithZone,
		}
		if st.FrozenAt != nil {
			m["frozen_at"] = *st.FrozenAt
		}
		return m
	}
}
