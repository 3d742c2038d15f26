// Package lua runs user scripts that remap switch buttons.
//
// A script may define a global function
//
//	function map_button(switch_id, event, default_action, areas)
//
// returning the action to run, "none" to swallow the event, or nil to keep
// the default.
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/circadiand/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// MapFunction is the global a script defines to remap buttons
const MapFunction = "map_button"

// NoAction is what a script returns to swallow an event
const NoAction = "none"

// LuaWork is executed on the VM goroutine. All Lua access goes through it.
type LuaWork func(ctx context.Context)

// Runtime owns one Lua VM and the goroutine that drives it
type Runtime struct {
	L    *lua.LState
	name string

	workQueue chan LuaWork

	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a runtime with the log and circadian modules preloaded
func NewRuntime(name string, status modules.StatusFunc) *Runtime {
	L := lua.NewState()
	L.PreloadModule("log", modules.NewLogModule(name).Loader)
	L.PreloadModule("circadian", modules.NewCircadianModule(status).Loader)

	return &Runtime{
		L:         L,
		name:      name,
		workQueue: make(chan LuaWork, 100),
		closing:   make(chan struct{}),
	}
}

// Close stops accepting work. Run closes the VM on its way out.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
}

// LoadFile executes a script file. Must be called before Run.
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script %s: %w", path, err)
	}
	log.Info().Str("script", path).Msg("Lua script loaded")
	return nil
}

// LoadString executes script source. Must be called before Run.
func (r *Runtime) LoadString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}

// Do queues work and waits for it to finish
func (r *Runtime) Do(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Run is the only goroutine that touches the VM. It exits when ctx is
// cancelled or the runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	defer r.L.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.execute(ctx, work)
		}
	}
}

func (r *Runtime) execute(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("script", r.name).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// MapButton asks the script which action a button event should run. Without
// a map_button function, or when it returns nil, def is returned.
func (r *Runtime) MapButton(ctx context.Context, switchID, event, def string, areas []string) (string, error) {
	action := def
	err := r.Do(ctx, func(context.Context) error {
		fn, ok := r.L.GetGlobal(MapFunction).(*lua.LFunction)
		if !ok {
			return nil
		}

		err := r.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
			lua.LString(switchID),
			lua.LString(event),
			lua.LString(def),
			modules.GoToLuaValue(r.L, areas),
		)
		if err != nil {
			return fmt.Errorf("failed to call %s: %w", MapFunction, err)
		}

		ret := r.L.Get(-1)
		r.L.Pop(1)
		if s, ok := ret.(lua.LString); ok {
			action = string(s)
		}
		return nil
	})
	if err != nil {
		return def, err
	}
	if action == NoAction {
		return "", nil
	}
	return action, nil
}
