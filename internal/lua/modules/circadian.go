package modules

import (
	lua "github.com/yuin/gopher-lua"
)

// StatusFunc returns the current status of an area as plain values
type StatusFunc func(areaID string) map[string]any

// CircadianModule gives scripts read access to area status:
//
//	local c = require("circadian")
//	local st = c.status("kitchen")
//	if st.is_on then ... end
type CircadianModule struct {
	status StatusFunc
}

// NewCircadianModule creates the module
func NewCircadianModule(status StatusFunc) *CircadianModule {
	return &CircadianModule{status: status}
}

// Loader is the module loader for Lua
func (m *CircadianModule) Loader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "status", L.NewFunction(m.areaStatus))
	L.Push(mod)
	return 1
}

func (m *CircadianModule) areaStatus(L *lua.LState) int {
	id := L.CheckString(1)
	if m.status == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(MapToLuaTable(L, m.status(id)))
	return 1
}
