// Package adminscript is the optional Lua sandbox behind "/admin"-prefixed
// chat commands. It is nil by default: a router with no script loaded never
// touches gopher-lua at all, so the common single-player and small-lobby
// paths pay nothing for it.
package adminscript

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/novaarena/core/internal/resources"
)

// Sandbox runs a single Lua state exposing a narrow host API: score
// adjustment and broadcast messaging, nothing that reaches the network or
// filesystem directly.
type Sandbox struct {
	L     *lua.LState
	store *resources.Store

	// AdjustScore and Broadcast are set by the router before any command
	// runs; they're the only way Lua code can affect the rest of the core.
	AdjustScore func(playerID uint16, delta int)
	Broadcast   func(text string)
}

// New creates a sandbox with no script loaded yet.
func New() *Sandbox {
	s := &Sandbox{L: lua.NewState(), store: resources.New()}
	s.L.SetGlobal("adjust_score", s.L.NewFunction(s.luaAdjustScore))
	s.L.SetGlobal("broadcast", s.L.NewFunction(s.luaBroadcast))
	return s
}

// Close releases the Lua state.
func (s *Sandbox) Close() {
	s.L.Close()
}

// LoadFile executes a Lua script whose contents the caller has already read
// from path, keeping a copy of the source in the sandbox's store under path.
func (s *Sandbox) LoadFile(path string, contents []byte) error {
	s.store.Add(path, contents)
	if err := s.L.DoString(string(contents)); err != nil {
		return fmt.Errorf("adminscript: load %q: %w", path, err)
	}
	return nil
}

// Run invokes the named global Lua function with a single player-id
// argument. The router's "/admin" command only enables or disables the
// sandbox; it does not call Run.
func (s *Sandbox) Run(funcName string, playerID uint16) error {
	fn := s.L.GetGlobal(funcName)
	if fn == lua.LNil {
		return fmt.Errorf("adminscript: function %q not defined", funcName)
	}
	if err := s.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(playerID)); err != nil {
		return fmt.Errorf("adminscript: %q: %w", funcName, err)
	}
	return nil
}

func (s *Sandbox) luaAdjustScore(L *lua.LState) int {
	playerID := uint16(L.CheckNumber(1))
	delta := int(L.CheckNumber(2))
	if s.AdjustScore != nil {
		s.AdjustScore(playerID, delta)
	}
	return 0
}

func (s *Sandbox) luaBroadcast(L *lua.LState) int {
	text := L.CheckString(1)
	if s.Broadcast != nil {
		s.Broadcast(text)
	}
	return 0
}
