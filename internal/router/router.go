// Package router is the role-aware core of the process: it owns the
// GameMode state machine (single-player, host, client) and is the only
// component that ever decides where an input event or an inbound network
// event should go. Mode switches route through statemachine.StateMachine's
// pending-transition queue, so a chat command like "/host" issued from
// inside a HandleInput callback never deadlocks against the very state
// it's trying to replace.
package router

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/novaarena/core/internal/adminscript"
	"github.com/novaarena/core/internal/corelog"
	"github.com/novaarena/core/internal/network"
	"github.com/novaarena/core/internal/player"
	"github.com/novaarena/core/internal/rules"
	"github.com/novaarena/core/internal/statemachine"
	"github.com/novaarena/core/internal/wire"
	"github.com/novaarena/core/internal/window"
	"github.com/novaarena/core/internal/world"
)

const (
	ModeSingle = "single"
	ModeHost   = "host"
	ModeClient = "client"
)

// Router drives one of three GameMode states at a time. Only one of
// server/client is non-nil depending on the active mode; world and players
// are reset on every mode transition (§ player.Manager.Reset).
type Router struct {
	sm      *statemachine.StateMachine
	win     window.Window
	log     *log.Logger
	players *player.Manager
	world   *world.World

	server *network.Server
	client *network.Client
	admin  *adminscript.Sandbox
}

// New builds a Router sitting idle in single-player mode.
func New(win window.Window) *Router {
	r := &Router{
		sm:      statemachine.NewStateMachine(),
		win:     win,
		log:     corelog.New("router"),
		players: player.New(),
	}
	r.sm.RegisterStateInstance(ModeSingle, &singlePlayState{r: r})
	r.sm.RegisterStateInstance(ModeHost, &hostState{r: r})
	r.sm.RegisterStateInstance(ModeClient, &clientState{r: r})
	r.sm.ChangeState(ModeSingle)
	return r
}

// Players exposes the registry backing the active mode, so a caller can
// persist or restore scores across mode transitions (the registry itself
// is reset on every SetMode, so this must be read before and written after
// a restart, not relied on to survive one).
func (r *Router) Players() *player.Manager {
	return r.players
}

// SetMode requests a transition to a new GameMode. args is mode-specific:
// host takes an optional port string, client takes a "host[:port]"
// address, single takes none. The transition is queued if called from
// inside a HandleInput/Update callback (e.g. from a "/host" chat command),
// so it is always safe to call from a chat command handler.
func (r *Router) SetMode(mode string, args ...string) error {
	if !r.sm.IsStateRegistered(mode) {
		return fmt.Errorf("router: unknown mode %q", mode)
	}
	r.sm.SetContext("mode_args", args)
	return r.sm.ChangeState(mode)
}

// Tick drains window input through the active mode's HandleInput, then
// resolves any queued mode transition and advances the active mode's
// Update — this is the one place per frame the pending-transition queue is
// flushed.
func (r *Router) Tick(dt time.Duration) {
	r.sm.HandleInput()
	r.sm.Update(dt.Seconds())
}

// Exit tears down the active mode's network/world resources. Call it once,
// on process shutdown.
func (r *Router) Exit() {
	r.sm.PopAllStates()
}

// currentModeArgs reads back the args stashed by the most recent SetMode.
func (r *Router) currentModeArgs() []string {
	v, ok := r.sm.GetContext("mode_args")
	if !ok {
		return nil
	}
	args, _ := v.([]string)
	return args
}

// handleCommand intercepts a leading-"/" chat line. It returns true if the
// line was a command (and therefore should not also be broadcast as chat).
func (r *Router) handleCommand(text string) bool {
	if !strings.HasPrefix(text, "/") {
		return false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "/single":
		if err := r.SetMode(ModeSingle); err != nil {
			r.log.Printf("SetMode(single): %v", err)
		}
	case "/host":
		if err := r.SetMode(ModeHost, fields[1:]...); err != nil {
			r.log.Printf("SetMode(host): %v", err)
		}
	case "/connect":
		if len(fields) < 2 {
			r.log.Printf("/connect requires a host[:port] argument")
			break
		}
		if err := r.SetMode(ModeClient, fields[1]); err != nil {
			r.log.Printf("SetMode(client): %v", err)
		}
	case "/player":
		if len(fields) < 2 {
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			r.log.Printf("/player: %v", err)
			break
		}
		r.switchLocalPlayer(uint16(n))
	case "/admin":
		if len(fields) < 2 {
			break
		}
		r.setAdminEnabled(fields[1] == "enable")
	default:
		return false
	}
	return true
}

func (r *Router) switchLocalPlayer(new uint16) {
	local, ok := r.players.LocalPlayer()
	if !ok {
		return
	}
	if err := r.players.SwitchPlayer(local.ID, new); err != nil {
		r.log.Printf("SwitchPlayer: %v", err)
		return
	}
	if r.world != nil {
		if err := r.world.SwitchPlayer(local.ID, new); err != nil {
			r.log.Printf("world.SwitchPlayer: %v", err)
		}
	}
	if r.server != nil {
		r.server.Broadcast(wire.SwitchPlayer{Old: local.ID, New: new})
	}
}

func (r *Router) setAdminEnabled(enable bool) {
	if !enable {
		if r.admin != nil {
			r.admin.Close()
			r.admin = nil
		}
		return
	}
	if r.admin != nil {
		return
	}
	r.admin = adminscript.New()
	r.admin.AdjustScore = r.players.AddScore
	r.admin.Broadcast = func(text string) {
		if r.server != nil {
			r.server.Broadcast(wire.Message{PlayerID: rules.SystemPlayerID, Text: text})
		}
		r.win.ShowMessage(rules.SystemPlayerID, text)
	}
}
