package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/novaarena/core/internal/network"
	"github.com/novaarena/core/internal/rules"
	"github.com/novaarena/core/internal/statemachine"
	"github.com/novaarena/core/internal/wire"
	"github.com/novaarena/core/internal/window"
	"github.com/novaarena/core/internal/world"
)

// pollWindowInput drains the window and returns the non-command events;
// command lines ("/host", "/player 2", ...) are intercepted and consumed
// here so every mode gets the same command surface for free.
func (r *Router) pollWindowInput() []window.InputEvent {
	raw := r.win.PollInput()
	out := raw[:0]
	for _, ev := range raw {
		if ev.Kind == "chat" && r.handleCommand(ev.Text) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// formatHighscore renders a score snapshot as a compact chat-style line,
// skipping slots nobody has ever funded.
func formatHighscore(hs wire.Highscore) string {
	var b strings.Builder
	b.WriteString("highscores:")
	for id, score := range hs.Scores {
		if score == 0 {
			continue
		}
		fmt.Fprintf(&b, " p%d=%d", id, score)
	}
	return b.String()
}

// --- single-player -----------------------------------------------------

type singlePlayState struct {
	r *Router
}

func (s *singlePlayState) Initialize(sm *statemachine.StateMachine) error {
	s.r.players.Reset()
	s.r.world = world.NewAuthoritative(s.r.players)
	s.r.players.AddLocalPlayer(-1)
	return nil
}

func (s *singlePlayState) Enter(sm *statemachine.StateMachine) {}

func (s *singlePlayState) HandleInput(sm *statemachine.StateMachine) {
	local, ok := s.r.players.LocalPlayer()
	if !ok {
		return
	}
	for _, ev := range s.r.pollWindowInput() {
		switch ev.Kind {
		case "create_object":
			s.r.world.AddGameObject(local.ID, ev.Radius, ev.PX, ev.PY, ev.VX, ev.VY)
		case "remove_near_mouse":
			s.r.world.RemoveNearMouse(local.ID, ev.PX, ev.PY, ev.Radius)
		case "chat":
			s.r.win.ShowMessage(local.ID, ev.Text)
		}
	}
}

func (s *singlePlayState) Update(dt float64) {
	s.r.world.Step()
	if hs, ok := s.r.world.MaybeHighscore(); ok {
		s.r.win.ShowMessage(rules.SystemPlayerID, formatHighscore(hs))
	}
	s.r.win.Render(s.r.world.Snapshot())
}

func (s *singlePlayState) Draw() {}

func (s *singlePlayState) Exit(sm *statemachine.StateMachine) {
	s.r.world = nil
}

func (s *singlePlayState) Shutdown() {}

// --- host ---------------------------------------------------------------

type hostState struct {
	r          *Router
	syncOffset int
}

func (s *hostState) Initialize(sm *statemachine.StateMachine) error {
	s.r.players.Reset()
	s.r.world = world.NewAuthoritative(s.r.players)

	port := rules.DefaultPort
	if args := s.r.currentModeArgs(); len(args) > 0 {
		if p, err := strconv.Atoi(args[0]); err == nil {
			port = p
		}
	}

	srv, err := network.ListenServer(port, s.r.players, s.r.log)
	if err != nil {
		return err
	}
	srv.OnEvent = s.onNetworkEvent
	srv.OnTimeout = s.r.world.RemovePlayerGameObjects
	s.r.server = srv
	go srv.Run()

	s.r.players.AddLocalPlayer(-1)
	return nil
}

func (s *hostState) onNetworkEvent(playerID uint16, event any) {
	switch e := event.(type) {
	case wire.Message:
		s.r.win.ShowMessage(playerID, e.Text)
		s.r.server.Broadcast(e)
	case wire.AddGameObject:
		s.r.world.AddGameObject(playerID, float64(e.Radius), float64(e.PX), float64(e.PY), float64(e.VX), float64(e.VY))
	case wire.RemoveGameObject:
		s.r.world.RemoveGameObject(e.PlayerID, e.ObjectID)
	}
}

func (s *hostState) Enter(sm *statemachine.StateMachine) {}

func (s *hostState) HandleInput(sm *statemachine.StateMachine) {
	local, ok := s.r.players.LocalPlayer()
	if !ok {
		return
	}
	for _, ev := range s.r.pollWindowInput() {
		switch ev.Kind {
		case "create_object":
			s.r.world.AddGameObject(local.ID, ev.Radius, ev.PX, ev.PY, ev.VX, ev.VY)
		case "remove_near_mouse":
			s.r.world.RemoveNearMouse(local.ID, ev.PX, ev.PY, ev.Radius)
		case "chat":
			s.r.win.ShowMessage(local.ID, ev.Text)
			s.r.server.Broadcast(wire.Message{PlayerID: local.ID, Text: ev.Text})
		}
	}
}

func (s *hostState) Update(dt float64) {
	s.r.world.Step()
	s.r.server.ReapTimeouts()

	batch, next := s.r.world.BuildSync(s.syncOffset)
	s.syncOffset = next
	if len(s.r.world.Snapshot()) > 0 && s.syncOffset >= len(s.r.world.Snapshot()) {
		s.syncOffset = 0
	}
	s.r.server.Broadcast(batch)

	if hs, ok := s.r.world.MaybeHighscore(); ok {
		s.r.server.Broadcast(hs)
		s.r.win.ShowMessage(rules.SystemPlayerID, formatHighscore(hs))
	}

	s.r.win.Render(s.r.world.Snapshot())
}

func (s *hostState) Draw() {}

func (s *hostState) Exit(sm *statemachine.StateMachine) {
	if s.r.server != nil {
		s.r.server.Close()
		s.r.server = nil
	}
	s.r.world = nil
}

func (s *hostState) Shutdown() {}

// --- client ---------------------------------------------------------------

type clientState struct {
	r *Router
}

func (s *clientState) Initialize(sm *statemachine.StateMachine) error {
	s.r.players.Reset()
	s.r.world = world.NewMirror()

	addr := "127.0.0.1"
	if args := s.r.currentModeArgs(); len(args) > 0 {
		addr = args[0]
	}
	if !strings.Contains(addr, ":") {
		addr = addr + ":" + strconv.Itoa(rules.DefaultPort)
	}

	cli, err := network.Dial(addr, s.r.log)
	if err != nil {
		return err
	}
	cli.OnEvent = s.onNetworkEvent
	s.r.client = cli
	go cli.Run()
	return nil
}

func (s *clientState) onNetworkEvent(event any) {
	switch e := event.(type) {
	case wire.Connected:
		s.r.players.AddLocalPlayer(int(e.PlayerID))
	case wire.Disconnected:
		s.r.win.ShowMessage(rules.SystemPlayerID, e.Reason.String())
		s.r.SetMode(ModeSingle)
	case wire.SwitchPlayer:
		s.r.players.SwitchPlayer(e.Old, e.New)
	case wire.Message:
		s.r.win.ShowMessage(e.PlayerID, e.Text)
	case wire.GameObjectSync:
		s.r.world.ApplyReplication(e)
	case wire.Highscore:
		s.r.win.ShowMessage(rules.SystemPlayerID, formatHighscore(e))
	}
}

func (s *clientState) Enter(sm *statemachine.StateMachine) {}

func (s *clientState) HandleInput(sm *statemachine.StateMachine) {
	local, ok := s.r.players.LocalPlayer()
	if !ok {
		return
	}
	for _, ev := range s.r.pollWindowInput() {
		switch ev.Kind {
		case "create_object":
			s.r.client.Send(wire.AddGameObject{
				Radius:   float32(ev.Radius),
				PX:       float32(ev.PX),
				PY:       float32(ev.PY),
				VX:       float32(ev.VX),
				VY:       float32(ev.VY),
				PlayerID: local.ID,
			})
		case "remove_near_mouse":
			// Source behavior: routed straight to the local World with no
			// network effect. The next GameObjectSync batch repopulates
			// anything removed here that the host still considers live.
			s.r.world.RemoveNearMouse(local.ID, ev.PX, ev.PY, ev.Radius)
		case "chat":
			s.r.client.Send(wire.Message{PlayerID: local.ID, Text: ev.Text})
		}
	}
}

func (s *clientState) Update(dt float64) {
	if s.r.client != nil {
		s.r.client.Ping()
	}
	s.r.win.Render(s.r.world.Snapshot())
}

func (s *clientState) Draw() {}

func (s *clientState) Exit(sm *statemachine.StateMachine) {
	if s.r.client != nil {
		s.r.client.Close()
		s.r.client = nil
	}
	s.r.world = nil
}

func (s *clientState) Shutdown() {}
