// Command novaarena runs the authoritative simulation core. With no
// arguments it starts in single-player mode; given a host[:port] argument
// it connects as a client. "/host [port]" and "/single" typed at the
// console switch modes at runtime, same as the in-process chat commands.
package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/novaarena/core/internal/config"
	"github.com/novaarena/core/internal/consolewindow"
	"github.com/novaarena/core/internal/corelog"
	"github.com/novaarena/core/internal/eventbus"
	"github.com/novaarena/core/internal/router"
	"github.com/novaarena/core/internal/rules"
	"github.com/novaarena/core/internal/runner"
	"github.com/novaarena/core/internal/scheduler"
	"github.com/novaarena/core/internal/serialize"
)

const leaderboardFile = "leaderboard.json"

func main() {
	log := corelog.New("main")
	cfg := config.Load()
	log.Printf("%s starting, max_players=%d, port=%d", rules.AppName, cfg.MaxPlayers, cfg.Port)

	board, err := serialize.LoadFile(leaderboardFile)
	if err != nil {
		log.Printf("leaderboard: %v", err)
	}

	win := consolewindow.New()
	r := router.New(win)

	for _, entry := range board.Entries {
		r.Players().AddScore(entry.PlayerID, entry.Score)
	}

	if len(os.Args) > 1 {
		if err := r.SetMode(router.ModeClient, os.Args[1]); err != nil {
			log.Fatalf("connect to %s: %v", os.Args[1], err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		saveLeaderboard(log, r)
		r.Exit()
		os.Exit(0)
	}()

	if overlayPath, err := filepath.Abs("overlay.json"); err == nil {
		if stop, err := config.WatchOverlay(overlayPath, func(o config.Overlay) {
			log.Printf("overlay reloaded: %+v", o)
		}); err == nil {
			defer stop()
		}
	}

	bus := eventbus.New()
	bus.Subscribe("tick", func(v any) {
		if dt, ok := v.(time.Duration); ok {
			r.Tick(dt)
		}
	})

	targetFPS := int(time.Second / rules.Step)
	run := runner.New(bus, scheduler.New(targetFPS))
	for {
		run.Step()
	}
}

func saveLeaderboard(log *log.Logger, r *router.Router) {
	var board serialize.Leaderboard
	for id := uint16(0); id < rules.MaxPlayers; id++ {
		if p, ok := r.Players().GetPlayer(id); ok && p.Score != 0 {
			board.Entries = append(board.Entries, serialize.Entry{PlayerID: p.ID, Score: p.Score})
		}
	}
	if err := serialize.SaveFile(leaderboardFile, board); err != nil {
		log.Printf("leaderboard: %v", err)
	}
}
