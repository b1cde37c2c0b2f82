// Package consolewindow is a minimal, headless window.Window backed by
// stdin/stdout. It exists only because the core has no real rendering
// surface of its own (see internal/window) and the cmd entrypoint still
// needs something to drive: it turns stdin lines into chat/command input
// and prints an object-count line on render.
package consolewindow

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/novaarena/core/internal/window"
	"github.com/novaarena/core/internal/world"
)

// Window reads one line of stdin per call to PollInput's background
// scanner and treats it as chat (or a command, if router.Router decides it
// is one — consolewindow has no opinion on that).
type Window struct {
	mu      sync.Mutex
	pending []window.InputEvent
}

// New starts the background stdin reader and returns a ready Window.
func New() *Window {
	w := &Window{}
	go w.readStdin()
	return w
}

func (w *Window) readStdin() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		w.mu.Lock()
		w.pending = append(w.pending, window.InputEvent{Kind: "chat", Text: line})
		w.mu.Unlock()
	}
}

// PollInput drains whatever stdin lines arrived since the last call.
func (w *Window) PollInput() []window.InputEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// Render prints a one-line object count summary; a real window would draw
// the scene.
func (w *Window) Render(snapshot []world.Object) {
	fmt.Printf("\r%d object(s) in play   ", len(snapshot))
}

// ShowMessage prints a chat or system line.
func (w *Window) ShowMessage(playerID uint16, text string) {
	fmt.Printf("\n[player %d] %s\n", playerID, text)
}

// Close is a no-op; stdin has nothing to release.
func (w *Window) Close() error { return nil }
