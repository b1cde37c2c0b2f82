// Package corelog wraps the standard log.Logger with a fixed
// "[component] " prefix per caller, so every line in a mixed-goroutine log
// stream is attributable at a glance without pulling in a structured
// logging library the rest of the stack never needed.
package corelog

import (
	"log"
	"os"
)

// New returns a logger tagged with a bracketed component name, writing to
// stderr with the standard date/time flags.
func New(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}
