// Package termstate guards the terminal's raw mode and alternate
// screen across the program's lifetime, guaranteeing both are
// restored on every exit path, panics included. It is a reusable
// scoped resource instead of a deferred closure copy-pasted into
// every binary's main.
package termstate

import (
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
)

// exitAltScreen, showCursor, resetAttrs are written raw on release so
// the terminal recovers even when the screen object is wedged.
const (
	exitAltScreen = "\033[?1049l"
	showCursor    = "\033[?25h"
	resetAttrs    = "\033[0m"
)

// Guard restores terminal state exactly once, however the program
// exits. Acquire it at startup, immediately after the screen enters
// alternate-screen/raw mode, and defer Guard.RecoverAndRelease() in
// the function that runs the app.
type Guard struct {
	screen   tcell.Screen
	released bool
}

// NewGuard wraps screen, which must already be in alternate-screen,
// raw-mode operation.
func NewGuard(screen tcell.Screen) *Guard {
	return &Guard{screen: screen}
}

// Release finalizes the tcell screen if still live, then writes the
// raw restoration sequences directly, so the terminal is sane even if
// the screen object itself is already in a bad state.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true

	if g.screen != nil {
		g.screen.Fini()
	}
	fmt.Fprint(os.Stdout, exitAltScreen)
	fmt.Fprint(os.Stdout, showCursor)
	fmt.Fprint(os.Stdout, resetAttrs)
}

// RecoverAndRelease is deferred right after the guard is acquired, so
// it runs after any cleanup deferred later: it releases the guard and,
// if the call stack is unwinding due to a panic, recovers it, prints
// the panic value to stderr and exits with status 1.
func (g *Guard) RecoverAndRelease() {
	g.Release()
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "\n\nPANIC: %v\n", r)
		os.Exit(1)
	}
}
