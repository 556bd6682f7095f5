// Package app runs the single cooperative loop that ties the PTY
// channel, the terminal display, the assistant pane, and the input
// router together: one iteration drains pending input, pumps PTY
// output through an adaptively sized read, drains AI session updates,
// and renders if the gate says enough has changed since the last
// frame.
package app

import (
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/assistantview"
	"github.com/trybotster/termsuite/internal/commandlog"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/input"
	"github.com/trybotster/termsuite/internal/queryfilter"
	"github.com/trybotster/termsuite/internal/security"
)

const (
	// inputPollBudget bounds how long a single iteration spends
	// draining queued tcell events before moving on to PTY output.
	inputPollBudget = time.Millisecond

	// ptyBatchBaseline is the default read size handed to the PTY
	// channel each iteration.
	ptyBatchBaseline = 800 * 1024
	// ptyBatchCeiling is the batch size adopted once the loop has
	// seen several consecutive productive reads in a row, so a
	// chatty process (e.g. `yes`, a large build log) is drained in
	// fewer, larger gulps instead of many small ones.
	ptyBatchCeiling = 2400 * 1024
	// productiveStreak is how many consecutive iterations must
	// produce output before the batch size ramps up to the ceiling.
	productiveStreak = 5

	// renderMinInterval is how often the loop will render purely
	// because PTY output arrived (roughly 125fps).
	renderMinInterval = time.Second / 125
	// renderIdleInterval is the maximum time the loop will go
	// without a render even with no fresh output (roughly 32fps),
	// so a blinking cursor or clock still advances.
	renderIdleInterval = time.Second / 32

	// idleMargin is subtracted from the remaining frame budget
	// before sleeping, so the next iteration always has headroom to
	// poll input again before the following render deadline.
	idleMargin = time.Millisecond
)

// PTYReader is the subset of ptychan.Channel the loop pumps output
// from, resizes, and injects gated AI commands into.
type PTYReader interface {
	Read(maxBytes int, cursor queryfilter.CursorProvider) (hadOutput bool, filtered []byte, queryLog []string)
	Err() error
	Resize(rows, cols uint16) error
	InjectVisible(cmd string) error
}

// Screen is the subset of tcell.Screen the loop drives.
type Screen interface {
	PollEvent() tcell.Event
	Show()
	Size() (int, int)
}

// DebugLine is the renderer's always-available debug line: the one
// piece of state only the loop owns (the adaptive PTY read batch
// size) is handed in just before a frame is drawn; the renderer reads
// scroll offset and active pane itself from its own collaborators.
type DebugLine interface {
	SetBatchSize(n int)
}

// Loop owns one run of the cooperative event loop.
type Loop struct {
	screen Screen
	pty    PTYReader
	disp   *display.Display
	view   *assistantview.View
	router *input.Router
	ai     *aisession.Manager
	log    *commandlog.Log
	debug  DebugLine

	batchSize     int
	productiveRun int
	lastRender    time.Time
	lastSplit     int

	// armed holds, per session, a command the security gate answered
	// RequireConfirmation for; an identical second confirm executes it.
	armed map[aisession.ID]string

	render func()

	done chan struct{}
}

// New creates a Loop wired to its collaborators. render is called
// whenever the render gate decides a frame is due.
func New(screen Screen, pty PTYReader, disp *display.Display, view *assistantview.View, router *input.Router, ai *aisession.Manager, log *commandlog.Log, debug DebugLine, render func()) *Loop {
	return &Loop{
		screen:    screen,
		pty:       pty,
		disp:      disp,
		view:      view,
		router:    router,
		ai:        ai,
		log:       log,
		debug:     debug,
		batchSize: ptyBatchBaseline,
		lastSplit: router.SplitRatio(),
		armed:     make(map[aisession.ID]string),
		render:    render,
		done:      make(chan struct{}),
	}
}

// Stop signals Run to exit after its current iteration.
func (l *Loop) Stop() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// Run drives the loop until Stop is called or the PTY channel
// reports a terminal error.
func (l *Loop) Run() {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		frameStart := time.Now()

		inputEvents := l.drainInput(frameStart)
		if l.router.QuitRequested() {
			return
		}
		// A separator drag changes the split ratio without a tcell
		// resize event; re-layout both panes when it moves.
		if sr := l.router.SplitRatio(); sr != l.lastSplit {
			l.lastSplit = sr
			w, h := l.screen.Size()
			l.handleResize(w, h)
		}
		hadOutput := l.pumpPTY()
		l.drainAI()

		l.updateBatchSize(hadOutput)

		if l.shouldRender(frameStart, inputEvents, hadOutput) {
			l.debug.SetBatchSize(l.batchSize)
			l.render()
			l.lastRender = frameStart
		}

		// A dead shell still gets its remaining queued bytes drained
		// (one batch per iteration) before the loop ends.
		if l.pty.Err() != nil && !hadOutput {
			return
		}

		if !inputEvents && !hadOutput {
			l.sleepRemainder(frameStart)
		}
	}
}

// drainInput polls tcell events until inputPollBudget elapses or the
// event queue runs dry, dispatching each into the input router.
func (l *Loop) drainInput(frameStart time.Time) bool {
	any := false
	for time.Since(frameStart) < inputPollBudget {
		ev := pollNonBlocking(l.screen)
		if ev == nil {
			break
		}
		any = true
		switch e := ev.(type) {
		case *tcell.EventKey:
			l.router.HandleKey(e)
		case *tcell.EventMouse:
			l.router.HandleMouse(e)
		case *tcell.EventResize:
			w, h := e.Size()
			l.handleResize(w, h)
		}
	}
	return any
}

func (l *Loop) handleResize(width, height int) {
	splitCol := width * l.router.SplitRatio() / 100
	l.router.SetGeometry(input.Geometry{
		Width: width, Height: height,
		SeparatorCol:       splitCol,
		AssistantInputRows: 3,
	})
	l.disp.Resize(height, splitCol)
	l.view.SetWidth(width - splitCol - 1)
	l.pty.Resize(uint16(height), uint16(splitCol))
}

// pumpPTY reads one adaptively-sized batch from the PTY channel and
// feeds it to the display and command log. Query-filter log lines ride
// along to the debug logger.
func (l *Loop) pumpPTY() bool {
	hadOutput, data, queryLog := l.pty.Read(l.batchSize, l.disp.CursorPosition)
	for _, line := range queryLog {
		slog.Debug("query filter", "event", line)
	}
	if hadOutput {
		l.disp.Process(data)
		l.log.AppendOutput(string(data))
	}
	return hadOutput
}

// drainAI nonblockingly drains every queued AI session update and
// applies it to the assistant view.
func (l *Loop) drainAI() {
	for {
		u, ok := l.ai.RecvUpdate()
		if !ok {
			return
		}
		switch u.Kind {
		case aisession.UpdateChunk:
			l.view.ApplyChunk(u.SessionID, u.Text)
		case aisession.UpdateEnd:
			l.view.FinalizeAssistantMessage(u.SessionID)
		case aisession.UpdateError:
			l.view.FinalizeAssistantMessage(u.SessionID)
			l.view.PushSystemMessage(u.SessionID, "error: "+u.Err.Error())
			slog.Error("ai stream error", "session", u.SessionID, "error", u.Err)
		case aisession.UpdateCommandSuggestion:
			l.view.ShowCommandSuggestion(u.SessionID, u.Commands)
		case aisession.UpdateExecuteCommand:
			l.executeAiCommand(u.SessionID, u.Text)
		}
	}
}

// executeAiCommand routes a confirmed suggestion through the security
// gate and, when allowed, injects it into the PTY as a visible
// command. RequireConfirmation arms the command and surfaces the
// reason so an identical second confirm executes it; Deny surfaces the
// reason and never touches the PTY.
func (l *Loop) executeAiCommand(id aisession.ID, cmd string) {
	decision := security.GateCommand(cmd)
	switch decision.Action {
	case security.Execute:
		l.runAiCommand(id, cmd)
	case security.Confirm:
		if l.armed[id] == cmd {
			l.runAiCommand(id, cmd)
			return
		}
		l.armed[id] = cmd
		l.view.PushSystemMessage(id, decision.Reason+"; confirm again to run")
	case security.Block:
		delete(l.armed, id)
		l.ai.RejectSuggestion(id)
		l.view.RejectCommand(id)
		l.view.PushSystemMessage(id, "blocked: "+decision.Reason)
	}
}

func (l *Loop) runAiCommand(id aisession.ID, cmd string) {
	delete(l.armed, id)
	if err := l.pty.InjectVisible(cmd); err != nil {
		slog.Error("inject ai command", "error", err)
		l.view.PushSystemMessage(id, "error: could not send the command to the shell")
		return
	}
	l.ai.AcceptSuggestion(id, l.suggestionIndexFor(id, cmd))
	l.view.RejectCommand(id)
}

// suggestionIndexFor resolves cmd back to its position in id's pending
// suggestion, so the accept decision records the command the user was
// actually shown.
func (l *Loop) suggestionIndexFor(id aisession.ID, cmd string) int {
	if p, ok := l.ai.GetPendingSuggestions(id); ok {
		for i, c := range p.Commands {
			if c.Command == cmd {
				return i
			}
		}
	}
	return 0
}

// updateBatchSize ramps the PTY read batch up to the ceiling after
// productiveStreak consecutive productive iterations, and resets to
// baseline the moment a read comes up empty.
func (l *Loop) updateBatchSize(hadOutput bool) {
	if !hadOutput {
		l.productiveRun = 0
		l.batchSize = ptyBatchBaseline
		return
	}
	l.productiveRun++
	if l.productiveRun >= productiveStreak {
		l.batchSize = ptyBatchCeiling
	}
}

// shouldRender implements the render gate: always render on fresh
// input, render on output if renderMinInterval has passed, and render
// regardless if renderIdleInterval has passed since the last frame.
func (l *Loop) shouldRender(now time.Time, hadInput, hadOutput bool) bool {
	if hadInput {
		return true
	}
	since := now.Sub(l.lastRender)
	if hadOutput && since >= renderMinInterval {
		return true
	}
	return since >= renderIdleInterval
}

// sleepRemainder sleeps out the rest of the idle render interval,
// leaving idleMargin so the next iteration can still poll input
// before the following deadline.
func (l *Loop) sleepRemainder(frameStart time.Time) {
	elapsed := time.Since(frameStart)
	remaining := renderIdleInterval - elapsed - idleMargin
	if remaining > 0 {
		time.Sleep(remaining)
	}
}

// pollNonBlocking returns the next queued tcell event, or nil if none
// is available right now. If the screen has HasPendingEvent, PollEvent
// is called only when that reports a queued event; a screen without
// HasPendingEvent goes straight to PollEvent, which blocks until an
// event arrives.
func pollNonBlocking(s Screen) tcell.Event {
	type poller interface {
		HasPendingEvent() bool
	}
	if p, ok := s.(poller); ok && !p.HasPendingEvent() {
		return nil
	}
	return s.PollEvent()
}
