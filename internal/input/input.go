// Package input turns raw tcell keyboard and mouse events into PTY
// bytes, assistant-pane edits, and pane/mode transitions. It is the
// single place that knows the keyboard-to-bytes encoding table, the
// xterm SGR mouse-passthrough wire format, and the click-timing rules
// for double/triple click word and line selection.
package input

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/assistantview"
	"github.com/trybotster/termsuite/internal/clipboard"
	"github.com/trybotster/termsuite/internal/commandlog"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/selection"
)

// Mode is the router's current input interpretation.
type Mode int

const (
	ModeNormal Mode = iota
	ModeLeaderCommand
	ModeBrowsing
)

// Pane is which side of the split has keyboard focus.
type Pane int

const (
	PaneTerminal Pane = iota
	PaneAssistant
)

// Region names a hit-tested screen area for mouse dispatch.
type Region int

const (
	RegionOutside Region = iota
	RegionTerminal
	RegionSeparator
	RegionAssistantTabBar
	RegionAssistantMessageArea
	RegionAssistantInputBox
)

const (
	doubleClickWindow = 500 * time.Millisecond
	tripleClickWindow = 800 * time.Millisecond
	clickDistancePx   = 2

	minSplitRatio = 10
	maxSplitRatio = 90
)

// TerminalSink is the subset of ptychan.Channel the router writes to
// and reads terminal-side state from. Injecting confirmed AI commands
// is not part of it: that path runs through the session manager's
// execute event and the app loop's security gate.
type TerminalSink interface {
	Write(p []byte) (int, error)
	MouseModeEnabled() bool
}

// Geometry is the current layout the router hit-tests mouse events
// against. The app loop recomputes and hands this in whenever the
// terminal is resized or the separator is dragged.
type Geometry struct {
	Width, Height int
	SeparatorCol  int
	// AssistantInputRows is how many rows at the bottom of the
	// assistant pane belong to the input editor.
	AssistantInputRows int
}

func (g Geometry) classify(col, row int) Region {
	if col < 0 || row < 0 || col >= g.Width || row >= g.Height {
		return RegionOutside
	}
	if col == g.SeparatorCol {
		return RegionSeparator
	}
	if col < g.SeparatorCol {
		return RegionTerminal
	}
	if row == 0 {
		return RegionAssistantTabBar
	}
	if row >= g.Height-g.AssistantInputRows {
		return RegionAssistantInputBox
	}
	return RegionAssistantMessageArea
}

// clickState tracks the previous click for double/triple click
// detection.
type clickState struct {
	at    time.Time
	row   int
	col   int
	count int
}

// Router owns the input mode machine and dispatches every keyboard
// and mouse event the app loop receives.
type Router struct {
	mode Mode
	pane Pane
	geom Geometry

	splitRatio int

	pty  TerminalSink
	disp *display.Display
	view *assistantview.View
	ai   *aisession.Manager
	log  *commandlog.Log

	termSel     *selection.Selection
	lastClick   clickState
	dragging    bool
	dragInput   bool
	dragSep     bool
	lastButtons tcell.ButtonMask

	// dragAnchor/dragMoved/dragCollapsible track whether a plain
	// left-click in the terminal pane ever moved before release, so a
	// click-to-focus with no drag can collapse back to no selection
	// instead of leaving a stray one-cell selection.
	dragAnchor      selection.Point
	dragMoved       bool
	dragCollapsible bool

	// shellInputBuffer mirrors the command line being typed into the
	// guest shell, so Enter can log it to r.log without the PTY
	// channel itself having to parse the shell's echoed output.
	shellInputBuffer strings.Builder

	quit bool
}

// New creates a Router wired to its collaborators. splitRatio is the
// initial terminal/assistant width percentage, clamped to [10, 90].
func New(pty TerminalSink, disp *display.Display, view *assistantview.View, ai *aisession.Manager, log *commandlog.Log, splitRatio int) *Router {
	if splitRatio < minSplitRatio {
		splitRatio = minSplitRatio
	}
	if splitRatio > maxSplitRatio {
		splitRatio = maxSplitRatio
	}
	return &Router{
		pty: pty, disp: disp, view: view, ai: ai, log: log,
		splitRatio: splitRatio, pane: PaneTerminal,
		termSel: selection.New(),
	}
}

// Mode reports the router's current mode.
func (r *Router) Mode() Mode { return r.mode }

// Pane reports which pane currently has keyboard focus.
func (r *Router) Pane() Pane { return r.pane }

// SplitRatio reports the terminal pane's width percentage.
func (r *Router) SplitRatio() int { return r.splitRatio }

// SetGeometry updates the layout used for mouse hit-testing.
func (r *Router) SetGeometry(g Geometry) { r.geom = g }

// QuitRequested reports whether the leader command 'q' has been
// pressed; the app loop checks this once per iteration and stops.
func (r *Router) QuitRequested() bool { return r.quit }

// HandleKey dispatches a keyboard event according to the current mode
// and focused pane. Ctrl-] in Normal mode consumes the key and enters
// LeaderCommand; a second Ctrl-] once already in LeaderCommand is the
// leader table's own "send literal 0x1D" entry, so it is dispatched
// through handleLeaderCommandKey rather than toggled here.
func (r *Router) HandleKey(ev *tcell.EventKey) {
	if r.mode == ModeNormal && isLeaderKey(ev) {
		r.mode = ModeLeaderCommand
		return
	}

	switch r.mode {
	case ModeLeaderCommand:
		r.handleLeaderCommandKey(ev)
	case ModeBrowsing:
		r.handleBrowsingKey(ev)
	default:
		r.handleNormalKey(ev)
	}
}

func isLeaderKey(ev *tcell.EventKey) bool {
	if ev.Key() == tcell.KeyCtrlRightSq {
		return true
	}
	return ev.Modifiers()&tcell.ModCtrl != 0 && ev.Rune() == '5'
}

// handleLeaderCommandKey dispatches the single-letter leader command
// table: q quits, ? is a help no-op placeholder, Ctrl-] sends the
// literal 0x1D byte to the PTY, left/right switch active pane, and
// up/down/PgUp/PgDn/Home/End scroll the active pane and enter
// Browsing. Any other key exits to Normal without effect.
func (r *Router) handleLeaderCommandKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyCtrlRightSq:
		r.mode = ModeNormal
		r.pty.Write([]byte{0x1D})
		return
	case tcell.KeyLeft:
		r.mode = ModeNormal
		r.pane = PaneTerminal
		return
	case tcell.KeyRight:
		r.mode = ModeNormal
		r.pane = PaneAssistant
		return
	case tcell.KeyUp:
		r.scrollActivePane(-1)
		r.mode = ModeBrowsing
		return
	case tcell.KeyDown:
		r.scrollActivePane(1)
		r.mode = ModeBrowsing
		return
	case tcell.KeyPgUp:
		r.scrollActivePane(-r.geom.Height)
		r.mode = ModeBrowsing
		return
	case tcell.KeyPgDn:
		r.scrollActivePane(r.geom.Height)
		r.mode = ModeBrowsing
		return
	case tcell.KeyHome:
		r.scrollActivePane(-1 << 30)
		r.mode = ModeBrowsing
		return
	case tcell.KeyEnd:
		r.scrollActivePane(1 << 30)
		r.mode = ModeBrowsing
		return
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			r.mode = ModeNormal
			r.quit = true
			return
		case '?':
			r.mode = ModeNormal
			return
		}
	}
	r.mode = ModeNormal
}

// scrollActivePane moves the terminal's scrollback or the assistant
// message area by delta lines, negative toward history.
func (r *Router) scrollActivePane(delta int) {
	if r.pane == PaneAssistant {
		id := r.ai.CurrentSession()
		if delta < 0 {
			r.view.ScrollUp(id, -delta)
		} else {
			r.view.ScrollDown(id, delta)
		}
		return
	}
	if delta < 0 {
		r.disp.ScrollUp(-delta)
	} else {
		r.disp.ScrollDown(delta)
	}
}

// handleBrowsingKey continues scrolling the active pane on
// arrows/page/home/end, switches the active pane on left/right,
// returns to Normal at the bottom on End or Esc, and otherwise exits
// Browsing, scrolls to bottom, and re-dispatches the key to Normal.
func (r *Router) handleBrowsingKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyUp:
		r.scrollActivePane(-1)
		return
	case tcell.KeyDown:
		r.scrollActivePane(1)
		return
	case tcell.KeyPgUp:
		r.scrollActivePane(-r.geom.Height)
		return
	case tcell.KeyPgDn:
		r.scrollActivePane(r.geom.Height)
		return
	case tcell.KeyHome:
		r.scrollActivePane(-1 << 30)
		return
	case tcell.KeyLeft:
		r.pane = PaneTerminal
		return
	case tcell.KeyRight:
		r.pane = PaneAssistant
		return
	case tcell.KeyEnd, tcell.KeyEscape:
		r.mode = ModeNormal
		r.scrollToBottomActivePane()
		return
	}
	r.mode = ModeNormal
	r.scrollToBottomActivePane()
	r.handleNormalKey(ev)
}

func (r *Router) scrollToBottomActivePane() {
	if r.pane == PaneAssistant {
		r.view.ScrollToBottom(r.ai.CurrentSession())
		return
	}
	r.disp.ScrollToBottom()
}

// handleNormalKey either forwards the key to the PTY (terminal focus)
// or edits the assistant input (assistant focus). While the terminal
// has focus, printable keys are mirrored into shellInputBuffer so
// Enter can log the command line to r.log; Ctrl-C/Ctrl-U clear the
// buffer without logging.
func (r *Router) handleNormalKey(ev *tcell.EventKey) {
	if r.pane == PaneAssistant {
		r.handleAssistantKey(ev)
		return
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		if line := strings.TrimSpace(r.shellInputBuffer.String()); line != "" {
			r.log.StartNewCommand(line)
		}
		r.shellInputBuffer.Reset()
	case tcell.KeyCtrlC, tcell.KeyCtrlU:
		r.shellInputBuffer.Reset()
	case tcell.KeyRune:
		r.shellInputBuffer.WriteRune(ev.Rune())
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		s := r.shellInputBuffer.String()
		if len(s) > 0 {
			runes := []rune(s)
			r.shellInputBuffer.Reset()
			r.shellInputBuffer.WriteString(string(runes[:len(runes)-1]))
		}
	}

	bytes := EncodeKey(ev)
	if len(bytes) > 0 {
		r.pty.Write(bytes)
	}
}

// handleAssistantKey drives the assistant input editor: Enter submits
// (unless the current session is already streaming), Ctrl-O inserts a
// literal newline, Tab/Shift-Tab cycle sessions, Shift+arrows/
// PageUp/PageDown scroll the message area, and Esc while scrolled
// returns to the bottom.
func (r *Router) handleAssistantKey(ev *tcell.EventKey) {
	editor := r.view.Input()
	id := r.ai.CurrentSession()

	if ev.Modifiers()&tcell.ModShift != 0 {
		switch ev.Key() {
		case tcell.KeyUp:
			r.view.ScrollUp(id, 1)
			return
		case tcell.KeyDown:
			r.view.ScrollDown(id, 1)
			return
		case tcell.KeyPgUp:
			r.view.ScrollUp(id, r.geom.Height)
			return
		case tcell.KeyPgDn:
			r.view.ScrollDown(id, r.geom.Height)
			return
		}
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		if r.pendingCardKey() {
			return
		}
		if r.ai.IsStreaming(id) {
			return
		}
		text := r.view.TakeInput()
		if text == "" {
			return
		}
		r.view.PushUserMessage(id, text)
		r.view.StartAssistantMessage(id)
		snapshot := commandlog.BuildSnapshotFromOS(r.log, 50)
		r.ai.SendMessage(context.Background(), id, text, snapshot)
	case tcell.KeyCtrlO:
		editor.Insert("\n")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		editor.Backspace()
	case tcell.KeyDelete:
		editor.Delete()
	case tcell.KeyLeft:
		editor.MoveCursor(-1)
	case tcell.KeyRight:
		editor.MoveCursor(1)
	case tcell.KeyTab:
		r.cycleSession(1)
	case tcell.KeyBacktab:
		r.cycleSession(-1)
	case tcell.KeyEscape:
		if r.view.ScrollOffset(id) != 0 {
			r.view.ScrollToBottom(id)
		}
	case tcell.KeyRune:
		editor.Insert(string(ev.Rune()))
	}
}

// cycleSession moves the current session forward or backward by one
// position in tab order, wrapping around.
func (r *Router) cycleSession(dir int) {
	ids := r.ai.OrderedSessions()
	if len(ids) == 0 {
		return
	}
	current := r.ai.CurrentSession()
	idx := 0
	for i, id := range ids {
		if id == current {
			idx = i
			break
		}
	}
	idx = (idx + dir + len(ids)) % len(ids)
	r.ai.SwitchSession(ids[idx])
}

// pendingCardKey reports whether the current session has a pending
// command suggestion; Enter confirms it instead of sending a message.
// Confirmation only emits an execute event through the session
// manager — the app loop gates and injects the command.
func (r *Router) pendingCardKey() bool {
	id := r.ai.CurrentSession()
	if !r.ai.HasPendingSuggestion(id) {
		return false
	}
	if cmd, ok := r.view.ConfirmCommand(id); ok {
		r.ai.ExecuteSuggestion(id, cmd)
	}
	return true
}

// ExtractSelection returns the terminal pane's current selection as
// plain text, or "" if nothing is selected.
func (r *Router) ExtractSelection() string {
	if !r.termSel.Active() {
		return ""
	}
	return r.termSel.Extract(r.disp.VisibleLines())
}

// TerminalSelection exposes the terminal pane's selection state so the
// renderer can reverse-video the selected span; callers must not
// mutate it.
func (r *Router) TerminalSelection() *selection.Selection {
	return r.termSel
}

// HandleMouse dispatches a mouse event by first classifying which
// region it landed in, then either adjusting the split, scrolling,
// editing a selection, or passing the event through to the guest
// program as an SGR 1006 sequence.
func (r *Router) HandleMouse(ev *tcell.EventMouse) {
	col, row := ev.Position()
	region := r.geom.classify(col, row)
	buttons := ev.Buttons()
	prevButtons := r.lastButtons
	r.lastButtons = buttons

	if buttons&tcell.ButtonMiddle != 0 {
		text := clipboard.ReadAll()
		if text == "" {
			return
		}
		if region == RegionTerminal {
			r.pty.Write([]byte(text))
		} else if region == RegionAssistantInputBox || region == RegionAssistantMessageArea {
			r.view.Input().Insert(text)
		}
		return
	}

	// An in-progress separator drag follows the pointer even once it
	// leaves the separator column.
	if r.dragSep {
		r.handleSeparatorDrag(ev, col)
		return
	}

	switch region {
	case RegionSeparator:
		r.handleSeparatorDrag(ev, col)
		return
	case RegionAssistantTabBar:
		if buttons&tcell.Button1 != 0 {
			r.pane = PaneAssistant
			localCol := col - r.geom.SeparatorCol - 1
			switch {
			case r.view.NewTabRect().Contains(localCol, 0):
				r.ai.NewSession()
			case r.view.CloseTabRect().Contains(localCol, 0):
				closed := r.ai.CurrentSession()
				r.ai.CloseSession(closed)
				r.view.DropSession(closed)
			default:
				if id, ok := r.view.TabAt(localCol, row); ok {
					r.ai.SwitchSession(id)
				}
			}
		}
		return
	}

	// A click anywhere else in a non-focused pane switches focus and is
	// otherwise swallowed: it does not also start a selection or send
	// a guest-program click.
	switch region {
	case RegionTerminal:
		if buttons&(tcell.Button1|tcell.Button2|tcell.Button3) != 0 && r.pane != PaneTerminal {
			r.pane = PaneTerminal
			return
		}
	case RegionAssistantMessageArea, RegionAssistantInputBox:
		if buttons&(tcell.Button1|tcell.Button2|tcell.Button3) != 0 && r.pane != PaneAssistant {
			r.pane = PaneAssistant
			return
		}
	}

	if region == RegionTerminal && r.pty.MouseModeEnabled() {
		// Motion with the same button still held is a drag report.
		drag := buttons != tcell.ButtonNone && buttons == prevButtons
		if seq, ok := EncodeMouseSGR(ev, col, row, drag); ok {
			r.pty.Write(seq)
		}
		return
	}

	if region == RegionAssistantMessageArea {
		if r.handleMessageAreaMouse(ev, col, row, buttons) {
			return
		}
	}

	switch {
	case buttons == tcell.WheelUp:
		if region == RegionAssistantMessageArea {
			r.view.ScrollUp(r.ai.CurrentSession(), 3)
		} else {
			r.disp.ScrollUp(3)
		}
	case buttons == tcell.WheelDown:
		if region == RegionAssistantMessageArea {
			r.view.ScrollDown(r.ai.CurrentSession(), 3)
		} else {
			r.disp.ScrollDown(3)
		}
	case buttons&tcell.Button1 != 0 && region == RegionTerminal:
		r.handleTerminalDrag(col, row)
	case buttons&tcell.Button1 != 0 && region == RegionAssistantInputBox:
		r.handleInputBoxDrag(col, row)
	case buttons == tcell.ButtonNone:
		if r.dragging {
			if r.dragCollapsible && !r.dragMoved {
				r.termSel.Clear()
			} else if text := r.ExtractSelection(); text != "" {
				// X-style: releasing a real selection copies it.
				clipboard.WriteAll(text)
			}
		}
		if r.dragInput {
			sel := r.view.Input().Selection()
			if r.dragCollapsible && !r.dragMoved {
				sel.Clear()
			} else if text := r.view.Input().SelectedText(); text != "" {
				clipboard.WriteAll(text)
			}
		}
		r.dragging = false
		r.dragInput = false
	}
}

// handleMessageAreaMouse hit-tests a left-button press in the message
// area against the active suggestion card's button row, using the
// same Layout the renderer just drew from so the clicked row always
// matches what is on screen. It reports whether the click was
// consumed by a button.
func (r *Router) handleMessageAreaMouse(ev *tcell.EventMouse, col, row int, buttons tcell.ButtonMask) bool {
	if buttons&tcell.Button1 == 0 {
		return false
	}
	id := r.ai.CurrentSession()
	rows := r.geom.Height - r.geom.AssistantInputRows - 1
	width := r.geom.Width - r.geom.SeparatorCol - 1
	buttonRow, ok := r.view.CardButtonRow(id, width, rows)
	if !ok || row-1 != buttonRow {
		return false
	}
	localCol := col - r.geom.SeparatorCol - 1
	execute, cancel, next := assistantview.ButtonRects()
	// The button row renders as "│ [Execute] [Cancel] [Next n/m]"; the
	// rects span each label with its brackets, so skip the "│ " prefix
	// to align column 0 with the opening bracket of "[Execute]".
	cardCol := localCol - 2
	switch {
	case execute.Contains(cardCol, 0):
		if cmd, ok := r.view.ConfirmCommand(id); ok {
			r.ai.ExecuteSuggestion(id, cmd)
		}
		return true
	case cancel.Contains(cardCol, 0):
		r.ai.RejectSuggestion(id)
		r.view.RejectCommand(id)
		return true
	case next.Contains(cardCol, 0):
		r.ai.CycleSuggestion(id)
		r.view.CycleSuggestion(id)
		return true
	}
	return false
}

// handleTerminalDrag begins or extends the terminal selection,
// classifying a fresh press as char/word/line selection according to
// the double/triple-click timing rules. A fresh plain (single-click)
// char selection is marked collapsible: if the pointer never moves
// before release, HandleMouse clears it so a plain click-to-focus
// does not leave behind a stray one-cell selection.
func (r *Router) handleTerminalDrag(col, row int) {
	p := selection.Point{Row: row, Col: col}
	if !r.dragging {
		r.dragging = true
		r.dragAnchor = p
		r.dragMoved = false
		count := r.handleClick(col, row)
		lines := r.disp.VisibleLines()
		switch {
		case count >= 3:
			width := 0
			if row < len(lines) {
				width = selection.DisplayWidth(lineRunesText(lines[row]))
			}
			r.termSel.BeginLine(row, width)
			r.dragCollapsible = false
		case count == 2 && row < len(lines):
			r.termSel.BeginWord(p, lines[row])
			r.dragCollapsible = false
		default:
			r.termSel.Begin(p)
			r.dragCollapsible = true
		}
		return
	}
	if p != r.dragAnchor {
		r.dragMoved = true
	}
	r.termSel.Extend(p)
}

// handleInputBoxDrag mirrors handleTerminalDrag for the input editor's
// own selection, working in the editor's wrapped-line coordinates (the
// first wrapped row is drawn behind a two-cell prompt).
func (r *Router) handleInputBoxDrag(col, row int) {
	editor := r.view.Input()
	localCol := col - r.geom.SeparatorCol - 1
	localRow := row - (r.geom.Height - r.geom.AssistantInputRows)
	if localRow == 0 {
		localCol -= 2
	}
	if localCol < 0 {
		localCol = 0
	}
	if localRow < 0 {
		localRow = 0
	}

	p := selection.Point{Row: localRow, Col: localCol}
	sel := editor.Selection()
	if !r.dragInput {
		r.dragInput = true
		r.dragAnchor = p
		r.dragMoved = false
		count := r.handleClick(col, row)
		lines := editor.WrappedLines()
		switch {
		case count >= 3 && localRow < len(lines):
			sel.BeginLine(localRow, selection.DisplayWidth(lines[localRow]))
			r.dragCollapsible = false
		case count == 2 && localRow < len(lines):
			sel.BeginWord(p, display.StyledLine{Runs: []display.Run{{Text: lines[localRow]}}})
			r.dragCollapsible = false
		default:
			sel.Begin(p)
			r.dragCollapsible = true
		}
		return
	}
	if p != r.dragAnchor {
		r.dragMoved = true
	}
	sel.Extend(p)
}

func lineRunesText(l display.StyledLine) string {
	var text string
	for _, run := range l.Runs {
		text += run.Text
	}
	return text
}

func (r *Router) handleSeparatorDrag(ev *tcell.EventMouse, col int) {
	if ev.Buttons()&tcell.Button1 == 0 {
		r.dragSep = false
		return
	}
	r.dragSep = true
	if r.geom.Width <= 0 {
		return
	}
	ratio := clampInt(col*100/r.geom.Width, minSplitRatio, maxSplitRatio)
	if abs(ratio-r.splitRatio) >= 1 {
		r.splitRatio = ratio
	}
}

// handleClick applies double/triple-click word/line selection timing
// rules: a repeat click within 500ms and 2 cells of the previous one
// advances to word selection, and a third within 800ms to line
// selection.
func (r *Router) handleClick(col, row int) int {
	now := timeNow()
	prev := r.lastClick
	sameSpot := abs(col-prev.col) <= clickDistancePx && abs(row-prev.row) <= clickDistancePx

	count := 1
	if sameSpot && prev.count == 1 && now.Sub(prev.at) <= doubleClickWindow {
		count = 2
	} else if sameSpot && prev.count == 2 && now.Sub(prev.at) <= tripleClickWindow {
		count = 3
	}
	r.lastClick = clickState{at: now, row: row, col: col, count: count}
	return count
}

var timeNow = time.Now

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// EncodeMouseSGR encodes a tcell mouse event into an xterm SGR 1006
// mouse report, per the Cb = base + Shift*4 + Alt*8 + Ctrl*16 +
// drag*32 formula, with a trailing 'M' for press/drag and 'm' for
// release. tcell's Button2 is the secondary (right) button and Button3
// the middle one, so they map to xterm bases 2 and 1 respectively.
func EncodeMouseSGR(ev *tcell.EventMouse, col, row int, drag bool) ([]byte, bool) {
	buttons := ev.Buttons()
	mods := ev.Modifiers()

	var base int
	release := false
	wheel := false
	switch {
	case buttons&tcell.WheelUp != 0:
		base = 64
		wheel = true
	case buttons&tcell.WheelDown != 0:
		base = 65
		wheel = true
	case buttons&tcell.Button1 != 0:
		base = 0
	case buttons&tcell.Button3 != 0:
		base = 1
	case buttons&tcell.Button2 != 0:
		base = 2
	default:
		base = 0
		release = true
	}

	cb := base
	if mods&tcell.ModShift != 0 {
		cb += 4
	}
	if mods&tcell.ModAlt != 0 {
		cb += 8
	}
	if mods&tcell.ModCtrl != 0 {
		cb += 16
	}
	if drag && !release && !wheel {
		cb += 32
	}

	trailer := byte('M')
	if release {
		trailer = 'm'
	}
	return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", cb, col+1, row+1, trailer)), true
}

// EncodeKey converts a tcell key event into the byte sequence it
// represents on the wire, following the standard xterm/VT100
// encodings: control characters as their C0 byte, cursor and
// navigation keys as CSI sequences, F1-F4 as SS3 (ESC O) sequences,
// F5-F12 as CSI ~ sequences, and Alt-combinations as a leading ESC.
func EncodeKey(ev *tcell.EventKey) []byte {
	if ev.Modifiers()&tcell.ModAlt != 0 && ev.Key() == tcell.KeyRune {
		return append([]byte{0x1b}, []byte(string(ev.Rune()))...)
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		return []byte{'\r'}
	case tcell.KeyTab:
		return []byte{'\t'}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7f}
	case tcell.KeyEscape:
		return []byte{0x1b}
	case tcell.KeyUp:
		return []byte("\x1b[A")
	case tcell.KeyDown:
		return []byte("\x1b[B")
	case tcell.KeyRight:
		return []byte("\x1b[C")
	case tcell.KeyLeft:
		return []byte("\x1b[D")
	case tcell.KeyHome:
		return []byte("\x1b[H")
	case tcell.KeyEnd:
		return []byte("\x1b[F")
	case tcell.KeyPgUp:
		return []byte("\x1b[5~")
	case tcell.KeyPgDn:
		return []byte("\x1b[6~")
	case tcell.KeyInsert:
		return []byte("\x1b[2~")
	case tcell.KeyDelete:
		return []byte("\x1b[3~")
	case tcell.KeyF1:
		return []byte("\x1bOP")
	case tcell.KeyF2:
		return []byte("\x1bOQ")
	case tcell.KeyF3:
		return []byte("\x1bOR")
	case tcell.KeyF4:
		return []byte("\x1bOS")
	case tcell.KeyF5:
		return []byte("\x1b[15~")
	case tcell.KeyF6:
		return []byte("\x1b[17~")
	case tcell.KeyF7:
		return []byte("\x1b[18~")
	case tcell.KeyF8:
		return []byte("\x1b[19~")
	case tcell.KeyF9:
		return []byte("\x1b[20~")
	case tcell.KeyF10:
		return []byte("\x1b[21~")
	case tcell.KeyF11:
		return []byte("\x1b[23~")
	case tcell.KeyF12:
		return []byte("\x1b[24~")
	case tcell.KeyCtrlA, tcell.KeyCtrlB, tcell.KeyCtrlC, tcell.KeyCtrlD, tcell.KeyCtrlE,
		tcell.KeyCtrlF, tcell.KeyCtrlG, tcell.KeyCtrlJ, tcell.KeyCtrlK,
		tcell.KeyCtrlL, tcell.KeyCtrlN, tcell.KeyCtrlO, tcell.KeyCtrlP, tcell.KeyCtrlQ,
		tcell.KeyCtrlR, tcell.KeyCtrlS, tcell.KeyCtrlT, tcell.KeyCtrlU, tcell.KeyCtrlV,
		tcell.KeyCtrlW, tcell.KeyCtrlX, tcell.KeyCtrlY, tcell.KeyCtrlZ,
		tcell.KeyCtrlSpace, tcell.KeyCtrlBackslash, tcell.KeyCtrlCarat, tcell.KeyCtrlUnderscore:
		// tcell key codes for C0 controls equal the control byte itself.
		// Ctrl-H and Ctrl-M are indistinguishable from Backspace/Enter
		// at the tcell layer and are covered by those cases; Ctrl-] is
		// the leader key and never reaches here in Normal mode.
		return []byte{byte(ev.Key())}
	case tcell.KeyRune:
		return []byte(string(ev.Rune()))
	}
	return nil
}

