// Package assistantview renders the right-hand assistant pane: a tab
// bar switching between AI sessions, a scrollable message area, and a
// wrapped input editor, each exposing the pixel rectangles the input
// router needs to turn a mouse click into an action.
package assistantview

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/selection"
)

// Rect is an inclusive pixel rectangle in pane-local coordinates.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether (col, row) falls within r.
func (r Rect) Contains(col, row int) bool {
	return col >= r.X && col < r.X+r.W && row >= r.Y && row < r.Y+r.H
}

// TabEntry is one tab bar slot.
type TabEntry struct {
	SessionID aisession.ID
	Label     string
	Rect      Rect
}

// MessageKind tags a Message's rendering.
type MessageKind int

const (
	MessageUser MessageKind = iota
	MessageAssistant
	MessageSystem
	MessageCommandSuggestion
)

// Message is one entry in the message area.
type Message struct {
	Kind       MessageKind
	Text       string
	Streaming  bool
	Suggestion *CardLayout
}

// CardLayout is a command-suggestion card's content and its
// hit-rectangles, recomputed whenever the card is (re)drawn.
type CardLayout struct {
	Commands      []aisession.CommandSuggestionItem
	SelectedIndex int
	ExecuteRect   Rect
	CancelRect    Rect
	NextRect      Rect
}

// Editor is the input box: a rune buffer with an insertion cursor and
// its own selection, wrapped lazily on width change.
type Editor struct {
	runes     []rune
	cursor    int
	selection *selection.Selection
	width     int
	wrapDirty bool
	wrapped   []string
}

func newEditor() *Editor {
	return &Editor{selection: selection.New(), wrapDirty: true}
}

// Insert inserts s at the cursor, advancing the cursor past it. Any
// active selection is dropped; edits always operate at the caret.
func (e *Editor) Insert(s string) {
	toInsert := []rune(s)
	e.runes = append(e.runes[:e.cursor], append(toInsert, e.runes[e.cursor:]...)...)
	e.cursor += len(toInsert)
	e.wrapDirty = true
	e.selection.Clear()
}

// Backspace deletes the rune before the cursor, if any.
func (e *Editor) Backspace() {
	if e.cursor == 0 {
		return
	}
	e.runes = append(e.runes[:e.cursor-1], e.runes[e.cursor:]...)
	e.cursor--
	e.wrapDirty = true
	e.selection.Clear()
}

// Delete deletes the rune at the cursor, if any.
func (e *Editor) Delete() {
	if e.cursor >= len(e.runes) {
		return
	}
	e.runes = append(e.runes[:e.cursor], e.runes[e.cursor+1:]...)
	e.wrapDirty = true
	e.selection.Clear()
}

// MoveCursor moves the cursor by delta runes, clamped to the buffer.
func (e *Editor) MoveCursor(delta int) {
	e.cursor += delta
	if e.cursor < 0 {
		e.cursor = 0
	}
	if e.cursor > len(e.runes) {
		e.cursor = len(e.runes)
	}
}

// Text returns the current buffer contents.
func (e *Editor) Text() string {
	return string(e.runes)
}

// Take returns the current buffer contents and clears the editor.
func (e *Editor) Take() string {
	text := e.Text()
	e.runes = nil
	e.cursor = 0
	e.wrapDirty = true
	e.selection.Clear()
	return text
}

// SetWidth updates the wrap width; wrapping recomputes lazily on the
// next WrappedLines call.
func (e *Editor) SetWidth(width int) {
	if width != e.width {
		e.width = width
		e.wrapDirty = true
	}
}

// WrappedLines returns the buffer word-wrapped to the editor's
// current width, recomputing only if the buffer or width changed
// since the last call.
func (e *Editor) WrappedLines() []string {
	if e.wrapDirty {
		e.wrapped = wrapText(e.Text(), e.width)
		e.wrapDirty = false
	}
	return e.wrapped
}

// Selection exposes the editor's own selection state, mirroring the
// terminal pane's semantics over the editor's wrapped display lines.
func (e *Editor) Selection() *selection.Selection {
	return e.selection
}

// SelectedText extracts the editor's current selection against its
// wrapped display lines, or "" when nothing is selected.
func (e *Editor) SelectedText() string {
	if !e.selection.Active() {
		return ""
	}
	lines := e.WrappedLines()
	styled := make([]display.StyledLine, len(lines))
	for i, l := range lines {
		styled[i] = display.StyledLine{Runs: []display.Run{{Text: l}}}
	}
	return e.selection.Extract(styled)
}

// wrapText performs a greedy, word-break-aware wrap honoring display
// width (so east-asian wide glyphs are not miscounted).
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var cur strings.Builder
		curWidth := 0
		for _, w := range words {
			wWidth := runewidth.StringWidth(w)
			sep := 0
			if cur.Len() > 0 {
				sep = 1
			}
			if curWidth+sep+wWidth > width && cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
				curWidth = 0
				sep = 0
			}
			if sep == 1 {
				cur.WriteByte(' ')
				curWidth++
			}
			cur.WriteString(w)
			curWidth += wWidth
		}
		lines = append(lines, cur.String())
	}
	return lines
}

// paneState is one session's slice of the message area: its own
// rendered message list and its own scroll position, independent of
// whichever session's tab is currently focused.
type paneState struct {
	messages    []Message
	scrollLines int
}

// View holds the full right-pane state: the tab bar, one message-area
// pane per AI session (so a background session's transcript keeps
// accumulating while another tab is focused), and the input editor.
type View struct {
	tabs    []TabEntry
	current aisession.ID

	newTabRect   Rect
	closeTabRect Rect

	panes map[aisession.ID]*paneState

	input *Editor
	width int
}

// New creates an empty View.
func New() *View {
	return &View{input: newEditor(), panes: make(map[aisession.ID]*paneState)}
}

// pane returns id's paneState, creating an empty one on first use.
func (v *View) pane(id aisession.ID) *paneState {
	p, ok := v.panes[id]
	if !ok {
		p = &paneState{}
		v.panes[id] = p
	}
	return p
}

// DropSession discards a closed session's message-area state.
func (v *View) DropSession(id aisession.ID) {
	delete(v.panes, id)
}

// SyncSessionTabs rebuilds the tab bar from the manager's ordered
// sessions and current id, recomputing hit rectangles left to right,
// followed by the "new" and "close" affordances.
func (v *View) SyncSessionTabs(ids []aisession.ID, current aisession.ID, labelFor func(aisession.ID) string) {
	v.current = current
	v.tabs = v.tabs[:0]
	x := 0
	for _, id := range ids {
		label := labelFor(id)
		w := runewidth.StringWidth(label) + 2
		v.tabs = append(v.tabs, TabEntry{SessionID: id, Label: label, Rect: Rect{X: x, Y: 0, W: w, H: 1}})
		x += w
	}
	v.newTabRect = Rect{X: x, Y: 0, W: 3, H: 1}
	v.closeTabRect = Rect{X: x + 3, Y: 0, W: 3, H: 1}
}

// Tabs returns the current tab bar layout.
func (v *View) Tabs() []TabEntry {
	return v.tabs
}

// NewTabRect returns the "new session" affordance's hit rectangle.
func (v *View) NewTabRect() Rect { return v.newTabRect }

// CloseTabRect returns the "close session" affordance's hit
// rectangle; it acts on whichever tab is current.
func (v *View) CloseTabRect() Rect { return v.closeTabRect }

// TabAt returns the session id whose hit rectangle contains (col,
// row), if any.
func (v *View) TabAt(col, row int) (aisession.ID, bool) {
	for _, t := range v.tabs {
		if t.Rect.Contains(col, row) {
			return t.SessionID, true
		}
	}
	return 0, false
}

// SetWidth updates the wrap width used by both the message area and
// the input editor.
func (v *View) SetWidth(width int) {
	v.width = width
	v.input.SetWidth(width)
}

// PushUserMessage appends a user message to id's message area.
func (v *View) PushUserMessage(id aisession.ID, text string) {
	p := v.pane(id)
	p.messages = append(p.messages, Message{Kind: MessageUser, Text: text})
}

// PushSystemMessage appends a system message (stream errors, security
// notices) to id's message area.
func (v *View) PushSystemMessage(id aisession.ID, text string) {
	p := v.pane(id)
	p.messages = append(p.messages, Message{Kind: MessageSystem, Text: text})
}

// StartAssistantMessage appends an empty, streaming-marked assistant
// message to id's message area that subsequent ApplyChunk calls
// append to.
func (v *View) StartAssistantMessage(id aisession.ID) {
	p := v.pane(id)
	p.messages = append(p.messages, Message{Kind: MessageAssistant, Streaming: true})
}

// ApplyChunk appends text to id's most recent assistant message.
func (v *View) ApplyChunk(id aisession.ID, text string) {
	p := v.pane(id)
	if n := len(p.messages); n > 0 && p.messages[n-1].Kind == MessageAssistant {
		p.messages[n-1].Text += text
		return
	}
	p.messages = append(p.messages, Message{Kind: MessageAssistant, Text: text, Streaming: true})
}

// FinalizeAssistantMessage clears the streaming flag on id's most
// recent assistant message.
func (v *View) FinalizeAssistantMessage(id aisession.ID) {
	p := v.pane(id)
	if n := len(p.messages); n > 0 && p.messages[n-1].Kind == MessageAssistant {
		p.messages[n-1].Streaming = false
	}
}

// ShowCommandSuggestion appends a command-suggestion card to id's
// message area.
func (v *View) ShowCommandSuggestion(id aisession.ID, commands []aisession.CommandSuggestionItem) {
	p := v.pane(id)
	p.messages = append(p.messages, Message{
		Kind:       MessageCommandSuggestion,
		Suggestion: &CardLayout{Commands: commands},
	})
}

// activeCard returns id's most recent suggestion card, if any.
func (v *View) activeCard(id aisession.ID) *CardLayout {
	p := v.pane(id)
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].Kind == MessageCommandSuggestion {
			return p.messages[i].Suggestion
		}
	}
	return nil
}

// LayoutCard sets card's three button rectangles (Execute, Cancel,
// Next) at row y, each as wide as its label plus two bracket cells,
// with a one-cell gap between them. The rectangles depend only on the
// labels; width is not used.
func LayoutCard(card *CardLayout, width, y int) {
	buttons := []string{"Execute", "Cancel", "Next"}
	x := 0
	rects := make([]Rect, 3)
	for i, label := range buttons {
		w := runewidth.StringWidth(label) + 2
		rects[i] = Rect{X: x, Y: y, W: w, H: 1}
		x += w + 1
	}
	card.ExecuteRect, card.CancelRect, card.NextRect = rects[0], rects[1], rects[2]
}

// ButtonRects returns the three command-suggestion card button
// rectangles in card-local coordinates (the row carrying the buttons
// is row 0). They are independent of the card's own content, so the
// input router can hit-test a click without needing the Renderer's
// most recently laid-out card.
func ButtonRects() (execute, cancel, next Rect) {
	var card CardLayout
	LayoutCard(&card, 0, 0)
	return card.ExecuteRect, card.CancelRect, card.NextRect
}

// CycleSuggestion advances id's active card's selected index.
func (v *View) CycleSuggestion(id aisession.ID) {
	card := v.activeCard(id)
	if card == nil || len(card.Commands) == 0 {
		return
	}
	card.SelectedIndex = (card.SelectedIndex + 1) % len(card.Commands)
}

// ConfirmCommand returns id's active card's currently selected
// command.
func (v *View) ConfirmCommand(id aisession.ID) (string, bool) {
	card := v.activeCard(id)
	if card == nil || len(card.Commands) == 0 {
		return "", false
	}
	return card.Commands[card.SelectedIndex].Command, true
}

// RejectCommand removes id's active suggestion card from its message
// list, leaving the rest of the transcript intact.
func (v *View) RejectCommand(id aisession.ID) {
	p := v.pane(id)
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].Kind == MessageCommandSuggestion {
			p.messages = append(p.messages[:i], p.messages[i+1:]...)
			return
		}
	}
}

// Messages returns id's current message list.
func (v *View) Messages(id aisession.ID) []Message {
	return v.pane(id).messages
}

// TakeInput returns and clears the input editor's contents.
func (v *View) TakeInput() string {
	return v.input.Take()
}

// Input returns the input editor for direct cursor/selection
// manipulation by the input router.
func (v *View) Input() *Editor {
	return v.input
}

// ScrollUp moves id's message area scroll position n lines back.
func (v *View) ScrollUp(id aisession.ID, n int) {
	v.pane(id).scrollLines += n
}

// ScrollDown moves id's message area scroll position n lines
// forward, clamped at 0.
func (v *View) ScrollDown(id aisession.ID, n int) {
	p := v.pane(id)
	p.scrollLines -= n
	if p.scrollLines < 0 {
		p.scrollLines = 0
	}
}

// ScrollToBottom resets id's message area scroll position.
func (v *View) ScrollToBottom(id aisession.ID) {
	v.pane(id).scrollLines = 0
}

// ScrollOffset reports id's message area current scroll position.
func (v *View) ScrollOffset(id aisession.ID) int {
	return v.pane(id).scrollLines
}

// LineKind tags a wrapped display line's rendering role, kept free of
// any terminal-library dependency so internal/tui can map it to
// concrete styles without a Renderer/View import cycle.
type LineKind int

const (
	LineUser LineKind = iota
	LineAssistant
	LineSystem
	LineCardBorder
	LineCardCommand
	LineCardExplanation
	LineCardButtons
)

// Line is one already-wrapped visual row of the message area.
type Line struct {
	Kind LineKind
	Text string
	// Card is set only on the LineCardButtons row, carrying the same
	// CardLayout LayoutCard just populated so a caller can hit-test a
	// click against ExecuteRect/CancelRect/NextRect.
	Card *CardLayout
}

// Layout wraps every message in id's message area to width and
// returns the full flattened, in-order line list the message area
// renders. This is the single source of truth for message-area line
// counts: both the renderer and the input router's click-to-row
// hit-testing call it, so they never disagree about where a line
// landed.
func (v *View) Layout(id aisession.ID, width int) []Line {
	var out []Line
	for _, msg := range v.pane(id).messages {
		out = append(out, layoutMessage(msg, width)...)
	}
	return out
}

func layoutMessage(msg Message, width int) []Line {
	var prefix string
	var kind LineKind
	switch msg.Kind {
	case MessageUser:
		prefix, kind = "you: ", LineUser
	case MessageAssistant:
		prefix, kind = "ai:  ", LineAssistant
	case MessageSystem:
		prefix, kind = "sys: ", LineSystem
	case MessageCommandSuggestion:
		return layoutCard(msg, width)
	}

	var out []Line
	prefixWidth := runewidth.StringWidth(prefix)
	for i, line := range wrapText(msg.Text, width-prefixWidth) {
		text := line
		if i == 0 {
			text = prefix + line
		} else {
			text = strings.Repeat(" ", prefixWidth) + line
		}
		out = append(out, Line{Kind: kind, Text: text})
	}
	return out
}

func layoutCard(msg Message, width int) []Line {
	card := msg.Suggestion
	if card == nil || len(card.Commands) == 0 {
		return nil
	}
	cur := card.Commands[card.SelectedIndex]

	var out []Line
	out = append(out, Line{Kind: LineCardBorder, Text: "┌─ suggested command " + strings.Repeat("─", max0(width-22))})
	for _, line := range wrapText(cur.Command, width-4) {
		out = append(out, Line{Kind: LineCardCommand, Text: "│ $ " + line})
	}
	for _, line := range wrapText(cur.Explanation, width-4) {
		out = append(out, Line{Kind: LineCardExplanation, Text: "│ " + line})
	}
	LayoutCard(card, width, 0)
	out = append(out, Line{
		Kind: LineCardButtons,
		Text: "│ [Execute] [Cancel] [Next " + strconv.Itoa(card.SelectedIndex+1) + "/" + strconv.Itoa(len(card.Commands)) + "]",
		Card: card,
	})
	return out
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// visibleWindow returns the index start of the [start, start+rows)
// window of lines currently in view for a viewport of the given row count and
// scrollLines offset (lines back from the bottom).
func visibleWindow(lines []Line, rows, scrollLines int) (start int) {
	total := len(lines)
	start = total - rows - scrollLines
	if start < 0 {
		start = 0
	}
	return start
}

// CardButtonRow reports the row, local to a viewport of the given
// width and row count at id's current scroll offset, that the active
// suggestion card's button line occupies. ok is false if there is no
// active suggestion or its button row has scrolled out of view.
func (v *View) CardButtonRow(id aisession.ID, width, rows int) (row int, ok bool) {
	lines := v.Layout(id, width)
	start := visibleWindow(lines, rows, v.pane(id).scrollLines)
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Kind == LineCardButtons {
			if i >= start && i < start+rows {
				return i - start, true
			}
			return 0, false
		}
	}
	return 0, false
}
