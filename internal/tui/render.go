// Package tui draws the split terminal/assistant layout onto a tcell
// screen with direct cell writes: emulator cell colors and attributes
// are copied onto tcell cells one by one rather than going through a
// higher-level widget toolkit.
package tui

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/assistantview"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/input"
)

// Screen is the subset of tcell.Screen the renderer draws onto.
type Screen interface {
	SetContent(x, y int, mainc rune, combc []rune, style tcell.Style)
	ShowCursor(x, y int)
	HideCursor()
	Size() (int, int)
	Show()
}

// Renderer owns the collaborators it reads display state from; it
// holds no state of its own beyond the batch size shown in the debug
// line, so a
// fresh Render call always reflects the current model.
type Renderer struct {
	screen Screen
	disp   *display.Display
	view   *assistantview.View
	router *input.Router
	ai     *aisession.Manager

	batchSize int
}

// New creates a Renderer wired to its collaborators.
func New(screen Screen, disp *display.Display, view *assistantview.View, router *input.Router, ai *aisession.Manager) *Renderer {
	return &Renderer{screen: screen, disp: disp, view: view, router: router, ai: ai}
}

// SetBatchSize records the loop's current adaptive PTY read batch size
// so the next Render call can draw it in the debug line. This
// satisfies app.DebugLine.
func (r *Renderer) SetBatchSize(n int) {
	r.batchSize = n
}

// Render redraws the full frame: the terminal pane, the separator,
// and the assistant pane (tab bar, message area, input editor), then
// positions the cursor and flushes to the real screen.
func (r *Renderer) Render() {
	width, height := r.screen.Size()
	if width <= 0 || height <= 0 {
		return
	}

	splitCol := width * r.router.SplitRatio() / 100
	if splitCol < 1 {
		splitCol = 1
	}
	if splitCol > width-2 {
		splitCol = width - 2
	}

	r.renderTerminalPane(splitCol, height)
	r.renderSeparator(splitCol, height)
	r.renderAssistantPane(splitCol+1, width-splitCol-1, height)
	r.positionCursor(splitCol)

	r.screen.Show()
}

func (r *Renderer) renderTerminalPane(width, height int) {
	lines := r.disp.VisibleLines()
	sel := r.router.TerminalSelection()

	for row := 0; row < height && row < len(lines); row++ {
		col := 0
		for _, run := range lines[row].Runs {
			for _, ch := range run.Text {
				if col >= width {
					break
				}
				style := runStyle(run)
				if sel.Contains(row, col) {
					style = style.Reverse(true)
				}
				r.screen.SetContent(col, row, ch, nil, style)
				w := runewidth.RuneWidth(ch)
				if w < 1 {
					w = 1
				}
				col += w
			}
		}
		for ; col < width; col++ {
			r.screen.SetContent(col, row, ' ', nil, tcell.StyleDefault)
		}
	}
	for row := len(lines); row < height; row++ {
		for col := 0; col < width; col++ {
			r.screen.SetContent(col, row, ' ', nil, tcell.StyleDefault)
		}
	}
}

func (r *Renderer) renderSeparator(col, height int) {
	style := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for row := 0; row < height; row++ {
		r.screen.SetContent(col, row, tcell.RuneVLine, nil, style)
	}
}

func (r *Renderer) renderAssistantPane(x0, width, height int) {
	if width <= 0 {
		return
	}
	r.view.SetWidth(width)
	r.renderTabBar(x0, width)
	inputRows := 3
	r.renderMessageArea(x0, width, 1, height-inputRows)
	r.renderInputBox(x0, width, height-inputRows, inputRows)
}

func (r *Renderer) renderTabBar(x0, width int) {
	current := r.ai.CurrentSession()
	r.view.SyncSessionTabs(r.ai.OrderedSessions(), current, func(id aisession.ID) string {
		return sessionLabel(r.ai, id)
	})

	for col := 0; col < width; col++ {
		r.screen.SetContent(x0+col, 0, ' ', nil, tcell.StyleDefault.Reverse(true))
	}
	for _, tab := range r.view.Tabs() {
		style := tcell.StyleDefault.Reverse(true)
		if tab.SessionID == current {
			style = tcell.StyleDefault.Bold(true)
		}
		label := " " + tab.Label + " "
		col := tab.Rect.X
		for _, ch := range label {
			if col >= width {
				break
			}
			r.screen.SetContent(x0+col, 0, ch, nil, style)
			col++
		}
	}

	drawAffordance(r.screen, x0, width, r.view.NewTabRect(), "[+]")
	drawAffordance(r.screen, x0, width, r.view.CloseTabRect(), "[x]")

	r.drawDebugLine(x0, width, current)
}

// drawDebugLine draws a minimal always-available status line in the
// tab bar's trailing columns: the adaptive PTY read batch size, the
// active session's message-area scroll offset, and which pane has
// focus. It is skipped entirely when the tab bar is too narrow to fit
// it without overlapping the tab labels or the [+]/[x] affordances.
func (r *Renderer) drawDebugLine(x0, width int, current aisession.ID) {
	text := fmt.Sprintf(" batch=%dk scroll=%d pane=%s ",
		r.batchSize/1024, r.view.ScrollOffset(current), paneLabel(r.router.Pane()))
	closeRect := r.view.CloseTabRect()
	minStart := closeRect.X + 3 + 1
	start := width - runewidth.StringWidth(text)
	if start < minStart {
		return
	}
	style := tcell.StyleDefault.Reverse(true).Dim(true)
	col := start
	for _, ch := range text {
		if col >= width {
			break
		}
		r.screen.SetContent(x0+col, 0, ch, nil, style)
		col++
	}
}

func paneLabel(p input.Pane) string {
	if p == input.PaneAssistant {
		return "chat"
	}
	return "term"
}

func drawAffordance(s Screen, x0, width int, rect assistantview.Rect, label string) {
	col := rect.X
	for _, ch := range label {
		if col >= width {
			return
		}
		s.SetContent(x0+col, rect.Y, ch, nil, tcell.StyleDefault.Reverse(true))
		col++
	}
}

func sessionLabel(ai *aisession.Manager, id aisession.ID) string {
	msgs := ai.Messages(id)
	preview := ""
	for _, m := range msgs {
		if m.Role == aisession.RoleUser && m.DisplayContent != "" {
			preview = m.DisplayContent
			break
		}
	}
	if len(preview) > 12 {
		preview = preview[:12] + "…"
	}
	if preview == "" {
		return strconv.Itoa(int(id))
	}
	return strconv.Itoa(int(id)) + ":" + preview
}

func (r *Renderer) renderMessageArea(x0, width, y0, rows int) {
	if rows <= 0 {
		return
	}

	current := r.ai.CurrentSession()
	lines := r.view.Layout(current, width)

	offset := r.view.ScrollOffset(current)
	total := len(lines)
	start := total - rows - offset
	if start < 0 {
		start = 0
	}

	for row := 0; row < rows; row++ {
		idx := start + row
		y := y0 + row
		if idx >= total {
			clearRow(r.screen, x0, y, width)
			continue
		}
		drawLine(r.screen, x0, y, width, lines[idx])
	}
}

// lineStyle maps a message-area line's rendering role to a concrete
// tcell style.
func lineStyle(kind assistantview.LineKind) tcell.Style {
	style := tcell.StyleDefault
	switch kind {
	case assistantview.LineUser:
		return style.Foreground(tcell.ColorTeal)
	case assistantview.LineAssistant:
		return style.Foreground(tcell.ColorWhite)
	case assistantview.LineSystem:
		return style.Foreground(tcell.ColorGray)
	case assistantview.LineCardCommand:
		return style.Background(tcell.ColorDarkSlateGray).Bold(true)
	case assistantview.LineCardBorder, assistantview.LineCardExplanation, assistantview.LineCardButtons:
		return style.Background(tcell.ColorDarkSlateGray)
	}
	return style
}

func drawLine(s Screen, x0, y, width int, line assistantview.Line) {
	style := lineStyle(line.Kind)
	col := 0
	for _, ch := range line.Text {
		if col >= width {
			break
		}
		s.SetContent(x0+col, y, ch, nil, style)
		col++
	}
	for ; col < width; col++ {
		s.SetContent(x0+col, y, ' ', nil, style)
	}
}

func clearRow(s Screen, x0, y, width int) {
	for col := 0; col < width; col++ {
		s.SetContent(x0+col, y, ' ', nil, tcell.StyleDefault)
	}
}

func (r *Renderer) renderInputBox(x0, width, y0, rows int) {
	editor := r.view.Input()
	lines := editor.WrappedLines()
	style := tcell.StyleDefault.Foreground(tcell.ColorYellow)

	for row := 0; row < rows; row++ {
		y := y0 + row
		if row == 0 {
			clearRow(r.screen, x0, y, width)
			r.screen.SetContent(x0, y, '>', nil, style)
			r.screen.SetContent(x0+1, y, ' ', nil, style)
		} else {
			clearRow(r.screen, x0, y, width)
		}
		if row < len(lines) {
			text := lines[row]
			col := 0
			if row == 0 {
				col = 2
			}
			for textCol, ch := range []rune(text) {
				if col >= width {
					break
				}
				cellStyle := style
				if editor.Selection().Contains(row, textCol) {
					cellStyle = cellStyle.Reverse(true)
				}
				r.screen.SetContent(x0+col, y, ch, nil, cellStyle)
				col++
			}
		}
	}
}

func (r *Renderer) positionCursor(splitCol int) {
	if r.router.Pane() == input.PaneTerminal {
		row, col := r.disp.CursorPosition()
		if r.disp.ScrollOffset() != 0 {
			r.screen.HideCursor()
			return
		}
		if col >= splitCol {
			col = splitCol - 1
		}
		r.screen.ShowCursor(col, row)
		return
	}
	r.screen.HideCursor()
}

// runStyle converts a display.Run's color/attribute fields into a
// tcell.Style.
func runStyle(run display.Run) tcell.Style {
	style := tcell.StyleDefault
	style = style.Foreground(toTcellColor(run.FG))
	style = style.Background(toTcellColor(run.BG))
	style = style.Bold(run.Bold).Italic(run.Italic).Underline(run.Underline).Reverse(run.Reverse)
	return style
}

func toTcellColor(c display.Color) tcell.Color {
	switch c.Kind {
	case display.ColorNamed:
		return tcell.PaletteColor(int(c.Index))
	case display.ColorIndexed:
		return tcell.PaletteColor(int(c.Index))
	case display.ColorRGB:
		return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
	default:
		return tcell.ColorDefault
	}
}
