// Package display feeds a filtered byte stream into an embedded VT
// emulator and exposes the result as styled, scroll-aware lines.
//
// It wraps github.com/charmbracelet/x/vt and additionally owns the
// scroll-offset state: while pinned to the bottom, new output stays
// visible; once the user scrolls up, the view freezes until they
// return to the bottom.
package display

import (
	"image/color"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"
	"github.com/mattn/go-runewidth"
)

// DefaultScrollback is the number of lines retained once they scroll
// off the top of the viewport.
const DefaultScrollback = 20000

// Color is a small tagged union over the three ways a cell's
// foreground/background can be expressed: a named ANSI color (0-15),
// an indexed color (0-255), or 24-bit RGB.
type Color struct {
	Kind ColorKind
	// Index holds the value for Named and Indexed kinds.
	Index   uint8
	R, G, B uint8
}

// ColorKind tags which fields of Color are meaningful.
type ColorKind int

const (
	ColorDefault ColorKind = iota
	ColorNamed
	ColorIndexed
	ColorRGB
)

// Run is a maximal span of cells sharing identical style.
type Run struct {
	Text          string
	FG, BG        Color
	Bold, Italic  bool
	Underline     bool
	Reverse       bool
}

// StyledLine is one visible row, decomposed into style-homogeneous
// runs. An all-blank row is represented as a single run of spaces, so
// layout code can rely on every line having at least one run.
type StyledLine struct {
	Runs []Run
}

// Display owns the VT emulator, the scrollback it has captured, and
// the scroll-offset cursor into that history.
type Display struct {
	mu sync.Mutex

	term vt.Terminal

	rows, cols int

	scrollback    []StyledLine
	maxScrollback int

	scrollOffset int
}

// New creates a Display sized rows x cols with the default scrollback
// capacity.
func New(rows, cols int) *Display {
	return NewWithScrollback(rows, cols, DefaultScrollback)
}

// NewWithScrollback creates a Display with a custom scrollback limit.
func NewWithScrollback(rows, cols, scrollback int) *Display {
	return &Display{
		term:          vt.NewSafeEmulator(cols, rows),
		rows:          rows,
		cols:          cols,
		maxScrollback: scrollback,
	}
}

// Process drives the VT parser with filtered bytes. Before writing, it
// snapshots the top row of the live viewport; if that row is no
// longer present at the top afterward, the emulator scrolled and the
// snapshot is pushed into our own scrollback buffer, an app-maintained
// slice alongside the embedded emulator rather than anything the
// emulator itself exposes as history.
//
// If the view is currently pinned to the bottom (scrollOffset == 0)
// the grid reflects the new state immediately; if the user has
// scrolled up, the visible window is left unchanged until they return
// to the bottom, even though the underlying emulator keeps advancing.
func (d *Display) Process(data []byte) {
	d.mu.Lock()
	before := d.snapshotRow(0)
	d.mu.Unlock()

	d.term.Write(data)

	d.mu.Lock()
	defer d.mu.Unlock()
	after := d.snapshotRow(0)
	if !rowsEqual(before, after) && !rowIsBlank(before) {
		d.scrollback = append(d.scrollback, before)
		if len(d.scrollback) > d.maxScrollback {
			d.scrollback = d.scrollback[len(d.scrollback)-d.maxScrollback:]
		}
		// A browsing user stays anchored to the same history lines as
		// new output arrives; only a pinned view follows the bottom.
		if d.scrollOffset > 0 {
			d.scrollOffset = clamp(d.scrollOffset+1, 0, len(d.scrollback))
		}
	}
}

func rowsEqual(a, b StyledLine) bool {
	if len(a.Runs) != len(b.Runs) {
		return false
	}
	for i := range a.Runs {
		if a.Runs[i] != b.Runs[i] {
			return false
		}
	}
	return true
}

func rowIsBlank(l StyledLine) bool {
	for _, r := range l.Runs {
		for _, ch := range r.Text {
			if ch != ' ' {
				return false
			}
		}
	}
	return true
}

// CursorPosition returns the cursor's row/col in viewport coordinates.
// Rows addressed from scrollback clamp to 0.
func (d *Display) CursorPosition() (row, col int) {
	pos := d.term.CursorPosition()
	if pos.Y < 0 {
		pos.Y = 0
	}
	return pos.Y, pos.X
}

// Resize forwards the new size to the emulator. The scrollback lines
// this Display has captured are kept as they are; they are not
// reflowed to the new width.
func (d *Display) Resize(rows, cols int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows, d.cols = rows, cols
	d.term.Resize(cols, rows)
}

// HistorySize reports how many lines of scrollback are currently
// addressable above the live viewport.
func (d *Display) HistorySize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scrollback)
}

// ScrollUp moves the view n lines further back into history, clamped
// to the available history size.
func (d *Display) ScrollUp(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrollOffset = clamp(d.scrollOffset+n, 0, len(d.scrollback))
}

// ScrollDown moves the view n lines toward the bottom, clamped at 0.
func (d *Display) ScrollDown(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrollOffset = clamp(d.scrollOffset-n, 0, len(d.scrollback))
}

// ScrollToBottom pins the view to the live viewport.
func (d *Display) ScrollToBottom() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrollOffset = 0
}

// ScrollOffset reports the current offset in lines from the bottom.
func (d *Display) ScrollOffset() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrollOffset
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VisibleLines materializes the current window (live viewport, or the
// scrollback window named by scrollOffset) as styled runs. Wide-spacer
// cells (the second column of an east-asian double-width glyph) are
// skipped; an all-blank row yields one run of spaces.
func (d *Display) VisibleLines() []StyledLine {
	d.mu.Lock()
	defer d.mu.Unlock()

	lines := make([]StyledLine, d.rows)
	for y := 0; y < d.rows; y++ {
		lines[y] = d.renderRow(y)
	}
	return lines
}

// renderRow returns row y of the current window: y is relative to the
// top of the viewport as currently scrolled. Rows that fall before the
// live viewport (because scrollOffset > 0) are served from the
// app-maintained scrollback buffer; CellAt is only ever called with a
// non-negative row, since that is the only index the embedded emulator
// is known to support.
func (d *Display) renderRow(y int) StyledLine {
	srcY := y - d.scrollOffset
	if srcY >= 0 {
		return d.snapshotRow(srcY)
	}

	idx := len(d.scrollback) + srcY
	if idx < 0 || idx >= len(d.scrollback) {
		return StyledLine{Runs: []Run{{}}}
	}
	return d.scrollback[idx]
}

// snapshotRow renders row y of the live viewport (y >= 0) into a
// StyledLine. Callers must hold d.mu.
func (d *Display) snapshotRow(y int) StyledLine {
	var runs []Run
	var cur *Run

	flush := func() {
		if cur != nil {
			runs = append(runs, *cur)
			cur = nil
		}
	}

	x := 0
	for x < d.cols {
		var ch rune = ' '
		var fg, bg Color
		var bold, italic, underline, reverse bool

		cell := d.term.CellAt(x, y)
		if cell != nil && cell.Content != "" {
			runes := []rune(cell.Content)
			if len(runes) > 0 {
				ch = runes[0]
			}
			fg = convertColor(cell.Style.Fg)
			bg = convertColor(cell.Style.Bg)
			bold = cell.Style.Attrs&uv.AttrBold != 0
			italic = cell.Style.Attrs&uv.AttrItalic != 0
			underline = cell.Style.Underline != uv.UnderlineStyleNone
			reverse = cell.Style.Attrs&uv.AttrReverse != 0
		}

		width := runewidth.RuneWidth(ch)
		if width < 1 {
			width = 1
		}

		if cur != nil && sameStyle(cur, fg, bg, bold, italic, underline, reverse) {
			cur.Text += string(ch)
		} else {
			flush()
			cur = &Run{Text: string(ch), FG: fg, BG: bg, Bold: bold, Italic: italic, Underline: underline, Reverse: reverse}
		}

		if width == 2 {
			// the next column is a wide-spacer cell; skip it entirely,
			// it carries no independent content.
			x++
		}
		x++
	}
	flush()

	if len(runs) == 0 {
		runs = []Run{{}}
	}
	return StyledLine{Runs: runs}
}

func sameStyle(r *Run, fg, bg Color, bold, italic, underline, reverse bool) bool {
	return r.FG == fg && r.BG == bg && r.Bold == bold && r.Italic == italic && r.Underline == underline && r.Reverse == reverse
}

// convertColor maps the emulator's cell colors onto the three-kind
// model. The emulator reports colors as the ansi package's concrete
// types, so named (0-15) and indexed (0-255) colors stay symbolic and
// only true-color values (or any unrecognized color.Color) are
// flattened to RGB.
func convertColor(c color.Color) Color {
	switch v := c.(type) {
	case nil:
		return Color{Kind: ColorDefault}
	case ansi.BasicColor:
		return Color{Kind: ColorNamed, Index: uint8(v)}
	case ansi.ExtendedColor:
		return Color{Kind: ColorIndexed, Index: uint8(v)}
	}
	r, g, b, _ := c.RGBA()
	return Color{Kind: ColorRGB, R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}
