// Package selection tracks a mouse-driven text selection over a grid
// of styled lines and extracts the selected text as a copy-paste
// string.
//
// A selection is a pair of (row, col) endpoints. Which endpoint is
// "start" and which is "end" does not matter for rendering or
// extraction; both are normalized before use rather than tracking the
// drag direction explicitly.
package selection

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/mattn/go-runewidth"

	"github.com/trybotster/termsuite/internal/display"
)

// Point is one endpoint of a selection, in viewport row/col
// coordinates.
type Point struct {
	Row, Col int
}

func (p Point) less(o Point) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Col < o.Col
}

// Mode distinguishes a plain character-drag selection from the
// word/line selections a double/triple click produces.
type Mode int

const (
	ModeChar Mode = iota
	ModeWord
	ModeLine
)

// Selection holds the current anchor/head pair, if any is active.
type Selection struct {
	active bool
	mode   Mode
	anchor Point
	head   Point
}

// New returns an empty, inactive Selection.
func New() *Selection {
	return &Selection{}
}

// Begin starts a fresh character selection anchored at p.
func (s *Selection) Begin(p Point) {
	s.active = true
	s.mode = ModeChar
	s.anchor = p
	s.head = p
}

// Extend moves the head of an active selection to p. It is a no-op if
// no selection is active.
func (s *Selection) Extend(p Point) {
	if !s.active {
		return
	}
	s.head = p
}

// BeginWord starts a word-mode selection anchored at the word under
// p, as determined against line's text.
func (s *Selection) BeginWord(p Point, line display.StyledLine) {
	start, end := wordBoundsAt(line, p.Col)
	s.active = true
	s.mode = ModeWord
	s.anchor = Point{Row: p.Row, Col: start}
	s.head = Point{Row: p.Row, Col: end}
}

// BeginLine starts a line-mode selection spanning the full width of
// row.
func (s *Selection) BeginLine(row, width int) {
	s.active = true
	s.mode = ModeLine
	s.anchor = Point{Row: row, Col: 0}
	s.head = Point{Row: row, Col: width}
}

// Clear deactivates the selection.
func (s *Selection) Clear() {
	s.active = false
}

// Active reports whether a selection is currently in effect.
func (s *Selection) Active() bool {
	return s.active
}

// Bounds returns the normalized (start, end) endpoints, start <= end
// in reading order.
func (s *Selection) Bounds() (start, end Point) {
	if s.anchor.less(s.head) {
		return s.anchor, s.head
	}
	return s.head, s.anchor
}

// Contains reports whether (row, col) falls within the selection,
// using the same normalized endpoint comparison Extract uses, so a
// renderer reverse-videos exactly the cells extraction would return.
func (s *Selection) Contains(row, col int) bool {
	if !s.active {
		return false
	}
	start, end := s.Bounds()
	p := Point{Row: row, Col: col}
	return !p.less(start) && p.less(Point{Row: end.Row, Col: end.Col + 1})
}

// Extract renders the selected span of lines to plain text, joining
// rows with newlines and trimming trailing padding spaces from each
// line the way a terminal's own copy-to-clipboard behavior does.
func (s *Selection) Extract(lines []display.StyledLine) string {
	if !s.active {
		return ""
	}
	start, end := s.Bounds()
	if start.Row < 0 {
		start.Row = 0
	}
	if end.Row >= len(lines) {
		end.Row = len(lines) - 1
	}
	if start.Row > end.Row {
		return ""
	}

	var out strings.Builder
	for row := start.Row; row <= end.Row; row++ {
		text := lineText(lines[row])
		runes := []rune(text)

		from, to := 0, len(runes)
		if row == start.Row {
			from = clampIndex(start.Col, len(runes))
		}
		if row == end.Row {
			to = clampIndex(end.Col+1, len(runes))
		}
		if from > to {
			from = to
		}

		out.WriteString(strings.TrimRight(string(runes[from:to]), " "))
		if row != end.Row {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func lineText(l display.StyledLine) string {
	var b strings.Builder
	for _, r := range l.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// wordBoundsAt returns the [start, end] column range (end inclusive)
// of the word containing column col in line, using Unicode word
// segmentation so multi-byte and combining sequences are treated as
// single units. If col falls on whitespace or outside any segment,
// start and end both equal col.
func wordBoundsAt(line display.StyledLine, col int) (start, end int) {
	text := lineText(line)
	runes := []rune(text)
	if col < 0 {
		col = 0
	}
	if col >= len(runes) {
		return col, col
	}

	// go-runewidth gives the display width, but word segmentation
	// operates on byte offsets into the UTF-8 text; since every
	// column in our rendered line corresponds 1:1 to a rune except
	// for the spacer columns already elided when the line was built,
	// a rune index is the right unit here.
	byteOffsets := runeByteOffsets(text)
	targetByte := byteOffsets[col]

	seg := words.FromString(text)
	pos := 0
	for seg.Next() {
		word := seg.Value()
		wLen := len(word)
		if targetByte >= pos && targetByte < pos+wLen {
			if !isWordLike(word) {
				return col, col
			}
			startCol := runeColumnForByte(byteOffsets, pos)
			endCol := runeColumnForByte(byteOffsets, pos+wLen-1)
			return startCol, endCol
		}
		pos += wLen
	}
	return col, col
}

func isWordLike(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' {
			return false
		}
	}
	return len(strings.TrimSpace(s)) > 0
}

func runeByteOffsets(s string) []int {
	offsets := make([]int, 0, len(s))
	b := 0
	for _, r := range s {
		offsets = append(offsets, b)
		b += len(string(r))
	}
	offsets = append(offsets, b)
	return offsets
}

func runeColumnForByte(offsets []int, target int) int {
	for i, o := range offsets {
		if o == target {
			return i
		}
		if o > target {
			if i == 0 {
				return 0
			}
			return i - 1
		}
	}
	return len(offsets) - 1
}

// DisplayWidth reports the terminal column width of s, accounting for
// east-asian wide characters the same way the display package skips
// spacer cells for.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}
