package selection

import (
	"testing"

	"github.com/trybotster/termsuite/internal/display"
)

func line(text string, width int) display.StyledLine {
	runes := []rune(text)
	for len(runes) < width {
		runes = append(runes, ' ')
	}
	return display.StyledLine{Runs: []display.Run{{Text: string(runes)}}}
}

func TestBeginExtendContains(t *testing.T) {
	s := New()
	s.Begin(Point{Row: 0, Col: 2})
	s.Extend(Point{Row: 0, Col: 5})

	if !s.Contains(0, 2) || !s.Contains(0, 5) {
		t.Error("expected endpoints to be contained")
	}
	if s.Contains(0, 1) || s.Contains(0, 6) {
		t.Error("expected columns outside the range to be excluded")
	}
	if s.Contains(1, 2) {
		t.Error("expected a different row to be excluded")
	}
}

func TestBoundsNormalizesReversedDrag(t *testing.T) {
	s := New()
	s.Begin(Point{Row: 2, Col: 5})
	s.Extend(Point{Row: 0, Col: 1})

	start, end := s.Bounds()
	if start.Row != 0 || end.Row != 2 {
		t.Errorf("Bounds() = %+v, %+v, want start.Row=0 end.Row=2", start, end)
	}
}

func TestExtractSingleLine(t *testing.T) {
	s := New()
	s.Begin(Point{Row: 0, Col: 0})
	s.Extend(Point{Row: 0, Col: 4})

	lines := []display.StyledLine{line("hello world", 20)}
	if got := s.Extract(lines); got != "hello" {
		t.Errorf("Extract() = %q, want %q", got, "hello")
	}
}

func TestExtractMultiLine(t *testing.T) {
	s := New()
	s.Begin(Point{Row: 0, Col: 6})
	s.Extend(Point{Row: 1, Col: 2})

	lines := []display.StyledLine{
		line("hello world", 11),
		line("foo bar", 7),
	}
	if got := s.Extract(lines); got != "world\nfoo" {
		t.Errorf("Extract() = %q, want %q", got, "world\nfoo")
	}
}

func TestBeginWordSelectsWholeWord(t *testing.T) {
	s := New()
	l := line("hello world", 11)
	s.BeginWord(Point{Row: 0, Col: 7}, l)

	if got := s.Extract([]display.StyledLine{l}); got != "world" {
		t.Errorf("Extract() after BeginWord = %q, want %q", got, "world")
	}
}

func TestBeginWordTreatsHyphenAsBoundary(t *testing.T) {
	s := New()
	l := line("  foo-bar baz  ", 15)

	s.BeginWord(Point{Row: 0, Col: 3}, l)
	if got := s.Extract([]display.StyledLine{l}); got != "foo" {
		t.Errorf("double-click on foo = %q, want %q", got, "foo")
	}

	s.BeginWord(Point{Row: 0, Col: 11}, l)
	if got := s.Extract([]display.StyledLine{l}); got != "baz" {
		t.Errorf("double-click on baz = %q, want %q", got, "baz")
	}
}

func TestBeginWordOnWhitespaceSelectsNothing(t *testing.T) {
	s := New()
	l := line("hello world", 11)
	s.BeginWord(Point{Row: 0, Col: 5}, l)

	if got := s.Extract([]display.StyledLine{l}); got != "" {
		t.Errorf("Extract() on whitespace = %q, want empty", got)
	}
}

func TestBeginLineSelectsFullRow(t *testing.T) {
	s := New()
	s.BeginLine(0, 10)

	lines := []display.StyledLine{line("hi", 11)}
	if got := s.Extract(lines); got != "hi" {
		t.Errorf("Extract() after BeginLine = %q, want %q", got, "hi")
	}
}

func TestClearDeactivates(t *testing.T) {
	s := New()
	s.Begin(Point{Row: 0, Col: 0})
	s.Clear()
	if s.Active() {
		t.Error("expected Active() false after Clear")
	}
	if s.Contains(0, 0) {
		t.Error("expected Contains() false after Clear")
	}
}

func TestDisplayWidthWideCharacter(t *testing.T) {
	if DisplayWidth("a") != 1 {
		t.Errorf("DisplayWidth(\"a\") = %d, want 1", DisplayWidth("a"))
	}
	if w := DisplayWidth("中"); w != 2 {
		t.Errorf("DisplayWidth(wide char) = %d, want 2", w)
	}
}
