package assistantview

import (
	"testing"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/selection"
)

func selectionPoint(row, col int) selection.Point {
	return selection.Point{Row: row, Col: col}
}

func displayLine(text string) display.StyledLine {
	return display.StyledLine{Runs: []display.Run{{Text: text}}}
}

func TestSyncSessionTabsBuildsHitRectangles(t *testing.T) {
	v := New()
	v.SyncSessionTabs([]aisession.ID{1, 2}, 1, func(id aisession.ID) string {
		if id == 1 {
			return "1"
		}
		return "2"
	})
	if len(v.Tabs()) != 2 {
		t.Fatalf("expected 2 tabs, got %d", len(v.Tabs()))
	}
	if id, ok := v.TabAt(0, 0); !ok || id != 1 {
		t.Errorf("expected tab 1 at (0,0), got %v ok=%v", id, ok)
	}
	secondX := v.Tabs()[1].Rect.X
	if id, ok := v.TabAt(secondX, 0); !ok || id != 2 {
		t.Errorf("expected tab 2 at (%d,0), got %v ok=%v", secondX, id, ok)
	}
	if _, ok := v.TabAt(9999, 0); ok {
		t.Error("expected no tab far outside the bar")
	}
}

func TestPushAndStreamAssistantMessage(t *testing.T) {
	const sid aisession.ID = 1
	v := New()
	v.PushUserMessage(sid, "hello")
	v.StartAssistantMessage(sid)
	v.ApplyChunk(sid, "Hi ")
	v.ApplyChunk(sid, "there")
	v.FinalizeAssistantMessage(sid)

	msgs := v.Messages(sid)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].Text != "Hi there" {
		t.Errorf("expected merged chunk text, got %q", msgs[1].Text)
	}
	if msgs[1].Streaming {
		t.Error("expected streaming cleared after finalize")
	}
}

func TestCommandSuggestionLifecycle(t *testing.T) {
	const sid aisession.ID = 1
	v := New()
	cmds := []aisession.CommandSuggestionItem{
		{Command: "ls -la", Explanation: "list files"},
		{Command: "pwd", Explanation: "show cwd"},
	}
	v.ShowCommandSuggestion(sid, cmds)

	if cmd, ok := v.ConfirmCommand(sid); !ok || cmd != "ls -la" {
		t.Fatalf("expected first command selected, got %q ok=%v", cmd, ok)
	}
	v.CycleSuggestion(sid)
	if cmd, ok := v.ConfirmCommand(sid); !ok || cmd != "pwd" {
		t.Fatalf("expected cycle to second command, got %q ok=%v", cmd, ok)
	}
	v.CycleSuggestion(sid)
	if cmd, ok := v.ConfirmCommand(sid); !ok || cmd != "ls -la" {
		t.Fatalf("expected cycle to wrap back to first, got %q ok=%v", cmd, ok)
	}

	v.RejectCommand(sid)
	if _, ok := v.ConfirmCommand(sid); ok {
		t.Error("expected no active suggestion after reject")
	}
}

func TestLayoutCardProducesNonOverlappingRects(t *testing.T) {
	card := &CardLayout{Commands: []aisession.CommandSuggestionItem{{Command: "x"}}}
	LayoutCard(card, 40, 3)
	if card.ExecuteRect.X >= card.CancelRect.X || card.CancelRect.X >= card.NextRect.X {
		t.Errorf("expected left-to-right non-overlapping buttons, got %+v %+v %+v",
			card.ExecuteRect, card.CancelRect, card.NextRect)
	}
}

func TestEditorInsertBackspaceDelete(t *testing.T) {
	e := newEditor()
	e.Insert("helo")
	e.MoveCursor(-1)
	e.Insert("l")
	if e.Text() != "hello" {
		t.Fatalf("expected %q, got %q", "hello", e.Text())
	}
	e.MoveCursor(100)
	e.Backspace()
	if e.Text() != "hell" {
		t.Errorf("expected backspace to remove trailing rune, got %q", e.Text())
	}
	e.MoveCursor(-4)
	e.Delete()
	if e.Text() != "ell" {
		t.Errorf("expected delete to remove leading rune, got %q", e.Text())
	}
}

func TestEditorSelectionExtractsAndClearsOnEdit(t *testing.T) {
	e := newEditor()
	e.SetWidth(40)
	e.Insert("hello world")

	e.Selection().BeginWord(selectionPoint(0, 7), displayLine(e.WrappedLines()[0]))
	if got := e.SelectedText(); got != "world" {
		t.Fatalf("SelectedText() = %q, want %q", got, "world")
	}

	e.Insert("!")
	if e.Selection().Active() {
		t.Error("expected edit to clear the selection")
	}
}

func TestEditorTakeClearsBuffer(t *testing.T) {
	e := newEditor()
	e.Insert("send this")
	got := e.Take()
	if got != "send this" {
		t.Fatalf("expected %q, got %q", "send this", got)
	}
	if e.Text() != "" {
		t.Errorf("expected buffer cleared after Take, got %q", e.Text())
	}
}

func TestWrapTextBreaksOnWordBoundaries(t *testing.T) {
	lines := wrapText("one two three four", 9)
	for _, l := range lines {
		if len([]rune(l)) > 9 {
			t.Errorf("line %q exceeds width 9", l)
		}
	}
	if len(lines) < 2 {
		t.Errorf("expected wrapping to produce multiple lines, got %v", lines)
	}
}

func TestScrollClampsAtBottom(t *testing.T) {
	const sid aisession.ID = 1
	v := New()
	v.ScrollUp(sid, 5)
	if v.ScrollOffset(sid) != 5 {
		t.Fatalf("expected offset 5, got %d", v.ScrollOffset(sid))
	}
	v.ScrollDown(sid, 10)
	if v.ScrollOffset(sid) != 0 {
		t.Errorf("expected offset clamped to 0, got %d", v.ScrollOffset(sid))
	}
}
