package commandlog

import (
	"strings"
	"testing"
)

func TestLogCapacityEviction(t *testing.T) {
	l := New(3)
	for i := 0; i < 5; i++ {
		l.StartNewCommand(string(rune('a' + i)))
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	got := l.Records()[0].CommandLine
	if got != "c" {
		t.Errorf("oldest surviving record = %q, want %q", got, "c")
	}
}

func TestAppendOutputTargetsMostRecent(t *testing.T) {
	l := New(2)
	l.StartNewCommand("ls")
	l.AppendOutput("foo\n")
	l.StartNewCommand("pwd")
	l.AppendOutput("/tmp\n")

	recs := l.Records()
	if recs[0].Output != "foo\n" {
		t.Errorf("recs[0].Output = %q, want %q", recs[0].Output, "foo\n")
	}
	if recs[1].Output != "/tmp\n" {
		t.Errorf("recs[1].Output = %q, want %q", recs[1].Output, "/tmp\n")
	}
}

func TestAppendOutputNoOpBeforeAnyCommand(t *testing.T) {
	l := New(2)
	l.AppendOutput("stray\n")
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestStripRemovesCSI(t *testing.T) {
	in := "\x1b[31mred\x1b[0m text"
	if got := Strip(in); got != "red text" {
		t.Errorf("Strip(%q) = %q, want %q", in, got, "red text")
	}
}

func TestStripRemovesOSC(t *testing.T) {
	in := "\x1b]0;title\atext"
	if got := Strip(in); got != "text" {
		t.Errorf("Strip(%q) = %q, want %q", in, got, "text")
	}
	in2 := "\x1b]0;title\x1b\\text"
	if got := Strip(in2); got != "text" {
		t.Errorf("Strip(%q) = %q, want %q", in2, got, "text")
	}
}

func TestStripIsIdempotent(t *testing.T) {
	inputs := []string{
		"\x1b[31mred\x1b[0m",
		"plain text",
		"\x1b]0;t\a\x1b[1mbold\x1b[0m",
	}
	for _, in := range inputs {
		once := Strip(in)
		twice := Strip(once)
		if once != twice {
			t.Errorf("Strip not idempotent on %q: first=%q second=%q", in, once, twice)
		}
	}
}

func TestStripLeavesNoControlBytes(t *testing.T) {
	in := "a\x1b[1;2Hb\x1b[Kc"
	out := Strip(in)
	if strings.ContainsRune(out, '\x1b') {
		t.Errorf("Strip(%q) = %q still contains ESC", in, out)
	}
}

func TestBuildSnapshotFiltersEnvironment(t *testing.T) {
	l := New(5)
	l.StartNewCommand("ls")
	l.AppendOutput("a\nb\nc\n")

	environ := []string{"SHELL=/bin/bash", "SECRET_TOKEN=xyz", "LC_ALL=C"}
	snap := BuildSnapshot("/home/user", environ, l, 2)

	if snap.Environment["SHELL"] != "/bin/bash" {
		t.Errorf("expected SHELL to be allowlisted, got %v", snap.Environment)
	}
	if _, ok := snap.Environment["SECRET_TOKEN"]; ok {
		t.Errorf("SECRET_TOKEN should not be allowlisted, got %v", snap.Environment)
	}
	if snap.Environment["LC_ALL"] != "C" {
		t.Errorf("expected LC_ALL to match the LC_ prefix, got %v", snap.Environment)
	}
	if len(snap.RecentOutput) != 2 {
		t.Errorf("RecentOutput = %v, want last 2 lines", snap.RecentOutput)
	}
}

func TestRenderSystemPrefixIncludesCwd(t *testing.T) {
	snap := Snapshot{WorkingDirectory: "/tmp/proj"}
	out := RenderSystemPrefix(snap)
	if !strings.Contains(out, "/tmp/proj") {
		t.Errorf("RenderSystemPrefix() = %q, want to contain cwd", out)
	}
}
