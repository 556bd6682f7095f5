package queryfilter

import (
	"strings"
	"testing"
)

type recordingWriter struct {
	writes []string
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

func TestCPRReply(t *testing.T) {
	f := New()
	w := &recordingWriter{}
	cursor := func() (int, int) { return 3, 7 }

	out, qlog := f.Process([]byte("hello\x1b[6nworld"), w, cursor)

	if string(out) != "helloworld" {
		t.Errorf("filtered = %q, want %q", out, "helloworld")
	}
	if len(w.writes) != 1 || w.writes[0] != "\x1b[4;8R" {
		t.Errorf("writer received %v, want one write of %q", w.writes, "\x1b[4;8R")
	}
	if len(qlog) != 1 || !strings.Contains(qlog[0], "CPR") {
		t.Errorf("query log = %v, want a single CPR entry", qlog)
	}
}

func TestPrimaryDA(t *testing.T) {
	for _, q := range []string{"\x1b[c", "\x1b[0c"} {
		f := New()
		w := &recordingWriter{}
		out, _ := f.Process([]byte("pre"+q+"post"), w, func() (int, int) { return 0, 0 })
		if string(out) != "prepost" {
			t.Errorf("query %q: filtered = %q, want prepost", q, out)
		}
		if len(w.writes) != 1 || w.writes[0] != "\x1b[?1;2c" {
			t.Errorf("query %q: writer = %v, want [?1;2c]", q, w.writes)
		}
	}
}

func TestSecondaryDA(t *testing.T) {
	for _, q := range []string{"\x1b[>c", "\x1b[>0c"} {
		f := New()
		w := &recordingWriter{}
		out, _ := f.Process([]byte(q), w, func() (int, int) { return 0, 0 })
		if len(out) != 0 {
			t.Errorf("query %q: filtered = %q, want empty", q, out)
		}
		if len(w.writes) != 1 || w.writes[0] != "\x1b[>0;276;0c" {
			t.Errorf("query %q: writer = %v, want [>0;276;0c]", q, w.writes)
		}
	}
}

func TestNoQuerySubstringsSurviveFilter(t *testing.T) {
	inputs := []string{
		"\x1b[6n",
		"\x1b[c",
		"\x1b[0c",
		"\x1b[>c",
		"\x1b[>0c",
		"mix\x1b[6nof\x1b[cqueries\x1b[>0c",
	}
	queries := []string{"\x1b[6n", "\x1b[c", "\x1b[0c", "\x1b[>c", "\x1b[>0c"}
	replies := []string{"\x1b[?1;2c", "\x1b[>0;276;0c"}

	for _, in := range inputs {
		f := New()
		filtered, _ := f.Process([]byte(in), &recordingWriter{}, func() (int, int) { return 0, 0 })
		out := string(filtered)
		for _, q := range queries {
			if strings.Contains(out, q) {
				t.Errorf("input %q: output %q still contains query %q", in, out, q)
			}
		}
		for _, r := range replies {
			if strings.Contains(out, r) {
				t.Errorf("input %q: output %q still contains reply %q", in, out, r)
			}
		}
	}
}

func TestMouseModeToggle(t *testing.T) {
	f := New()
	if f.MouseModeEnabled() {
		t.Fatal("mouse mode should start disabled")
	}

	out, _ := f.Process([]byte("before\x1b[?1000hafter"), &recordingWriter{}, nil)
	if !f.MouseModeEnabled() {
		t.Error("mouse mode should be enabled after ESC[?1000h")
	}
	// the enabling sequence itself is left in the stream for the VT emulator
	if !strings.Contains(string(out), "\x1b[?1000h") {
		t.Error("enable sequence should not be stripped from the chunk")
	}

	f.Process([]byte("\x1b[?1000l"), &recordingWriter{}, nil)
	if f.MouseModeEnabled() {
		t.Error("mouse mode should be disabled after ESC[?1000l")
	}
}

func TestSGRMouseModeToggle(t *testing.T) {
	f := New()
	f.Process([]byte("\x1b[?1006h"), &recordingWriter{}, nil)
	if !f.MouseModeEnabled() {
		t.Error("mouse mode should be enabled after ESC[?1006h")
	}
}
