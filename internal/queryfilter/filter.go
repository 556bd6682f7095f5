// Package queryfilter intercepts VT queries that a guest program emits
// and answers them out-of-band, stripping the query bytes from the
// stream before a parser ever sees them.
//
// Recognized queries are Cursor Position Report (CPR, ESC[6n) and
// primary/secondary Device Attributes (DA). The filter also tracks
// xterm mouse-reporting mode enable/disable sequences so the input
// router knows whether to pass mouse events through to the guest.
package queryfilter

import (
	"strconv"
	"strings"
)

// CursorProvider returns the current cursor position in viewport
// coordinates, invoked lazily only when a CPR query is present in a
// chunk.
type CursorProvider func() (row, col int)

// Writer is the out-of-band channel replies are sent on — the same
// writer the guest program's own input arrives through.
type Writer interface {
	Write(p []byte) (int, error)
}

// Filter holds the mouse-mode toggle state across calls to Process.
// A Filter is not safe for concurrent use; it is driven exclusively
// from within PTY Channel's read path.
type Filter struct {
	mouseModeEnabled bool
}

// New creates a Filter with mouse reporting initially disabled.
func New() *Filter {
	return &Filter{}
}

// MouseModeEnabled reports whether the guest has most recently enabled
// one of the xterm mouse tracking modes (1000, 1002, 1003) or SGR
// extended coordinates (1006).
func (f *Filter) MouseModeEnabled() bool {
	return f.mouseModeEnabled
}

const (
	cprQuery         = "\x1b[6n"
	daPrimary0       = "\x1b[0c"
	daPrimary        = "\x1b[c"
	daSecond0        = "\x1b[>0c"
	daSecond         = "\x1b[>c"
	daSecondaryReply = "\x1b[>0;276;0c"
	daPrimaryReply   = "\x1b[?1;2c"
)

// Process scans chunk for recognized queries and mouse-mode toggles,
// writes replies for queries to w, and returns the chunk with every
// recognized query (and its reply, if ever echoed back by the kernel
// line discipline) removed, plus one log line per query answered or
// mouse mode toggled. Mouse-mode enable/disable sequences are
// observed but left in the chunk — they are ordinary CSI sequences
// the VT emulator itself should also see. It never blocks.
func (f *Filter) Process(chunk []byte, w Writer, cursor CursorProvider) (filtered []byte, queryLog []string) {
	s := string(chunk)
	queryLog = f.scanMouseModes(s, queryLog)
	s, queryLog = f.answerQueries(s, w, cursor, queryLog)
	s = f.stripEchoedReplies(s)
	return []byte(s), queryLog
}

// stripEchoedReplies removes our own reply text if the PTY's line
// discipline ever echoes input-channel bytes back into the output
// stream (some shells in certain modes do this for control sequences
// written to the master before raw mode is fully established).
func (f *Filter) stripEchoedReplies(s string) string {
	s = strings.ReplaceAll(s, daPrimaryReply, "")
	s = strings.ReplaceAll(s, daSecondaryReply, "")
	return s
}

// answerQueries replies to CPR and DA queries and strips them from s.
// The 0-suffixed DA forms are matched before the bare ones; none of
// the four DA query strings contains another, so each pass removes
// only its own form. Matching is by plain substring, not by parsing
// whole escape sequences, so a query string that appears inside some
// longer sequence (an OSC or DCS payload, say) is also answered.
func (f *Filter) answerQueries(s string, w Writer, cursor CursorProvider, queryLog []string) (string, []string) {
	for strings.Contains(s, cprQuery) {
		row, col := 0, 0
		if cursor != nil {
			row, col = cursor()
		}
		reply := cprReply(row, col)
		if w != nil {
			w.Write([]byte(reply))
		}
		queryLog = append(queryLog, "CPR query answered with row="+strconv.Itoa(row+1)+" col="+strconv.Itoa(col+1))
		s = strings.Replace(s, cprQuery, "", 1)
	}

	s, queryLog = replaceAllWithReply(s, daPrimary0, daPrimaryReply, "primary DA query answered", w, queryLog)
	s, queryLog = replaceAllWithReply(s, daPrimary, daPrimaryReply, "primary DA query answered", w, queryLog)
	s, queryLog = replaceAllWithReply(s, daSecond0, daSecondaryReply, "secondary DA query answered", w, queryLog)
	s, queryLog = replaceAllWithReply(s, daSecond, daSecondaryReply, "secondary DA query answered", w, queryLog)

	return s, queryLog
}

func replaceAllWithReply(s, query, reply, logLine string, w Writer, queryLog []string) (string, []string) {
	for strings.Contains(s, query) {
		if w != nil {
			w.Write([]byte(reply))
		}
		queryLog = append(queryLog, logLine)
		s = strings.Replace(s, query, "", 1)
	}
	return s, queryLog
}

// cprReply formats a Cursor Position Report reply for a 0-based
// (row, col) viewport position.
func cprReply(row, col int) string {
	return "\x1b[" + strconv.Itoa(row+1) + ";" + strconv.Itoa(col+1) + "R"
}

// mouseModes lists the xterm mode numbers whose ESC[?{n}h enables
// reporting and ESC[?{n}l disables it. 1006 is the SGR coordinate
// extension and is tracked the same as the base modes. All of them
// drive one shared flag: scanMouseModes visits the modes in this
// order, and each mode present in a chunk sets the flag from its own
// last toggle there, so the last listed mode present decides it.
var mouseModes = []string{"1000", "1002", "1003", "1006"}

func (f *Filter) scanMouseModes(s string, queryLog []string) []string {
	for _, mode := range mouseModes {
		enable := "\x1b[?" + mode + "h"
		disable := "\x1b[?" + mode + "l"

		lastEnable := strings.LastIndex(s, enable)
		lastDisable := strings.LastIndex(s, disable)
		if lastEnable < 0 && lastDisable < 0 {
			continue
		}
		was := f.mouseModeEnabled
		f.mouseModeEnabled = lastEnable > lastDisable
		if f.mouseModeEnabled != was {
			state := "disabled"
			if f.mouseModeEnabled {
				state = "enabled"
			}
			queryLog = append(queryLog, "mouse reporting "+state+" (mode "+mode+")")
		}
	}
	return queryLog
}
