package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/assistantview"
	"github.com/trybotster/termsuite/internal/commandlog"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/input"
	"github.com/trybotster/termsuite/internal/llmclient"
	"github.com/trybotster/termsuite/internal/queryfilter"
)

type fakePTY struct {
	chunks      [][]byte
	idx         int
	err         error
	resizeRows  uint16
	resizeCols  uint16
	resizeCalls int
	injected    []string
}

func (f *fakePTY) Read(maxBytes int, cursor queryfilter.CursorProvider) (bool, []byte, []string) {
	if f.idx >= len(f.chunks) {
		return false, nil, nil
	}
	chunk := f.chunks[f.idx]
	f.idx++
	return true, chunk, nil
}
func (f *fakePTY) Err() error { return f.err }
func (f *fakePTY) Resize(rows, cols uint16) error {
	f.resizeRows, f.resizeCols = rows, cols
	f.resizeCalls++
	return nil
}
func (f *fakePTY) InjectVisible(cmd string) error {
	f.injected = append(f.injected, cmd)
	return nil
}

type fakeSink struct{}

func (fakeSink) Write(p []byte) (int, error) { return len(p), nil }
func (fakeSink) MouseModeEnabled() bool      { return false }

func newTestLoop(pty PTYReader) (*Loop, *int) {
	return newTestLoopWithClient(pty, nil)
}

func newTestLoopWithClient(pty PTYReader, client *llmclient.Client) (*Loop, *int) {
	disp := display.New(24, 80)
	view := assistantview.New()
	ai := aisession.NewManager(client)
	log := commandlog.New(50)
	router := input.New(fakeSink{}, disp, view, ai, log, 70)

	renders := 0
	l := New(nil, pty, disp, view, router, ai, log, fakeDebugLine{}, func() { renders++ })
	return l, &renders
}

type fakeDebugLine struct{}

func (fakeDebugLine) SetBatchSize(n int) {}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func TestPumpPTYFeedsDisplayAndLog(t *testing.T) {
	pty := &fakePTY{chunks: [][]byte{[]byte("hello\r\n")}}
	l, _ := newTestLoop(pty)

	hadOutput := l.pumpPTY()
	if !hadOutput {
		t.Fatal("expected hadOutput true")
	}
	// AppendOutput is a no-op until a command has started, so the log
	// stays empty even though the display saw the bytes.
	if l.log.Len() != 0 {
		t.Errorf("expected log to stay empty with no active command, got %d records", l.log.Len())
	}
}

func TestUpdateBatchSizeRampsAfterStreak(t *testing.T) {
	l, _ := newTestLoop(&fakePTY{})
	for i := 0; i < productiveStreak; i++ {
		l.updateBatchSize(true)
	}
	if l.batchSize != ptyBatchCeiling {
		t.Fatalf("expected batch size ramped to ceiling, got %d", l.batchSize)
	}
	l.updateBatchSize(false)
	if l.batchSize != ptyBatchBaseline {
		t.Fatalf("expected batch size reset to baseline, got %d", l.batchSize)
	}
}

func TestShouldRenderGate(t *testing.T) {
	l, _ := newTestLoop(&fakePTY{})
	now := time.Now()
	l.lastRender = now

	if !l.shouldRender(now, true, false) {
		t.Error("expected render on fresh input")
	}
	if l.shouldRender(now, false, false) {
		t.Error("expected no render immediately with no input/output")
	}
	if !l.shouldRender(now.Add(renderIdleInterval+time.Millisecond), false, false) {
		t.Error("expected render once idle interval elapses")
	}
	if !l.shouldRender(now.Add(renderMinInterval+time.Millisecond), false, true) {
		t.Error("expected render once output-render interval elapses")
	}
}

func TestDrainAIAppliesChunksAndFinalize(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"hi"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		"[DONE]",
	})
	defer srv.Close()

	client := llmclient.New("test-key", srv.URL, "test-model")
	l, _ := newTestLoopWithClient(&fakePTY{}, client)
	id := l.ai.CurrentSession()

	l.view.StartAssistantMessage(id)
	l.ai.SendMessage(context.Background(), id, "hello", commandlog.Snapshot{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.drainAI()
		if msgs := l.view.Messages(id); len(msgs) > 0 && !msgs[len(msgs)-1].Streaming {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs := l.view.Messages(id)
	if len(msgs) == 0 || msgs[len(msgs)-1].Text != "hi" {
		t.Fatalf("expected chunk applied, got %+v", msgs)
	}
	if msgs[len(msgs)-1].Streaming {
		t.Error("expected finalize to clear streaming flag")
	}
}

func TestExecuteEventInjectsAllowedCommand(t *testing.T) {
	pty := &fakePTY{}
	l, _ := newTestLoop(pty)
	id := l.ai.CurrentSession()

	l.ai.ExecuteSuggestion(id, "ls -la")
	l.drainAI()

	if len(pty.injected) != 1 || pty.injected[0] != "ls -la" {
		t.Fatalf("expected the allowed command injected once, got %v", pty.injected)
	}
}

func TestExecuteEventRequiresSecondConfirmForRm(t *testing.T) {
	pty := &fakePTY{}
	l, _ := newTestLoop(pty)
	id := l.ai.CurrentSession()

	l.executeAiCommand(id, "rm foo")
	if len(pty.injected) != 0 {
		t.Fatalf("expected first confirm to arm, not inject, got %v", pty.injected)
	}
	msgs := l.view.Messages(id)
	if len(msgs) == 0 || msgs[len(msgs)-1].Kind != assistantview.MessageSystem {
		t.Fatal("expected a system message explaining the confirmation requirement")
	}

	l.executeAiCommand(id, "rm foo")
	if len(pty.injected) != 1 || pty.injected[0] != "rm foo" {
		t.Fatalf("expected the second confirm to inject the command, got %v", pty.injected)
	}
}

func TestExecuteEventNeverInjectsDeniedCommand(t *testing.T) {
	pty := &fakePTY{}
	l, _ := newTestLoop(pty)
	id := l.ai.CurrentSession()
	cmd := "sudo rm -rf /"

	l.executeAiCommand(id, cmd)
	l.executeAiCommand(id, cmd)
	if len(pty.injected) != 0 {
		t.Fatalf("expected the denied command never injected, got %v", pty.injected)
	}
}

func TestHandleResizeUpdatesGeometryAndPanes(t *testing.T) {
	pty := &fakePTY{}
	l, _ := newTestLoop(pty)
	l.handleResize(100, 40)
	if l.router.SplitRatio() != 70 {
		t.Fatalf("expected split ratio unchanged at 70, got %d", l.router.SplitRatio())
	}
	if pty.resizeCalls != 1 {
		t.Fatalf("expected resize propagated to the PTY once, got %d calls", pty.resizeCalls)
	}
	if pty.resizeRows != 40 || pty.resizeCols != 70 {
		t.Errorf("expected PTY resized to rows=40 cols=70, got rows=%d cols=%d", pty.resizeRows, pty.resizeCols)
	}
}

func TestRunStopsOnPTYError(t *testing.T) {
	pty := &fakePTY{err: errors.New("boom")}
	l, renders := newTestLoop(pty)
	l.screen = noOpScreen{}

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after PTY error")
	}
	_ = renders
}

type noOpScreen struct{}

func (noOpScreen) PollEvent() tcell.Event    { return nil }
func (noOpScreen) Show()                     {}
func (noOpScreen) Size() (int, int)          { return 80, 24 }
func (noOpScreen) HasPendingEvent() bool     { return false }
