// Package ptychan spawns a login shell in a pseudoterminal and manages
// the asynchronous read/write loop that feeds it.
//
// The reader runs independently of any caller: it reads up to 16 KiB
// per syscall into a bounded queue (capacity ~1000 chunks), which
// throttles a chatty shell by backpressure rather than by dropping
// data. Public reads drain that queue through the query filter so
// callers only ever see bytes a VT parser should consume.
package ptychan

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/trybotster/termsuite/internal/queryfilter"
)

// maxReadChunk bounds a single PTY read syscall.
const maxReadChunk = 16 * 1024

// queueCapacity bounds the number of queued raw chunks before the
// reader goroutine blocks on send, which in turn throttles the child
// process's writes once its own PTY buffer fills.
const queueCapacity = 1000

// ShellError is posted once, when the reader observes EOF or an
// unrecoverable read error.
type ShellError struct {
	Err error
}

func (e *ShellError) Error() string {
	if e.Err == nil {
		return "shell exited"
	}
	return fmt.Sprintf("shell read error: %v", e.Err)
}

func (e *ShellError) Unwrap() error { return e.Err }

// Channel owns a spawned shell's PTY master and the reader goroutine
// that drains it.
type Channel struct {
	ptyFile *os.File
	cmd     *exec.Cmd

	writeMu sync.Mutex
	sizeMu  sync.Mutex

	filter *queryfilter.Filter

	chunks   chan []byte
	errOnce  sync.Once
	lastErr  error
	errMu    sync.Mutex
	closedCh chan struct{}

	// pending holds the tail of a drained chunk that exceeded a Read
	// call's maxBytes; it is served first on the next call. Only the
	// Read caller touches it.
	pending []byte

	logger *slog.Logger
}

// Spawn starts shell (falling back to /bin/sh if empty) in a new PTY
// sized rows x cols, with TERM=xterm-256color and dir as the working
// directory, and begins the reader goroutine.
func Spawn(shell string, rows, cols uint16, dir string, logger *slog.Logger) (*Channel, error) {
	if shell == "" {
		shell = "/bin/sh"
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("spawn shell %q in pty: %w", shell, err)
	}

	c := &Channel{
		ptyFile:  ptmx,
		cmd:      cmd,
		filter:   queryfilter.New(),
		chunks:   make(chan []byte, queueCapacity),
		closedCh: make(chan struct{}),
		logger:   logger,
	}

	go c.readerLoop()

	return c, nil
}

func (c *Channel) readerLoop() {
	defer close(c.chunks)

	buf := make([]byte, maxReadChunk)
	for {
		n, err := c.ptyFile.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.chunks <- chunk
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Error("pty read error", "error", err)
			}
			c.setErr(&ShellError{Err: err})
			close(c.closedCh)
			return
		}
	}
}

func (c *Channel) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.lastErr == nil {
		c.lastErr = err
	}
}

// Err returns the terminal ShellError once the shell has exited or an
// unrecoverable read error occurred, nil otherwise.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Read drains the internal queue up to maxBytes of raw bytes in a
// single call, filters the result through the query filter (answering
// any CPR/DA queries via the PTY writer), and returns whether any
// bytes were produced, the filtered bytes, and the filter's log lines
// for any queries it answered. Bytes beyond maxBytes are carried over
// and served first on the next call, never dropped. cursor is invoked
// lazily only if a CPR query is present. Read never blocks: if nothing
// is buffered or queued it returns immediately with hadOutput=false.
func (c *Channel) Read(maxBytes int, cursor queryfilter.CursorProvider) (hadOutput bool, filtered []byte, queryLog []string) {
	raw := c.pending
	c.pending = nil
readLoop:
	for len(raw) < maxBytes {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				break readLoop
			}
			raw = append(raw, chunk...)
		default:
			break readLoop
		}
	}
	if len(raw) == 0 {
		return false, nil, nil
	}
	if len(raw) > maxBytes {
		c.pending = append([]byte(nil), raw[maxBytes:]...)
		raw = raw[:maxBytes]
	}
	filtered, queryLog = c.filter.Process(raw, c, cursor)
	return true, filtered, queryLog
}

// MouseModeEnabled reports whether the guest program has most recently
// enabled xterm mouse reporting, as observed by the query filter.
func (c *Channel) MouseModeEnabled() bool {
	return c.filter.MouseModeEnabled()
}

// Write performs an unbuffered write to the PTY master. The caller is
// responsible for framing; Write itself does not add a trailing
// newline.
func (c *Channel) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ptyFile.Write(p)
}

// InjectVisible writes cmd followed by a newline, making it appear in
// the shell exactly as if the user had typed and pressed Enter. It
// returns as soon as the write completes; it does not wait for the
// shell to finish executing the command.
func (c *Channel) InjectVisible(cmd string) error {
	_, err := c.Write([]byte(cmd + "\n"))
	return err
}

// Resize propagates new dimensions to the PTY.
func (c *Channel) Resize(rows, cols uint16) error {
	c.sizeMu.Lock()
	defer c.sizeMu.Unlock()
	return pty.Setsize(c.ptyFile, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates the child process and releases the PTY master. The
// reader goroutine observes the resulting EOF/closed-pipe and exits on
// its own.
func (c *Channel) Close() error {
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	err := c.ptyFile.Close()
	if c.cmd != nil {
		c.cmd.Wait()
	}
	return err
}
