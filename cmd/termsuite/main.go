// Command termsuite is a terminal multiplexer with an embedded AI
// command-suggestion sidebar: a real login shell runs in a PTY on the
// left, a streaming chat assistant that can propose shell commands
// runs on the right, and both panes share keyboard/mouse focus under
// a single cooperative event loop.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/trybotster/termsuite/internal/aisession"
	"github.com/trybotster/termsuite/internal/app"
	"github.com/trybotster/termsuite/internal/assistantview"
	"github.com/trybotster/termsuite/internal/commandlog"
	"github.com/trybotster/termsuite/internal/display"
	"github.com/trybotster/termsuite/internal/input"
	"github.com/trybotster/termsuite/internal/llmclient"
	"github.com/trybotster/termsuite/internal/persistence"
	"github.com/trybotster/termsuite/internal/ptychan"
	"github.com/trybotster/termsuite/internal/termstate"
	"github.com/trybotster/termsuite/internal/tui"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	commandLogCapacity = 200
	initialSplitRatio  = 60
)

func main() {
	logger, closeLog, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termsuite: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)
	logger.Info("starting termsuite", "version", Version)

	if err := run(logger); err != nil {
		logger.Error("exiting", "error", err)
		fmt.Fprintf(os.Stderr, "termsuite: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging opens $HOME/.termsuite/termsuite.log and builds a
// slog.Logger writing to it; the TUI never writes to stdout/stderr
// while the alternate screen is active, so every diagnostic goes
// through this logger instead.
func setupLogging() (*slog.Logger, func(), error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, fmt.Errorf("determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".termsuite")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dir, "termsuite.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if os.Getenv("TERMSUITE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level})
	return slog.New(handler), func() { logFile.Close() }, nil
}

func run(logger *slog.Logger) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	screen.EnableMouse()
	guard := termstate.NewGuard(screen)
	defer guard.RecoverAndRelease()

	width, height := screen.Size()
	splitCol := width * initialSplitRatio / 100

	pty, err := ptychan.Spawn(shell, uint16(height), uint16(splitCol), cwd, logger)
	if err != nil {
		return fmt.Errorf("spawn shell: %w", err)
	}
	defer pty.Close()

	statePath, err := persistence.DefaultPath()
	if err != nil {
		logger.Warn("persistence path unavailable", "error", err)
	}
	state := loadState(logger, statePath)

	client := llmclient.New("", "", "gpt-4o")
	ai := aisession.NewManagerFromState(client, state)

	disp := display.New(height, splitCol)
	view := assistantview.New()
	log := commandlog.New(commandLogCapacity)
	router := input.New(pty, disp, view, ai, log, initialSplitRatio)
	router.SetGeometry(input.Geometry{
		Width: width, Height: height,
		SeparatorCol:       splitCol,
		AssistantInputRows: 3,
	})
	view.SetWidth(width - splitCol - 1)

	renderer := tui.New(screen, disp, view, router, ai)
	loop := app.New(screen, pty, disp, view, router, ai, log, renderer, renderer.Render)

	stopSignals := make(chan os.Signal, 1)
	signal.Notify(stopSignals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-stopSignals
		loop.Stop()
	}()

	loop.Run()

	if statePath != "" {
		saved := ai.Export()
		if err := persistence.Save(statePath, &saved); err != nil {
			logger.Error("save session state", "error", err)
		}
	}

	return nil
}

func loadState(logger *slog.Logger, path string) *persistence.State {
	if path == "" {
		return nil
	}
	state, err := persistence.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("load session state", "error", err)
		}
		return nil
	}
	return state
}
