// Package persistence loads and atomically saves AI session state to
// disk as JSON. Saves go through a tmp-file-plus-rename swap rather
// than a direct WriteFile: a crash or a concurrent reader must never
// observe a half-written state file.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CurrentVersion is written into every saved State. Load does not
// check it.
const CurrentVersion = 1

// PersistedMessage is one conversation turn as stored on disk.
type PersistedMessage struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	ModelContent string `json:"model_content,omitempty"`
}

// PersistedSuggestion is a pending suggestion as stored on disk. Only
// suggestions still Pending are persisted; decided suggestions are
// dropped, since the decision is already recorded as a synthetic
// message in the conversation.
type PersistedSuggestion struct {
	Commands      []PersistedCommand `json:"commands"`
	SelectedIndex int                `json:"selected_index"`
}

// PersistedCommand is one command within a PersistedSuggestion.
type PersistedCommand struct {
	Command     string `json:"command"`
	Explanation string `json:"explanation"`
}

// PersistedSession is one AI session as stored on disk.
type PersistedSession struct {
	ID             int64                `json:"id"`
	Conversation   []PersistedMessage   `json:"conversation"`
	LastSuggestion *PersistedSuggestion `json:"last_suggestion,omitempty"`
}

// State is the root of the persisted file.
type State struct {
	Version   uint32             `json:"version"`
	CurrentID int64              `json:"current_id"`
	NextID    int64              `json:"next_id"`
	Sessions  []PersistedSession `json:"sessions"`
}

// DefaultPath returns $HOME/.termsuite/sessions.json, creating the
// containing directory if necessary.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".termsuite")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create state directory: %w", err)
	}
	return filepath.Join(dir, "sessions.json"), nil
}

// Load reads and deserializes the state at path.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session state: %w", err)
	}
	return &state, nil
}

// Save pretty-prints state to JSON and atomically replaces path: the
// new content is written to path+".tmp" first, then renamed over
// path, so a reader never observes a partial write.
func Save(path string, state *State) error {
	if state.Version == 0 {
		state.Version = CurrentVersion
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary session state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace session state: %w", err)
	}
	return nil
}
