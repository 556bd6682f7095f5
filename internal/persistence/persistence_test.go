package persistence

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	want := &State{
		CurrentID: 2,
		NextID:    3,
		Sessions: []PersistedSession{
			{
				ID: 1,
				Conversation: []PersistedMessage{
					{Role: "user", Content: "hi"},
					{Role: "assistant", Content: "hello"},
				},
			},
			{
				ID: 2,
				Conversation: []PersistedMessage{
					{Role: "user", Content: "list files", ModelContent: "list files please"},
				},
				LastSuggestion: &PersistedSuggestion{
					Commands:      []PersistedCommand{{Command: "ls -la", Explanation: "list"}},
					SelectedIndex: 0,
				},
			},
		},
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", got.Version, CurrentVersion)
	}
	got.Version = want.Version // Version is populated by Save; normalize before compare
	want.Version = got.Version
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	if err := Save(path, &State{CurrentID: 1, NextID: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(entries) != 1 || entries[0] != path {
		t.Errorf("directory contents = %v, want exactly [%s]", entries, path)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("expected an error loading a nonexistent file")
	}
}

func TestLoadInvalidJSONErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	if err := Save(path, &State{CurrentID: 1, NextID: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// overwrite with garbage directly, bypassing Save's atomic path
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error loading invalid JSON")
	}
}
