// Package clipboard wraps the system clipboard provider. Errors and
// an empty clipboard are both treated as "nothing to paste" by
// design: middle-click paste is best-effort and must never surface an
// error dialog to the user.
package clipboard

import "github.com/atotto/clipboard"

// ReadAll returns the current clipboard text, or "" if the clipboard
// is empty or unavailable on this platform.
func ReadAll() string {
	text, err := clipboard.ReadAll()
	if err != nil {
		return ""
	}
	return text
}

// WriteAll copies text to the system clipboard, silently doing
// nothing if no clipboard provider is available.
func WriteAll(text string) {
	_ = clipboard.WriteAll(text)
}
