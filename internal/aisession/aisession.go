// Package aisession owns the AI chat sessions: their conversation
// history, in-flight streaming tasks, and pending command
// suggestions. It fans one network stream per session into a single
// update channel the render loop drains each frame.
//
// Sessions live in a flat id -> session map kept alongside an
// insertion-ordered slice of ids, so lookups are O(1) while tab order
// stays stable and a single "current" session is always well-defined.
package aisession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/trybotster/termsuite/internal/commandlog"
	"github.com/trybotster/termsuite/internal/llmclient"
	"github.com/trybotster/termsuite/internal/persistence"
)

// Role tags a Message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a session's conversation. ModelContent, when
// set, is replayed to the network in place of DisplayContent (used
// for synthetic messages that describe a UI decision in a form the
// model can act on but the user does not need to re-read).
type Message struct {
	Role           Role
	DisplayContent string
	ModelContent   string
}

// contentForReplay returns the text sent to the network for this
// message.
func (m Message) contentForReplay() string {
	if m.ModelContent != "" {
		return m.ModelContent
	}
	return m.DisplayContent
}

// CommandSuggestionItem is one proposed command within a suggestion.
type CommandSuggestionItem struct {
	Command     string
	Explanation string
}

// SuggestionStatus is the lifecycle state of a PendingSuggestion.
type SuggestionStatus int

const (
	StatusPending SuggestionStatus = iota
	StatusAccepted
	StatusRejected
)

// PendingSuggestion is the at-most-one outstanding tool-call result a
// session can be holding.
type PendingSuggestion struct {
	Commands      []CommandSuggestionItem
	SelectedIndex int
	Status        SuggestionStatus
	AcceptedIndex int
}

// ID identifies a session. Ids are never reused.
type ID int64

// Session holds one conversation's history and streaming state.
type Session struct {
	ID        ID
	Messages  []Message
	Pending   *PendingSuggestion
	streaming bool
	cancel    context.CancelFunc
}

// HasPendingSuggestion reports whether the session is currently
// holding an undecided suggestion.
func (s *Session) HasPendingSuggestion() bool {
	return s.Pending != nil && s.Pending.Status == StatusPending
}

// UpdateKind tags the variant of an AiUiUpdate.
type UpdateKind int

const (
	UpdateChunk UpdateKind = iota
	UpdateEnd
	UpdateError
	UpdateCommandSuggestion
	// UpdateExecuteCommand asks the app loop to run Text as a shell
	// command; the loop routes it through the security gate before
	// anything reaches the PTY.
	UpdateExecuteCommand
)

// Update is one application event produced by a session's streaming
// task (or by ExecuteSuggestion) and drained by the render loop.
type Update struct {
	Kind      UpdateKind
	SessionID ID
	Text      string
	Err       error
	Commands  []CommandSuggestionItem
}

// suggestToolName is the function name the model is asked to call
// when it wants to propose shell commands.
const suggestToolName = "suggest_commands"

var suggestTool = llmclient.Tool{
	Type: "function",
	Function: llmclient.ToolFunction{
		Name:        suggestToolName,
		Description: "Propose one or more shell commands for the user to run, each with a short explanation.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"commands": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"command":     map[string]interface{}{"type": "string"},
							"explanation": map[string]interface{}{"type": "string"},
						},
						"required": []string{"command", "explanation"},
					},
				},
			},
			"required": []string{"commands"},
		},
	},
}

// Manager owns every AI session and the single update channel their
// streaming tasks publish to.
type Manager struct {
	mu        sync.Mutex
	sessions  map[ID]*Session
	order     []ID
	current   ID
	nextID    ID
	updates   chan Update
	client    *llmclient.Client
}

// NewManager creates a Manager backed by client, with session 1
// already created and current.
func NewManager(client *llmclient.Client) *Manager {
	m := &Manager{
		sessions: make(map[ID]*Session),
		updates:  make(chan Update, 256),
		nextID:   1,
		client:   client,
	}
	m.insertSession()
	return m
}

func (m *Manager) insertSession() ID {
	id := m.nextID
	m.nextID++
	m.sessions[id] = &Session{ID: id}
	m.order = append(m.order, id)
	m.current = id
	return id
}

// NewSession inserts a fresh session, makes it current, and returns
// its id. Ids are strictly increasing and never reused.
func (m *Manager) NewSession() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSession()
}

// IsStreaming reports whether id currently has a streaming task in
// flight (SendMessage would be a no-op).
func (m *Manager) IsStreaming(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return ok && sess.streaming
}

// SwitchSession makes id current if it exists.
func (m *Manager) SwitchSession(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.current = id
	return true
}

// CloseSession removes id, canceling its streaming task if any. If id
// was current, a remaining session (or a freshly created one) becomes
// current; the new current id is returned.
func (m *Manager) CloseSession(id ID) ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return m.current
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	delete(m.sessions, id)

	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	if m.current == id {
		if len(m.order) > 0 {
			m.current = m.order[0]
		} else {
			m.current = m.insertSession()
		}
	}
	return m.current
}

// CurrentSession returns the current session id.
func (m *Manager) CurrentSession() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OrderedSessions returns session ids in tab order.
func (m *Manager) OrderedSessions() []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ID, len(m.order))
	copy(out, m.order)
	return out
}

// Messages returns a copy of id's conversation history, or nil if id
// does not exist.
func (m *Manager) Messages(id ID) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out
}

// SendMessage appends a user message to id's history and submits a
// streaming request built from the history plus a system prefix
// derived from snapshot. It is a no-op if id does not exist or already
// has a streaming task in flight.
func (m *Manager) SendMessage(ctx context.Context, id ID, userText string, snapshot commandlog.Snapshot) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok || sess.streaming {
		m.mu.Unlock()
		return
	}
	sess.Messages = append(sess.Messages, Message{Role: RoleUser, DisplayContent: userText})

	reqMessages := make([]llmclient.Message, 0, len(sess.Messages)+1)
	reqMessages = append(reqMessages, llmclient.Message{
		Role:    "system",
		Content: commandlog.RenderSystemPrefix(snapshot),
	})
	for _, msg := range sess.Messages {
		reqMessages = append(reqMessages, llmclient.Message{Role: string(msg.Role), Content: msg.contentForReplay()})
	}

	taskCtx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	sess.streaming = true
	m.mu.Unlock()

	stream, err := m.client.Stream(taskCtx, reqMessages, []llmclient.Tool{suggestTool})
	if err != nil {
		m.finishStreaming(id)
		m.updates <- Update{Kind: UpdateError, SessionID: id, Err: err}
		return
	}

	go m.runStream(taskCtx, id, stream)
}

func (m *Manager) finishStreaming(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.streaming = false
		sess.cancel = nil
	}
}

// toolCallBuffer accumulates one tool call's argument fragments, keyed
// by the index the upstream uses to distinguish parallel calls. id is
// an opaque correlation id assigned the moment a call's first
// fragment arrives, used only for log correlation across the
// potentially many chunks a single call's JSON arguments stream in
// as (the upstream's own per-call id is not always present on every
// fragment, so this one is always available from the first byte).
type toolCallBuffer struct {
	id   string
	name string
	args string
}

func (m *Manager) runStream(ctx context.Context, id ID, stream <-chan llmclient.Delta) {
	defer m.finishStreaming(id)

	var content string
	toolCalls := make(map[int]*toolCallBuffer)

	for delta := range stream {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if delta.Err != nil {
			m.updates <- Update{Kind: UpdateError, SessionID: id, Err: delta.Err}
			return
		}
		if delta.ContentText != "" {
			content += delta.ContentText
			m.updates <- Update{Kind: UpdateChunk, SessionID: id, Text: delta.ContentText}
		}
		if delta.ToolCall != nil {
			buf, ok := toolCalls[delta.ToolCall.Index]
			if !ok {
				buf = &toolCallBuffer{id: uuid.New().String()}
				toolCalls[delta.ToolCall.Index] = buf
				slog.Debug("tool call started", "session", id, "call_id", buf.id)
			}
			if delta.ToolCall.Name != "" {
				buf.name = delta.ToolCall.Name
			}
			buf.args += delta.ToolCall.ArgumentsDelta
		}
		if delta.FinishReason == "tool_calls" {
			m.flushToolCalls(id, toolCalls, content)
			return
		}
	}

	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok && content != "" {
		sess.Messages = append(sess.Messages, Message{Role: RoleAssistant, DisplayContent: content})
	}
	m.mu.Unlock()

	m.updates <- Update{Kind: UpdateEnd, SessionID: id}
}

func (m *Manager) flushToolCalls(id ID, toolCalls map[int]*toolCallBuffer, content string) {
	var commands []CommandSuggestionItem
	for _, buf := range toolCalls {
		if buf.name != suggestToolName {
			continue
		}
		var parsed struct {
			Commands []CommandSuggestionItem `json:"commands"`
		}
		if err := json.Unmarshal([]byte(buf.args), &parsed); err != nil {
			slog.Warn("tool call arguments did not parse", "session", id, "call_id", buf.id, "error", err)
			m.updates <- Update{Kind: UpdateError, SessionID: id, Err: fmt.Errorf("parse tool call arguments: %w", err)}
			continue
		}
		commands = append(commands, parsed.Commands...)
	}
	if len(commands) == 0 {
		m.updates <- Update{Kind: UpdateEnd, SessionID: id}
		return
	}

	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		if content != "" {
			sess.Messages = append(sess.Messages, Message{Role: RoleAssistant, DisplayContent: content})
		}
		sess.Pending = &PendingSuggestion{Commands: commands, Status: StatusPending}
		sess.Messages = append(sess.Messages, Message{
			Role:           RoleAssistant,
			DisplayContent: "",
			ModelContent:   fmt.Sprintf("(proposed %d command(s) via suggest_commands)", len(commands)),
		})
	}
	m.mu.Unlock()

	m.updates <- Update{Kind: UpdateCommandSuggestion, SessionID: id, Commands: commands}
}

// ExecuteSuggestion emits an UpdateExecuteCommand application event
// for cmd on id's update channel. The input layer calls this when the
// user confirms a suggested command; actually gating and injecting the
// command is the app loop's job, so the UI never touches the PTY or
// the security rules directly.
func (m *Manager) ExecuteSuggestion(id ID, cmd string) {
	m.updates <- Update{Kind: UpdateExecuteCommand, SessionID: id, Text: cmd}
}

// RecvUpdate nonblockingly drains one pending Update, if any.
func (m *Manager) RecvUpdate() (Update, bool) {
	select {
	case u := <-m.updates:
		return u, true
	default:
		return Update{}, false
	}
}

// HasPendingSuggestion reports whether id currently holds an
// undecided suggestion.
func (m *Manager) HasPendingSuggestion(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return ok && sess.HasPendingSuggestion()
}

// GetPendingSuggestions returns id's pending suggestion, if any.
func (m *Manager) GetPendingSuggestions(id ID) (*PendingSuggestion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || sess.Pending == nil {
		return nil, false
	}
	cp := *sess.Pending
	return &cp, true
}

// CycleSuggestion advances id's pending suggestion's selected index,
// wrapping around.
func (m *Manager) CycleSuggestion(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || sess.Pending == nil || len(sess.Pending.Commands) == 0 {
		return
	}
	sess.Pending.SelectedIndex = (sess.Pending.SelectedIndex + 1) % len(sess.Pending.Commands)
}

// AcceptSuggestion transitions id's pending suggestion to Accepted at
// index and returns the accepted command, recording a synthetic
// assistant message so replay sees the decision.
func (m *Manager) AcceptSuggestion(id ID, index int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.Pending == nil || sess.Pending.Status != StatusPending {
		return "", false
	}
	if index < 0 || index >= len(sess.Pending.Commands) {
		return "", false
	}

	cmd := sess.Pending.Commands[index].Command
	sess.Pending.Status = StatusAccepted
	sess.Pending.AcceptedIndex = index
	sess.Messages = append(sess.Messages, Message{
		Role:           RoleAssistant,
		DisplayContent: fmt.Sprintf("Accepted: %s", cmd),
		ModelContent:   fmt.Sprintf("(user accepted command %q)", cmd),
	})
	return cmd, true
}

// Export snapshots every session's conversation and any still-pending
// suggestion into the shape C9 persists to disk. Decided suggestions
// are not carried: the decision already lives in the conversation as
// a synthetic assistant message.
func (m *Manager) Export() persistence.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := persistence.State{
		Version:   persistence.CurrentVersion,
		CurrentID: int64(m.current),
		NextID:    int64(m.nextID),
	}
	for _, id := range m.order {
		sess := m.sessions[id]
		ps := persistence.PersistedSession{ID: int64(id)}
		for _, msg := range sess.Messages {
			ps.Conversation = append(ps.Conversation, persistence.PersistedMessage{
				Role:         string(msg.Role),
				Content:      msg.DisplayContent,
				ModelContent: msg.ModelContent,
			})
		}
		if sess.Pending != nil && sess.Pending.Status == StatusPending {
			cmds := make([]persistence.PersistedCommand, len(sess.Pending.Commands))
			for i, c := range sess.Pending.Commands {
				cmds[i] = persistence.PersistedCommand{Command: c.Command, Explanation: c.Explanation}
			}
			ps.LastSuggestion = &persistence.PersistedSuggestion{
				Commands:      cmds,
				SelectedIndex: sess.Pending.SelectedIndex,
			}
		}
		state.Sessions = append(state.Sessions, ps)
	}
	return state
}

// NewManagerFromState rebuilds a Manager from a persisted state,
// restoring session ids, conversation history, and any still-pending
// suggestion. A nil or empty state behaves like NewManager.
func NewManagerFromState(client *llmclient.Client, state *persistence.State) *Manager {
	m := &Manager{
		sessions: make(map[ID]*Session),
		updates:  make(chan Update, 256),
		client:   client,
	}

	if state == nil || len(state.Sessions) == 0 {
		m.nextID = 1
		m.insertSession()
		return m
	}

	var maxID ID
	for _, ps := range state.Sessions {
		sess := &Session{ID: ID(ps.ID)}
		for _, pm := range ps.Conversation {
			sess.Messages = append(sess.Messages, Message{
				Role:           Role(pm.Role),
				DisplayContent: pm.Content,
				ModelContent:   pm.ModelContent,
			})
		}
		if ps.LastSuggestion != nil {
			cmds := make([]CommandSuggestionItem, len(ps.LastSuggestion.Commands))
			for i, pc := range ps.LastSuggestion.Commands {
				cmds[i] = CommandSuggestionItem{Command: pc.Command, Explanation: pc.Explanation}
			}
			sess.Pending = &PendingSuggestion{
				Commands:      cmds,
				SelectedIndex: ps.LastSuggestion.SelectedIndex,
				Status:        StatusPending,
			}
		}
		m.sessions[sess.ID] = sess
		m.order = append(m.order, sess.ID)
		if sess.ID > maxID {
			maxID = sess.ID
		}
	}

	m.current = ID(state.CurrentID)
	if _, ok := m.sessions[m.current]; !ok {
		m.current = m.order[0]
	}
	m.nextID = ID(state.NextID)
	if m.nextID <= maxID {
		m.nextID = maxID + 1
	}
	return m
}

// RejectSuggestion transitions id's pending suggestion to Rejected.
func (m *Manager) RejectSuggestion(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.Pending == nil || sess.Pending.Status != StatusPending {
		return false
	}
	sess.Pending.Status = StatusRejected
	sess.Messages = append(sess.Messages, Message{
		Role:           RoleAssistant,
		DisplayContent: "Rejected suggestion.",
		ModelContent:   "(user rejected the proposed commands)",
	})
	return true
}
