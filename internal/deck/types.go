// Package deck defines the engine-agnostic session and message model shared
// by every other package: the common Message schema the normalizers produce,
// the raw event log kept alongside it, and the store interface each engine
// source implements.
package deck

import (
	"context"
	"time"
)

// Engine identifies which AI coding agent CLI produced a session.
type Engine string

const (
	EngineClaude Engine = "claude"
	EngineCodex  Engine = "codex"
	EngineGemini Engine = "gemini"
)

// Engines lists the supported engines in display order.
var Engines = []Engine{EngineClaude, EngineCodex, EngineGemini}

// Valid reports whether e is one of the supported engines.
func (e Engine) Valid() bool {
	switch e {
	case EngineClaude, EngineCodex, EngineGemini:
		return true
	}
	return false
}

// SupportsLiveness reports whether the engine's backend can be asked which
// sessions are still running. Gemini runs are fire-and-forget, so its
// sessions are always treated as historical.
func (e Engine) SupportsLiveness() bool {
	return e == EngineClaude || e == EngineCodex
}

// MessageKind classifies a normalized message. Normalization maps every
// engine-native record onto exactly one of these six values; anything that
// does not fit is dropped before it reaches a renderer.
type MessageKind string

const (
	KindUser      MessageKind = "user"
	KindAssistant MessageKind = "assistant"
	KindSystem    MessageKind = "system"
	KindResult    MessageKind = "result"
	KindSummary   MessageKind = "summary"
	KindThinking  MessageKind = "thinking"
)

// Valid reports whether k is one of the six recognized kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindUser, KindAssistant, KindSystem, KindResult, KindSummary, KindThinking:
		return true
	}
	return false
}

// ContentBlock is one ordered piece of a message's content. The Type field
// selects which of the remaining fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "thinking", "tool_use", "tool_result"

	// Text block
	Text string `json:"text,omitempty"`

	// Thinking block
	Thinking string `json:"thinking,omitempty"`

	// Tool use block
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput any    `json:"tool_input,omitempty"`

	// Tool result block
	ToolResult string `json:"tool_result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Usage is the canonical four-counter token record. All fields are concrete
// ints so downstream cost math never sees a missing field; normalizers fill
// zero for anything an engine does not report.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
}

// IsZero reports whether no counter was populated.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 &&
		u.CacheWriteTokens == 0 && u.CacheReadTokens == 0
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// Message is the normalized, engine-agnostic record the core produces.
// Messages are immutable after creation except Usage, which a post-pass may
// rewrite in place to fix inconsistent engine-specific field names.
type Message struct {
	// ID is the engine-provided item id when one exists, else a synthetic
	// id of the form session:line:kind. It is the dedup key at the
	// history-replay / live-stream boundary.
	ID        string         `json:"id"`
	Kind      MessageKind    `json:"kind"`
	Blocks    []ContentBlock `json:"blocks,omitempty"`
	Text      string         `json:"text,omitempty"` // simple text shortcut
	Usage     *Usage         `json:"usage,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	Engine    Engine         `json:"engine,omitempty"`
	Model     string         `json:"model,omitempty"`
}

// FirstText returns the message's primary text: the Text shortcut if set,
// else the first non-empty text block.
func (m *Message) FirstText() string {
	if m.Text != "" {
		return m.Text
	}
	for _, b := range m.Blocks {
		if b.Type == "text" && b.Text != "" {
			return b.Text
		}
	}
	return ""
}

// RawEvent is the verbatim serialized payload received from a backend event
// channel or history store, retained alongside derived messages for
// debugging and export.
type RawEvent struct {
	SessionID  string    `json:"session_id"`
	Engine     Engine    `json:"engine"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// SessionMeta identifies a conversation without loading its content.
type SessionMeta struct {
	ID          string    `json:"id"`
	ProjectPath string    `json:"project_path"`
	FullPath    string    `json:"full_path,omitempty"` // session file on disk
	Engine      Engine    `json:"engine"`
	FirstPrompt string    `json:"first_prompt,omitempty"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// History is the result of a history fetch: the normalized messages plus the
// raw entries they were derived from, in the same receipt order.
type History struct {
	Meta     SessionMeta
	Messages []Message
	Raw      []RawEvent
}

// Store provides read access to one engine's persisted sessions.
type Store interface {
	// Engine returns which engine this store reads.
	Engine() Engine

	// ListSessions returns session metadata for a project path.
	ListSessions(ctx context.Context, projectPath string) ([]SessionMeta, error)

	// LoadHistory loads and normalizes a session's full history.
	LoadHistory(ctx context.Context, sessionID, projectPath string) (*History, error)
}
