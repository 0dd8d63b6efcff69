// Package claude reads Claude Code session history and live stream frames.
// Both share one JSONL record shape, so a single normalizer covers the
// history-replay and live-stream paths.
package claude

import (
	"encoding/json"
	"strings"
)

// EntryType identifies the type of a JSONL record.
type EntryType string

const (
	EntryTypeUser      EntryType = "user"
	EntryTypeAssistant EntryType = "assistant"
	EntryTypeSystem    EntryType = "system"
	EntryTypeResult    EntryType = "result"
	EntryTypeSummary   EntryType = "summary"
)

// Entry represents a single line in a Claude Code JSONL session file or a
// single live stream frame. Fields are a superset across entry types;
// unused fields are zero-valued.
type Entry struct {
	Type       EntryType       `json:"type"`
	UUID       string          `json:"uuid,omitempty"`
	ParentUUID *string         `json:"parentUuid,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	Version    string          `json:"version,omitempty"`
	GitBranch  string          `json:"gitBranch,omitempty"`
	CWD        string          `json:"cwd,omitempty"`
	IsMeta     bool            `json:"isMeta,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`

	// System entry fields
	Subtype string `json:"subtype,omitempty"`
	Level   string `json:"level,omitempty"`
	Content string `json:"content,omitempty"`

	// Result entry fields
	DurationMs   int             `json:"duration_ms,omitempty"`
	TotalCostUSD float64         `json:"total_cost_usd,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	ResultText   string          `json:"result,omitempty"`

	// Summary entry fields
	Summary  string `json:"summary,omitempty"`
	LeafUUID string `json:"leafUuid,omitempty"`
}

// MessageBody is the message field of user and assistant entries.
type MessageBody struct {
	Role    string      `json:"role"`
	Model   string      `json:"model,omitempty"`
	Content BodyContent `json:"content"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// BodyContent handles the polymorphic content field: either a plain string
// or an array of content blocks.
type BodyContent struct {
	Text   string         // set when content is a string
	Blocks []ContentBlock // set when content is an array
}

func (c *BodyContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err == nil {
		c.Blocks = blocks
		return nil
	}

	// Ignore unrecognized content shapes
	return nil
}

func (c BodyContent) MarshalJSON() ([]byte, error) {
	if c.Text != "" {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Blocks)
}

// GetText extracts the displayable text from the content, skipping tool
// result blocks. Returns "" when the content is tool results only.
func (c *BodyContent) GetText() string {
	if c.Text != "" {
		return c.Text
	}

	var parts []string
	for _, b := range c.Blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentBlock is a native Claude content block.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string | []block
	IsError   bool            `json:"is_error,omitempty"`
}

// TokenUsage is Claude's native usage record.
type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// ParseMessage decodes the entry's message field. Returns nil when the
// entry carries no message or it cannot be decoded.
func (e *Entry) ParseMessage() *MessageBody {
	if len(e.Message) == 0 {
		return nil
	}
	var msg MessageBody
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return nil
	}
	return &msg
}
