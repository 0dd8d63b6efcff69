package claude

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Normalize converts one native entry into zero or more common messages.
// fallbackID is used as the message id when the entry carries no UUID (live
// frames early in a turn sometimes omit it). Unmapped entry types yield nil.
func Normalize(e *Entry, fallbackID string) []deck.Message {
	switch e.Type {
	case EntryTypeUser:
		return normalizeUser(e, fallbackID)
	case EntryTypeAssistant:
		return normalizeAssistant(e, fallbackID)
	case EntryTypeSystem:
		return normalizeSystem(e, fallbackID)
	case EntryTypeResult:
		return normalizeResult(e, fallbackID)
	case EntryTypeSummary:
		if e.Summary == "" {
			return nil
		}
		return []deck.Message{{
			ID:        entryID(e, fallbackID),
			Kind:      deck.KindSummary,
			Text:      e.Summary,
			Engine:    deck.EngineClaude,
			Timestamp: parseTimestamp(e.Timestamp),
		}}
	default:
		return nil
	}
}

// NormalizeEvent parses a raw stream frame and normalizes it. The returned
// nativeType is the frame's type string, used for once-per-type logging of
// unmapped frames.
func NormalizeEvent(payload []byte) (msgs []deck.Message, nativeType string, err error) {
	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, "", err
	}
	return Normalize(&e, ""), string(e.Type), nil
}

func normalizeUser(e *Entry, fallbackID string) []deck.Message {
	body := e.ParseMessage()
	if body == nil {
		return nil
	}

	msg := deck.Message{
		ID:        entryID(e, fallbackID),
		Kind:      deck.KindUser,
		Engine:    deck.EngineClaude,
		Timestamp: parseTimestamp(e.Timestamp),
	}

	if body.Content.Text != "" {
		msg.Text = body.Content.Text
		return []deck.Message{msg}
	}

	for _, b := range body.Content.Blocks {
		switch b.Type {
		case "text":
			msg.Blocks = append(msg.Blocks, deck.ContentBlock{Type: "text", Text: b.Text})
		case "tool_result":
			msg.Blocks = append(msg.Blocks, deck.ContentBlock{
				Type:       "tool_result",
				ToolUseID:  b.ToolUseID,
				ToolResult: toolResultText(b.Content),
				IsError:    b.IsError,
			})
		}
	}
	if len(msg.Blocks) == 0 {
		return nil
	}
	msg.Text = body.Content.GetText()
	return []deck.Message{msg}
}

func normalizeAssistant(e *Entry, fallbackID string) []deck.Message {
	body := e.ParseMessage()
	if body == nil {
		return nil
	}

	msg := deck.Message{
		ID:        entryID(e, fallbackID),
		Kind:      deck.KindAssistant,
		Engine:    deck.EngineClaude,
		Model:     body.Model,
		Timestamp: parseTimestamp(e.Timestamp),
		Usage:     convertUsage(body.Usage),
	}

	thinkingOnly := len(body.Content.Blocks) > 0
	for _, b := range body.Content.Blocks {
		switch b.Type {
		case "text":
			thinkingOnly = false
			msg.Blocks = append(msg.Blocks, deck.ContentBlock{Type: "text", Text: b.Text})
		case "thinking":
			msg.Blocks = append(msg.Blocks, deck.ContentBlock{Type: "thinking", Thinking: b.Thinking})
		case "tool_use":
			thinkingOnly = false
			msg.Blocks = append(msg.Blocks, deck.ContentBlock{
				Type:      "tool_use",
				ToolUseID: b.ID,
				ToolName:  b.Name,
				ToolInput: decodeToolInput(b.Input),
			})
		default:
			thinkingOnly = false
		}
	}

	if body.Content.Text != "" {
		msg.Text = body.Content.Text
	} else {
		msg.Text = body.Content.GetText()
	}

	if len(msg.Blocks) == 0 && msg.Text == "" {
		return nil
	}

	// An entry whose content is thinking blocks only surfaces as a
	// dedicated thinking message so renderers can collapse it.
	if thinkingOnly {
		msg.Kind = deck.KindThinking
	}
	return []deck.Message{msg}
}

func normalizeSystem(e *Entry, fallbackID string) []deck.Message {
	text := e.Content
	if text == "" {
		text = e.Subtype
	}
	if text == "" {
		return nil
	}
	return []deck.Message{{
		ID:        entryID(e, fallbackID),
		Kind:      deck.KindSystem,
		Text:      text,
		Engine:    deck.EngineClaude,
		Timestamp: parseTimestamp(e.Timestamp),
	}}
}

func normalizeResult(e *Entry, fallbackID string) []deck.Message {
	msg := deck.Message{
		ID:        entryID(e, fallbackID),
		Kind:      deck.KindResult,
		Text:      e.ResultText,
		Engine:    deck.EngineClaude,
		Timestamp: parseTimestamp(e.Timestamp),
	}
	if len(e.Usage) > 0 {
		var u TokenUsage
		if err := json.Unmarshal(e.Usage, &u); err == nil {
			msg.Usage = convertUsage(&u)
		}
	}
	return []deck.Message{msg}
}

// convertUsage maps Claude's native counters onto the canonical four fields.
// Missing counters become zero, never nil, so cost math downstream is safe.
func convertUsage(u *TokenUsage) *deck.Usage {
	if u == nil {
		return nil
	}
	return &deck.Usage{
		InputTokens:      max(u.InputTokens, 0),
		OutputTokens:     max(u.OutputTokens, 0),
		CacheWriteTokens: max(u.CacheCreationInputTokens, 0),
		CacheReadTokens:  max(u.CacheReadInputTokens, 0),
	}
}

// toolResultText unwraps a tool_result content payload to its text.
// The payload is either a plain string or an array of text blocks; anything
// else is JSON-dumped so the result is never silently lost.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return string(raw)
}

func decodeToolInput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func entryID(e *Entry, fallbackID string) string {
	if e.UUID != "" {
		return e.UUID
	}
	return fallbackID
}

func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}
