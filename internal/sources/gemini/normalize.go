package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// NormalizeMessage expands one pre-shaped history message into common
// messages. A message carrying toolCalls becomes an assistant message with
// tool_use blocks followed by one synthetic user-kind message per embedded
// result, so the transcript keeps strict user/assistant turn alternation.
func NormalizeMessage(sessionID string, index int, m *Message) []deck.Message {
	id := m.ID
	if id == "" {
		id = fmt.Sprintf("%s:%06d:%s", sessionID, index, m.Type)
	}

	switch m.Type {
	case "user":
		if m.Content == "" {
			return nil
		}
		return []deck.Message{{
			ID:        id,
			Kind:      deck.KindUser,
			Text:      m.Content,
			Engine:    deck.EngineGemini,
			Timestamp: m.Timestamp,
		}}

	case "gemini", "assistant":
		return normalizeAssistant(id, m)

	default:
		return nil
	}
}

func normalizeAssistant(id string, m *Message) []deck.Message {
	msg := deck.Message{
		ID:        id,
		Kind:      deck.KindAssistant,
		Text:      m.Content,
		Engine:    deck.EngineGemini,
		Model:     m.Model,
		Timestamp: m.Timestamp,
		Usage:     convertTokens(m.Tokens),
	}

	for _, th := range m.Thoughts {
		thinking := th.Description
		if th.Subject != "" {
			thinking = th.Subject + "\n" + th.Description
		}
		msg.Blocks = append(msg.Blocks, deck.ContentBlock{Type: "thinking", Thinking: thinking})
	}

	var results []deck.Message
	for _, tc := range m.ToolCalls {
		msg.Blocks = append(msg.Blocks, deck.ContentBlock{
			Type:      "tool_use",
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			ToolInput: tc.Args,
		})

		if len(tc.Result) == 0 {
			continue
		}
		results = append(results, deck.Message{
			ID:        id + ":result:" + tc.ID,
			Kind:      deck.KindUser,
			Engine:    deck.EngineGemini,
			Timestamp: m.Timestamp,
			Blocks: []deck.ContentBlock{{
				Type:       "tool_result",
				ToolUseID:  tc.ID,
				ToolResult: unwrapToolResults(tc.Result),
			}},
		})
	}

	if msg.Text == "" && len(msg.Blocks) == 0 {
		return results
	}

	// A message that is thoughts only surfaces as a thinking message.
	if msg.Text == "" && len(m.ToolCalls) == 0 && len(m.Thoughts) > 0 {
		msg.Kind = deck.KindThinking
	}

	return append([]deck.Message{msg}, results...)
}

// NormalizeEvent parses a raw stream-json frame and normalizes it.
func NormalizeEvent(payload []byte) (msgs []deck.Message, nativeType string, err error) {
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, "", err
	}

	nativeType, _ = frame["type"].(string)
	ts := parseFrameTime(frame)

	switch nativeType {
	case "message":
		role, _ := frame["role"].(string)
		content, _ := frame["content"].(string)
		if content == "" {
			return nil, nativeType, nil
		}
		kind := deck.KindAssistant
		if role == "user" {
			kind = deck.KindUser
		}
		return []deck.Message{{
			Kind:      kind,
			Text:      content,
			Engine:    deck.EngineGemini,
			Timestamp: ts,
		}}, nativeType, nil

	case "tool_use":
		name, _ := frame["tool_name"].(string)
		toolID, _ := frame["tool_id"].(string)
		if name == "" && toolID == "" {
			return nil, nativeType, nil
		}
		return []deck.Message{{
			ID:        toolID,
			Kind:      deck.KindAssistant,
			Engine:    deck.EngineGemini,
			Timestamp: ts,
			Blocks: []deck.ContentBlock{{
				Type:      "tool_use",
				ToolUseID: toolID,
				ToolName:  name,
				ToolInput: frame["parameters"],
			}},
		}}, nativeType, nil

	case "tool_result":
		toolID, _ := frame["tool_id"].(string)
		output := frame["output"]
		if output == nil {
			// Some Gemini variants put the result under "response".
			output = frame["response"]
		}
		isError := false
		if status, _ := frame["status"].(string); status == "error" || status == "failed" {
			isError = true
		}
		return []deck.Message{{
			ID:        toolID + ":result",
			Kind:      deck.KindUser,
			Engine:    deck.EngineGemini,
			Timestamp: ts,
			Blocks: []deck.ContentBlock{{
				Type:       "tool_result",
				ToolUseID:  toolID,
				ToolResult: unwrapToolResult(output),
				IsError:    isError,
			}},
		}}, nativeType, nil

	case "result":
		msg := deck.Message{
			Kind:      deck.KindResult,
			Engine:    deck.EngineGemini,
			Timestamp: ts,
		}
		if status, _ := frame["status"].(string); status != "" {
			msg.Text = status
		}
		if stats, ok := frame["stats"].(map[string]any); ok {
			msg.Usage = &deck.Usage{
				InputTokens:  readInt(stats, "input_tokens"),
				OutputTokens: readInt(stats, "output_tokens"),
			}
		}
		return []deck.Message{msg}, nativeType, nil

	case "error":
		message, _ := frame["message"].(string)
		if message == "" {
			return nil, nativeType, nil
		}
		return []deck.Message{{
			Kind:      deck.KindSystem,
			Text:      message,
			Engine:    deck.EngineGemini,
			Timestamp: ts,
		}}, nativeType, nil

	default:
		// init and anything newer
		return nil, nativeType, nil
	}
}

// unwrapToolResults extracts the text of an embedded result array.
func unwrapToolResults(results []ToolResult) string {
	for _, r := range results {
		if s := unwrapToolResult(r.FunctionResponse.Response); s != "" {
			return s
		}
	}
	return ""
}

// unwrapToolResult digs the actual textual output out of Gemini's nested
// result wrappers. Candidate locations are tried in a fixed priority order:
// wrapper keys (functionResponse, response) first, then payload keys
// (output, text, content, result). When no string is found the first
// non-empty object is JSON-dumped; nothing found yields "".
func unwrapToolResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		for _, item := range t {
			if s := unwrapToolResult(item); s != "" {
				return s
			}
		}
		return ""
	case map[string]any:
		for _, key := range []string{"functionResponse", "response"} {
			if inner, ok := t[key]; ok {
				if s := unwrapToolResult(inner); s != "" {
					return s
				}
			}
		}
		for _, key := range []string{"output", "text", "content", "result"} {
			if inner, ok := t[key]; ok {
				if s, ok := inner.(string); ok {
					if s != "" {
						return s
					}
					continue
				}
				if s := unwrapToolResult(inner); s != "" {
					return s
				}
			}
		}
		if len(t) > 0 {
			if b, err := json.Marshal(t); err == nil {
				return string(b)
			}
		}
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}

func convertTokens(t *Tokens) *deck.Usage {
	if t == nil {
		return nil
	}
	return &deck.Usage{
		InputTokens:     max(t.Input, 0),
		OutputTokens:    max(t.Output, 0),
		CacheReadTokens: max(t.Cached, 0),
	}
}

func readInt(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok && f > 0 {
		return int(f)
	}
	return 0
}

func parseFrameTime(frame map[string]any) time.Time {
	s, _ := frame["timestamp"].(string)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
