// Package codex reads OpenAI Codex CLI rollout files and live stream frames.
// Codex logs two record families: event_msg (high-level turn events) and
// response_item (model API items); both are mapped onto the common schema.
package codex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Parser reads Codex session JSONL records from an io.Reader.
type Parser struct {
	scanner   *bufio.Scanner
	sessionID string
	lineNo    int
}

type logLine struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// NewParser creates a new Codex parser.
func NewParser(r io.Reader, sessionID string) *Parser {
	return &Parser{
		scanner:   deck.NewScannerWithCapacity(r, 64*1024, deck.MaxScannerCapacity),
		sessionID: sessionID,
	}
}

// Next reads forward to the next line that maps onto the common schema and
// returns its messages plus the raw line. Returns nil, nil, io.EOF at end.
func (p *Parser) Next() ([]deck.Message, []byte, error) {
	for p.scanner.Scan() {
		p.lineNo++
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			continue
		}

		msgs := p.convertLine([]byte(line))
		if len(msgs) > 0 {
			return msgs, []byte(line), nil
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, nil, err
	}
	return nil, nil, io.EOF
}

// NormalizeEvent parses a raw live frame and normalizes it. nativeType is
// "<type>/<payload type>" for once-per-type logging of unmapped frames.
func NormalizeEvent(payload []byte) (msgs []deck.Message, nativeType string, err error) {
	var l logLine
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, "", err
	}

	var inner map[string]any
	json.Unmarshal(l.Payload, &inner)
	nativeType = l.Type
	if pt := readString(inner, "type"); pt != "" {
		nativeType = l.Type + "/" + pt
	}

	p := &Parser{}
	return p.convertLine(payload), nativeType, nil
}

func (p *Parser) convertLine(line []byte) []deck.Message {
	var l logLine
	if err := json.Unmarshal(line, &l); err != nil {
		return nil
	}

	timestamp := parseTimestamp(l.Timestamp)
	switch l.Type {
	case "event_msg":
		return p.convertEventMsg(l.Payload, timestamp)
	case "response_item":
		return p.convertResponseItem(l.Payload, timestamp)
	default:
		return nil
	}
}

func (p *Parser) convertEventMsg(raw json.RawMessage, timestamp time.Time) []deck.Message {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	eventType := readString(payload, "type")
	switch eventType {
	case "user_message":
		text := readString(payload, "message")
		if text == "" {
			return nil
		}
		return []deck.Message{p.newMessage(deck.KindUser, timestamp, eventType, text)}

	case "agent_message":
		text := readString(payload, "message")
		if text == "" {
			return nil
		}
		return []deck.Message{p.newMessage(deck.KindAssistant, timestamp, eventType, text)}

	case "agent_reasoning":
		thinking := readString(payload, "text")
		if thinking == "" {
			return nil
		}
		m := p.newMessage(deck.KindThinking, timestamp, eventType, "")
		m.Blocks = []deck.ContentBlock{{Type: "thinking", Thinking: thinking}}
		return []deck.Message{m}

	case "token_count":
		usage := extractUsage(payload)
		if usage == nil {
			return nil
		}
		m := p.newMessage(deck.KindResult, timestamp, eventType, "")
		m.Usage = usage
		return []deck.Message{m}

	default:
		return nil
	}
}

func (p *Parser) convertResponseItem(raw json.RawMessage, timestamp time.Time) []deck.Message {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	itemType := readString(payload, "type")
	switch itemType {
	case "message":
		kind := mapMessageRole(readString(payload, "role"))
		text := extractMessageText(payload["content"])
		if text == "" {
			return nil
		}
		m := p.newMessage(kind, timestamp, itemType, text)
		if id := readString(payload, "id"); id != "" {
			m.ID = id
		}
		return []deck.Message{m}

	case "reasoning":
		thinking := extractReasoningText(payload)
		if thinking == "" {
			return nil
		}
		m := p.newMessage(deck.KindThinking, timestamp, itemType, "")
		m.Blocks = []deck.ContentBlock{{Type: "thinking", Thinking: thinking}}
		return []deck.Message{m}

	case "function_call", "custom_tool_call":
		callID := readString(payload, "call_id")
		toolName := readString(payload, "name")
		if callID == "" && toolName == "" {
			return nil
		}
		m := p.newMessage(deck.KindAssistant, timestamp, itemType, "")
		m.ID = p.composeID(itemType, callID)
		m.Blocks = []deck.ContentBlock{{
			Type:      "tool_use",
			ToolUseID: callID,
			ToolName:  toolName,
			ToolInput: parseToolInput(payload),
		}}
		return []deck.Message{m}

	case "function_call_output", "custom_tool_call_output":
		callID := readString(payload, "call_id")
		output := normalizeToolOutput(payload["output"])
		if callID == "" && output == "" {
			return nil
		}
		// Tool results surface as a synthetic user-kind message so the
		// transcript keeps strict user/assistant turn alternation.
		m := p.newMessage(deck.KindUser, timestamp, itemType, "")
		m.ID = p.composeID(itemType, callID)
		m.Blocks = []deck.ContentBlock{{
			Type:       "tool_result",
			ToolUseID:  callID,
			ToolResult: output,
		}}
		return []deck.Message{m}

	default:
		return nil
	}
}

func (p *Parser) newMessage(kind deck.MessageKind, timestamp time.Time, itemType, text string) deck.Message {
	return deck.Message{
		ID:        p.composeID(itemType, ""),
		Kind:      kind,
		Timestamp: timestamp,
		Engine:    deck.EngineCodex,
		Text:      text,
	}
}

func (p *Parser) composeID(kind, suffix string) string {
	base := fmt.Sprintf("%s:%06d:%s", p.sessionID, p.lineNo, kind)
	if suffix != "" {
		return base + ":" + suffix
	}
	return base
}

func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	return time.Time{}
}

func mapMessageRole(role string) deck.MessageKind {
	switch role {
	case "user":
		return deck.KindUser
	case "assistant":
		return deck.KindAssistant
	default:
		// system, developer, and anything new
		return deck.KindSystem
	}
}

func readString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func readInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	if f, ok := m[key].(float64); ok && f > 0 {
		return int(f)
	}
	return 0
}

// extractUsage pulls token counters from a token_count payload. Newer Codex
// versions nest them under info.last_token_usage; older ones put them at the
// top level.
func extractUsage(payload map[string]any) *deck.Usage {
	candidates := []map[string]any{payload}
	if info, ok := payload["info"].(map[string]any); ok {
		if last, ok := info["last_token_usage"].(map[string]any); ok {
			candidates = append([]map[string]any{last}, candidates...)
		}
		if total, ok := info["total_token_usage"].(map[string]any); ok {
			candidates = append(candidates, total)
		}
	}

	for _, c := range candidates {
		u := deck.Usage{
			InputTokens:     readInt(c, "input_tokens"),
			OutputTokens:    readInt(c, "output_tokens"),
			CacheReadTokens: readInt(c, "cached_input_tokens"),
		}
		if !u.IsZero() {
			return &u
		}
	}
	return nil
}

func extractMessageText(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		// Most message blocks use "text" while some input variants use
		// explicit input/output text fields.
		text := readString(m, "text")
		if text == "" {
			text = readString(m, "input_text")
		}
		if text == "" {
			text = readString(m, "output_text")
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func extractReasoningText(payload map[string]any) string {
	summary, ok := payload["summary"].([]any)
	if ok {
		parts := make([]string, 0, len(summary))
		for _, item := range summary {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if readString(m, "type") != "summary_text" {
				continue
			}
			if text := readString(m, "text"); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			return strings.TrimSpace(strings.Join(parts, "\n"))
		}
	}
	return strings.TrimSpace(readString(payload, "text"))
}

func parseToolInput(payload map[string]any) any {
	// function_call usually stores JSON as a string in "arguments".
	if args := readString(payload, "arguments"); args != "" {
		var out any
		if err := json.Unmarshal([]byte(args), &out); err == nil {
			return out
		}
		return args
	}

	// custom_tool_call usually stores raw text in "input".
	if input := readString(payload, "input"); input != "" {
		return input
	}
	return nil
}

func normalizeToolOutput(v any) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		trimmed := strings.TrimSpace(out)
		if trimmed == "" {
			return ""
		}

		// custom_tool_call_output often wraps command output in a JSON string.
		var wrapped struct {
			Output string `json:"output"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && wrapped.Output != "" {
			return wrapped.Output
		}
		return out
	default:
		b, err := json.Marshal(out)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
