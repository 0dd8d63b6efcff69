package codex

import (
	"io"
	"strings"
	"testing"

	"github.com/codedeck/go-codedeck/internal/deck"
)

func TestParser_Next(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"2026-02-10T00:00:00Z","type":"session_meta","payload":{"id":"sess-1","cwd":"/tmp/proj"}}`,
		`{"timestamp":"2026-02-10T00:00:01Z","type":"event_msg","payload":{"type":"user_message","message":"hello"}}`,
		`{"timestamp":"2026-02-10T00:00:02Z","type":"event_msg","payload":{"type":"agent_reasoning","text":"thinking..."}}`,
		`{"timestamp":"2026-02-10T00:00:03Z","type":"response_item","payload":{"type":"function_call","name":"exec_command","call_id":"call_1","arguments":"{\"cmd\":\"pwd\"}"}}`,
		`{"timestamp":"2026-02-10T00:00:04Z","type":"response_item","payload":{"type":"function_call_output","call_id":"call_1","output":"ok"}}`,
	}, "\n")

	p := NewParser(strings.NewReader(input), "sess-1")

	m1, _, err := p.Next()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(m1) != 1 || m1[0].Kind != deck.KindUser || m1[0].Text != "hello" {
		t.Fatalf("unexpected first: %+v", m1)
	}

	m2, _, err := p.Next()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(m2) != 1 || m2[0].Kind != deck.KindThinking {
		t.Fatalf("unexpected second: %+v", m2)
	}
	if m2[0].Blocks[0].Thinking != "thinking..." {
		t.Fatalf("unexpected thinking block: %+v", m2[0].Blocks)
	}

	m3, _, err := p.Next()
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if len(m3) != 1 || m3[0].Kind != deck.KindAssistant {
		t.Fatalf("unexpected third: %+v", m3)
	}
	if m3[0].Blocks[0].Type != "tool_use" || m3[0].Blocks[0].ToolName != "exec_command" {
		t.Fatalf("unexpected tool block: %+v", m3[0].Blocks)
	}

	m4, _, err := p.Next()
	if err != nil {
		t.Fatalf("fourth: %v", err)
	}
	if len(m4) != 1 || m4[0].Kind != deck.KindUser {
		t.Fatalf("tool output must surface as user kind: %+v", m4)
	}
	if m4[0].Blocks[0].Type != "tool_result" || m4[0].Blocks[0].ToolResult != "ok" {
		t.Fatalf("unexpected result block: %+v", m4[0].Blocks)
	}

	if _, _, err := p.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestNormalizeEvent_TokenCount(t *testing.T) {
	payload := `{"timestamp":"2026-02-10T00:00:05Z","type":"event_msg",` +
		`"payload":{"type":"token_count","info":{"last_token_usage":{"input_tokens":120,"output_tokens":40,"cached_input_tokens":30}}}}`

	msgs, nativeType, err := NormalizeEvent([]byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if nativeType != "event_msg/token_count" {
		t.Fatalf("unexpected native type %q", nativeType)
	}
	if len(msgs) != 1 || msgs[0].Kind != deck.KindResult {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	u := msgs[0].Usage
	if u == nil || u.InputTokens != 120 || u.OutputTokens != 40 || u.CacheReadTokens != 30 {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if u.CacheWriteTokens != 0 {
		t.Fatalf("cache write must default to zero: %+v", u)
	}
}

func TestNormalizeEvent_WrappedToolOutput(t *testing.T) {
	payload := `{"timestamp":"2026-02-10T00:00:06Z","type":"response_item",` +
		`"payload":{"type":"custom_tool_call_output","call_id":"call_2","output":"{\"output\":\"drwxr-xr-x\"}"}}`

	msgs, _, err := NormalizeEvent([]byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Blocks[0].ToolResult != "drwxr-xr-x" {
		t.Fatalf("expected unwrapped output, got %+v", msgs)
	}
}

func TestNormalizeEvent_UnmappedType(t *testing.T) {
	msgs, nativeType, err := NormalizeEvent([]byte(`{"type":"turn_context","payload":{"type":"x"}}`))
	if err != nil {
		t.Fatalf("unmapped types must not error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected zero messages, got %d", len(msgs))
	}
	if nativeType != "turn_context/x" {
		t.Fatalf("unexpected native type %q", nativeType)
	}
}

func TestNormalizeEvent_ReasoningSummary(t *testing.T) {
	payload := `{"timestamp":"2026-02-10T00:00:07Z","type":"response_item",` +
		`"payload":{"type":"reasoning","summary":[{"type":"summary_text","text":"first"},{"type":"summary_text","text":"second"}]}}`

	msgs, _, err := NormalizeEvent([]byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Kind != deck.KindThinking {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[0].Blocks[0].Thinking != "first\nsecond" {
		t.Fatalf("unexpected thinking text %q", msgs[0].Blocks[0].Thinking)
	}
}
