package gemini

import (
	"encoding/json"
	"testing"

	"github.com/codedeck/go-codedeck/internal/deck"
)

func TestUnwrapToolResults_WrappedResponse(t *testing.T) {
	var results []ToolResult
	raw := `[{"functionResponse":{"id":"fr-1","name":"run_shell_command","response":{"output":"X"}}}]`
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	if got := unwrapToolResults(results); got != "X" {
		t.Fatalf("expected %q, got %q", "X", got)
	}
}

func TestUnwrapToolResult_PriorityOrder(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"plain string", "hello", "hello"},
		{"output key", map[string]any{"output": "out"}, "out"},
		{"text before content", map[string]any{"text": "t", "content": "c"}, "t"},
		{"nested response wrapper", map[string]any{"response": map[string]any{"result": "r"}}, "r"},
		{"array of one", []any{map[string]any{"output": "first"}}, "first"},
		{"nothing found", nil, ""},
	}

	for _, tc := range cases {
		if got := unwrapToolResult(tc.in); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestUnwrapToolResult_FallbackDump(t *testing.T) {
	got := unwrapToolResult(map[string]any{"exit_code": float64(0)})
	if got == "" {
		t.Fatal("expected JSON dump of unrecognized object, got empty string")
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("fallback is not valid JSON: %v", err)
	}
}

func TestNormalizeMessage_ToolCallExpansion(t *testing.T) {
	raw := `{
		"id": "m-1",
		"type": "gemini",
		"content": "Running the command.",
		"toolCalls": [{
			"id": "tc-1",
			"name": "run_shell_command",
			"args": {"command": "ls"},
			"result": [{"functionResponse":{"response":{"output":"X"}}}]
		}]
	}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	msgs := NormalizeMessage("sess-1", 0, &m)
	if len(msgs) != 2 {
		t.Fatalf("expected assistant + synthetic result, got %d messages", len(msgs))
	}

	if msgs[0].Kind != deck.KindAssistant {
		t.Fatalf("unexpected first kind %s", msgs[0].Kind)
	}
	if msgs[0].Blocks[0].Type != "tool_use" || msgs[0].Blocks[0].ToolName != "run_shell_command" {
		t.Fatalf("unexpected tool block: %+v", msgs[0].Blocks)
	}

	if msgs[1].Kind != deck.KindUser {
		t.Fatalf("tool results must surface as user kind, got %s", msgs[1].Kind)
	}
	if msgs[1].Blocks[0].ToolResult != "X" {
		t.Fatalf("expected unwrapped %q, got %q", "X", msgs[1].Blocks[0].ToolResult)
	}
	if msgs[1].ID != "m-1:result:tc-1" {
		t.Fatalf("unexpected synthetic id %q", msgs[1].ID)
	}
}

func TestNormalizeMessage_ThoughtsOnly(t *testing.T) {
	m := &Message{
		ID:   "m-2",
		Type: "gemini",
		Thoughts: []Thought{
			{Subject: "Planning", Description: "look at the files first"},
		},
	}

	msgs := NormalizeMessage("sess-1", 1, m)
	if len(msgs) != 1 || msgs[0].Kind != deck.KindThinking {
		t.Fatalf("expected one thinking message, got %+v", msgs)
	}
}

func TestNormalizeMessage_Tokens(t *testing.T) {
	m := &Message{
		ID:      "m-3",
		Type:    "gemini",
		Content: "done",
		Tokens:  &Tokens{Input: 9, Output: 4, Cached: 2},
	}

	msgs := NormalizeMessage("sess-1", 2, m)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	u := msgs[0].Usage
	if u == nil || u.InputTokens != 9 || u.OutputTokens != 4 || u.CacheReadTokens != 2 {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if u.CacheWriteTokens != 0 {
		t.Fatalf("cache write must default to zero: %+v", u)
	}
}

func TestNormalizeEvent_Frames(t *testing.T) {
	msgs, nativeType, err := NormalizeEvent([]byte(`{"type":"message","role":"user","content":"hi"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if nativeType != "message" || len(msgs) != 1 || msgs[0].Kind != deck.KindUser {
		t.Fatalf("unexpected: type=%q msgs=%+v", nativeType, msgs)
	}

	msgs, nativeType, err = NormalizeEvent([]byte(`{"type":"init","session_id":"s"}`))
	if err != nil {
		t.Fatalf("normalize init: %v", err)
	}
	if len(msgs) != 0 || nativeType != "init" {
		t.Fatalf("init frames must be dropped: type=%q msgs=%+v", nativeType, msgs)
	}

	msgs, _, err = NormalizeEvent([]byte(`{"type":"tool_result","tool_id":"tc-9","status":"error","output":"boom"}`))
	if err != nil {
		t.Fatalf("normalize tool_result: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].Blocks[0].IsError || msgs[0].Blocks[0].ToolResult != "boom" {
		t.Fatalf("unexpected tool_result: %+v", msgs)
	}
}
