package codex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codedeck/go-codedeck/internal/deck"
)

func writeRolloutFile(t *testing.T, baseDir, name string, lines []string) string {
	t.Helper()
	dir := filepath.Join(baseDir, "sessions", "2026", "03", "01")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func rolloutLines() []string {
	return []string{
		`{"timestamp":"2026-03-01T10:00:00Z","type":"session_meta","payload":{"id":"sess-1","cwd":"/tmp/proj"}}`,
		`{"timestamp":"2026-03-01T10:00:01Z","type":"event_msg","payload":{"type":"user_message","message":"fix the bug"}}`,
		`{"timestamp":"2026-03-01T10:00:05Z","type":"event_msg","payload":{"type":"agent_message","message":"on it"}}`,
	}
}

func TestStore_ListSessions(t *testing.T) {
	base := t.TempDir()
	writeRolloutFile(t, base, "rollout-2026-03-01-sess-1.jsonl", rolloutLines())

	store := NewStore(base)
	metas, err := store.ListSessions(context.Background(), "/tmp/proj")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("expected 1 session, got %d", len(metas))
	}
	m := metas[0]
	if m.ID != "sess-1" {
		t.Fatalf("expected id from session_meta, got %q", m.ID)
	}
	if m.ProjectPath != "/tmp/proj" {
		t.Fatalf("unexpected project path %q", m.ProjectPath)
	}
	if m.Engine != deck.EngineCodex {
		t.Fatalf("unexpected engine %q", m.Engine)
	}
}

func TestStore_ListSessionsFiltersByProject(t *testing.T) {
	base := t.TempDir()
	writeRolloutFile(t, base, "rollout-2026-03-01-sess-1.jsonl", rolloutLines())

	store := NewStore(base)
	metas, err := store.ListSessions(context.Background(), "/tmp/other")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("expected no sessions for a different project, got %d", len(metas))
	}

	all, err := store.ListSessions(context.Background(), "")
	if err != nil {
		t.Fatalf("ListSessions all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("empty project path must match everything, got %d", len(all))
	}
}

func TestStore_ListSessionsMissingBase(t *testing.T) {
	store := NewStore(t.TempDir())
	metas, err := store.ListSessions(context.Background(), "")
	if err != nil {
		t.Fatalf("missing sessions dir is not an error: %v", err)
	}
	if metas != nil {
		t.Fatalf("expected no sessions, got %+v", metas)
	}
}

func TestStore_LoadHistory(t *testing.T) {
	base := t.TempDir()
	writeRolloutFile(t, base, "rollout-2026-03-01-sess-1.jsonl", rolloutLines())

	store := NewStore(base)
	hist, err := store.LoadHistory(context.Background(), "sess-1", "/tmp/proj")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}

	if len(hist.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist.Messages))
	}
	if hist.Messages[0].Kind != deck.KindUser || hist.Messages[0].Text != "fix the bug" {
		t.Fatalf("unexpected first message: %+v", hist.Messages[0])
	}
	if hist.Messages[1].Kind != deck.KindAssistant {
		t.Fatalf("expected assistant message, got %s", hist.Messages[1].Kind)
	}

	// Only lines that map onto the common schema carry a raw event; the
	// session_meta line does not.
	if len(hist.Raw) != 2 {
		t.Fatalf("expected 2 raw events, got %d", len(hist.Raw))
	}
	if hist.Meta.FirstPrompt != "fix the bug" {
		t.Fatalf("unexpected first prompt %q", hist.Meta.FirstPrompt)
	}
	if hist.Meta.CreatedAt.IsZero() || hist.Meta.ModifiedAt.Before(hist.Meta.CreatedAt) {
		t.Fatalf("unexpected timestamps: created=%v modified=%v", hist.Meta.CreatedAt, hist.Meta.ModifiedAt)
	}
}

func TestStore_LoadHistoryBySuffix(t *testing.T) {
	base := t.TempDir()
	writeRolloutFile(t, base, "rollout-2026-03-01-sess-1.jsonl", rolloutLines())

	store := NewStore(base)
	hist, err := store.LoadHistory(context.Background(), "rollout-2026-03-01-sess-1", "")
	if err != nil {
		t.Fatalf("LoadHistory by file name: %v", err)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist.Messages))
	}
}

func TestStore_LoadHistoryNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.LoadHistory(context.Background(), "missing", ""); err == nil {
		t.Fatal("expected an error for an unknown session")
	}
}
