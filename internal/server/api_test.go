package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codedeck/go-codedeck/internal/config"
	"github.com/codedeck/go-codedeck/internal/deck"
)

const testToken = "test-token"

// newTestServer builds a server backed by temp engine homes with the
// archive disabled.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	t.Setenv("CODEDECK_CLAUDE_HOME", t.TempDir())
	t.Setenv("CODEDECK_CODEX_HOME", t.TempDir())
	t.Setenv("CODEDECK_GEMINI_HOME", t.TempDir())

	cfg := config.Default()
	cfg.Server.Token = testToken
	cfg.Archive.Enabled = false

	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func seedClaudeSession(t *testing.T, sessionID string) {
	t.Helper()
	dir := filepath.Join(os.Getenv("CODEDECK_CLAUDE_HOME"), "projects", "-tmp-proj")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lines := []string{
		`{"type":"user","uuid":"u-1","timestamp":"2026-02-10T00:00:00Z","message":{"role":"user","content":"list the files"}}`,
		`{"type":"assistant","uuid":"a-1","timestamp":"2026-02-10T00:00:01Z","message":{"role":"assistant","model":"claude-4","content":[{"type":"text","text":"sure"}],"usage":{"input_tokens":5,"output_tokens":3}}}`,
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write session file: %v", err)
	}
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthSkipsAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health without auth: %d", rec.Code)
	}
}

func TestServer_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/v1/engines", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServer_ListEngines(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "GET", "/v1/engines", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("engines: %d %s", rec.Code, rec.Body.String())
	}

	var engines []struct {
		Engine           deck.Engine `json:"engine"`
		SupportsLiveness bool        `json:"supports_liveness"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &engines); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(engines) != 3 {
		t.Fatalf("expected 3 engines, got %d", len(engines))
	}
	for _, e := range engines {
		want := e.Engine != deck.EngineGemini
		if e.SupportsLiveness != want {
			t.Fatalf("%s: supports_liveness=%v", e.Engine, e.SupportsLiveness)
		}
	}
}

func TestServer_ListSessionsValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "GET", "/v1/sessions?engine=cursor", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown engine, got %d", rec.Code)
	}
}

func TestServer_ListSessions(t *testing.T) {
	s := newTestServer(t)
	seedClaudeSession(t, "sess-1")

	rec := doRequest(t, s, "GET", "/v1/sessions?engine=claude&project=/tmp/proj", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions: %d %s", rec.Code, rec.Body.String())
	}

	var metas []deck.SessionMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &metas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(metas) != 1 || metas[0].ID != "sess-1" {
		t.Fatalf("unexpected sessions: %+v", metas)
	}
}

func TestServer_OpenGetCloseSession(t *testing.T) {
	s := newTestServer(t)
	seedClaudeSession(t, "sess-1")

	rec := doRequest(t, s, "POST", "/v1/sessions/sess-1/open",
		`{"engine":"claude","project_path":"/tmp/proj"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("open: %d %s", rec.Code, rec.Body.String())
	}

	// The load is asynchronous; poll the view until it settles.
	var view sessionView
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doRequest(t, s, "GET", "/v1/sessions/sess-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !view.Loading && len(view.Messages) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never finished loading: %+v", view)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if view.Error != "" {
		t.Fatalf("unexpected session error %q", view.Error)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(view.Messages))
	}
	if view.Meta.FirstPrompt != "list the files" {
		t.Fatalf("unexpected first prompt %q", view.Meta.FirstPrompt)
	}

	// Prompt lookup rides along on the view.
	rec = doRequest(t, s, "GET", "/v1/sessions/sess-1?prompt=0", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.PromptPosition == nil || !view.PromptPosition.Found || view.PromptPosition.Position != 0 {
		t.Fatalf("unexpected prompt position: %+v", view.PromptPosition)
	}

	rec = doRequest(t, s, "DELETE", "/v1/sessions/sess-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/v1/sessions/sess-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
}

func TestServer_GetUnopenedSession(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "GET", "/v1/sessions/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServer_OpenSessionValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "POST", "/v1/sessions/sess-1/open", `{"engine":"cursor"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown engine, got %d", rec.Code)
	}

	rec = doRequest(t, s, "POST", "/v1/sessions/sess-1/open", `{broken`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
}

func TestServer_IssueTicket(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "POST", "/v1/ws/ticket", `{"session_id":"sess-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket: %d %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticket == "" {
		t.Fatal("expected a ticket")
	}
	if !s.tickets.Redeem(resp.Ticket, "sess-1") {
		t.Fatal("issued ticket must redeem for its session")
	}
}
