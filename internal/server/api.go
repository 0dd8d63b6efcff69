package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/session"
)

func (s *Server) handleListEngines(w http.ResponseWriter, r *http.Request) {
	type engineInfo struct {
		Engine           deck.Engine `json:"engine"`
		SupportsLiveness bool        `json:"supports_liveness"`
	}
	engines := s.registry.Engines()
	out := make([]engineInfo, 0, len(engines))
	for _, e := range engines {
		out = append(out, engineInfo{Engine: e, SupportsLiveness: e.SupportsLiveness()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListSessions lists persisted sessions for one engine and project.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	engine := deck.Engine(r.URL.Query().Get("engine"))
	if !engine.Valid() {
		writeError(w, http.StatusBadRequest, "validation_error", "engine must be one of claude, codex, gemini")
		return
	}
	projectPath := r.URL.Query().Get("project")

	src, err := s.registry.Store(engine)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	metas, err := src.ListSessions(r.Context(), projectPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if metas == nil {
		metas = []deck.SessionMeta{}
	}
	writeJSON(w, http.StatusOK, metas)
}

// handleListLive lists sessions whose engine process appears to still be
// running, across all engines that expose a liveness signal.
func (s *Server) handleListLive(w http.ResponseWriter, r *http.Request) {
	projectPath := r.URL.Query().Get("project")

	var live []deck.SessionMeta
	for _, engine := range s.registry.Engines() {
		if !engine.SupportsLiveness() {
			continue
		}
		src, err := s.registry.Store(engine)
		if err != nil {
			continue
		}
		metas, err := src.ListSessions(r.Context(), projectPath)
		if err != nil {
			continue
		}
		running, err := s.detector.Filter(r.Context(), metas)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "liveness_failed", err.Error())
			return
		}
		live = append(live, running...)
	}
	if live == nil {
		live = []deck.SessionMeta{}
	}
	writeJSON(w, http.StatusOK, live)
}

type openRequest struct {
	Engine      deck.Engine `json:"engine"`
	ProjectPath string      `json:"project_path"`
}

// handleOpenSession opens (or reloads) a session and kicks off its load.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "sessionID is required")
		return
	}

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	if !req.Engine.Valid() {
		writeError(w, http.StatusBadRequest, "validation_error", "engine must be one of claude, codex, gemini")
		return
	}

	// The load runs in the background on its own context so an early
	// client disconnect does not abort it.
	store := s.manager.Open(context.Background(), deck.SessionMeta{
		ID:          sessionID,
		ProjectPath: req.ProjectPath,
		Engine:      req.Engine,
	})
	sessionLoadsTotal.WithLabelValues(string(req.Engine)).Inc()
	sessionsOpen.Set(float64(s.manager.Len()))

	writeJSON(w, http.StatusAccepted, viewResponse(store.Snapshot(), nil))
}

// handleGetSession returns the reconciled view of an open session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	store := s.manager.Get(sessionID)
	if store == nil {
		writeError(w, http.StatusNotFound, "not_found", "session is not open")
		return
	}

	view := store.Snapshot()
	feed := session.NewFeed(store)
	resp := viewResponse(view, feed.Items())

	if prompt := r.URL.Query().Get("prompt"); prompt != "" {
		idx, err := strconv.Atoi(prompt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "prompt must be an integer")
			return
		}
		pos, ok := feed.ScrollToPrompt(idx)
		resp.PromptPosition = &promptPosition{Index: idx, Position: pos, Found: ok}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCloseSession tears down an open session and archives its raw log.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	store := s.manager.Get(sessionID)
	if store == nil {
		writeError(w, http.StatusNotFound, "not_found", "session is not open")
		return
	}

	view := store.Snapshot()
	s.manager.Close(sessionID)
	sessionsOpen.Set(float64(s.manager.Len()))

	if s.archive != nil && len(view.Raw) > 0 {
		if err := s.archive.Archive(r.Context(), view.Meta.ProjectPath, view.Raw); err != nil {
			writeError(w, http.StatusInternalServerError, "archive_failed", err.Error())
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"open_sessions":  s.manager.Len(),
	})
}

func (s *Server) handleArchiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.archive.Sessions(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleArchiveEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	events, err := s.archive.Events(r.Context(), sessionID, 0, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// sessionView is the renderer-facing JSON shape of an open session.
type sessionView struct {
	Meta           deck.SessionMeta `json:"meta"`
	Loading        bool             `json:"loading"`
	Error          string           `json:"error,omitempty"`
	Messages       []deck.Message   `json:"messages"`
	Items          []session.Item   `json:"items,omitempty"`
	RawCount       int              `json:"raw_count"`
	PromptPosition *promptPosition  `json:"prompt_position,omitempty"`
}

type promptPosition struct {
	Index    int  `json:"index"`
	Position int  `json:"position"`
	Found    bool `json:"found"`
}

func viewResponse(view session.View, items []session.Item) sessionView {
	if view.Messages == nil {
		view.Messages = []deck.Message{}
	}
	return sessionView{
		Meta:     view.Meta,
		Loading:  view.Loading,
		Error:    view.Error,
		Messages: view.Messages,
		Items:    items,
		RawCount: len(view.Raw),
	}
}
