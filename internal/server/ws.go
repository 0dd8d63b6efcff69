package server

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/codedeck/go-codedeck/internal/decklog"
)

// handleSessionWS upgrades to WebSocket and streams a session's normalized
// messages in real time. The current reconciled list is sent first as
// backfill, then live frames are normalized and forwarded as they arrive.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	store := s.manager.Get(sessionID)
	if store == nil {
		writeError(w, http.StatusNotFound, "not_found", "session is not open")
		return
	}
	meta := store.Meta()

	// Check ticket auth (for browser clients that can't set headers on WS)
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		if !s.tickets.Redeem(ticket, sessionID) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired ticket")
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		decklog.Log.Error("WebSocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	// Backfill with the current reconciled view.
	view := store.Snapshot()
	for i := range view.Messages {
		data, err := json.Marshal(view.Messages[i])
		if err != nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			decklog.Log.Debug("WS backfill write failed", "error", err)
			return
		}
	}

	// Subscribe to live frames.
	listener, unsub := s.bus.Subscribe(sessionID)
	defer unsub()

	wsConnectionsActive.Inc()
	defer wsConnectionsActive.Dec()
	decklog.Log.Info("WebSocket client connected", "session_id", sessionID)

	output := listener.Output
	errCh := listener.Errors

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case frame, ok := <-output:
			if !ok {
				output = nil
				continue
			}
			msgs, err := s.norm.Normalize(meta.Engine, frame.Payload)
			if err != nil {
				continue
			}
			for i := range msgs {
				data, err := json.Marshal(msgs[i])
				if err != nil {
					continue
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					decklog.Log.Debug("WS write failed", "session_id", sessionID, "error", err)
					return
				}
			}

		case streamErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			payload, _ := json.Marshal(map[string]string{"error": streamErr.Error()})
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}

		case <-listener.Done:
			conn.Close(websocket.StatusNormalClosure, "session stream completed")
			return
		}
	}
}

// handleIssueTicket issues a WebSocket auth ticket for the given session.
// POST /v1/ws/ticket with body {"session_id": "..."}
func (s *Server) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "session_id is required")
		return
	}

	ticket := s.tickets.Issue(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"ticket": ticket})
}
