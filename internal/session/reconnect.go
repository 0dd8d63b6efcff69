package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/decklog"
	"github.com/codedeck/go-codedeck/internal/stream"
)

// Reconnector attaches a session store to the live stream of a still
// running engine process.
//
// Per session id the attachment moves Idle -> Attaching -> Listening and
// back to Idle when the stream completes or the listener is torn down. At
// most one listener set is ever active per session id; a second attach
// while already listening is a no-op. Completion fully resets the state so
// a later turn on the same session id can attach a fresh set.
type Reconnector struct {
	bus  *stream.Bus
	norm *Normalizer

	// startTail, when set, is invoked after subscribing to begin producing
	// frames for the session (all-or-nothing with the subscription).
	startTail func(sessionID, path string) error

	mu        sync.Mutex
	listening map[string]bool
}

// NewReconnector creates a reconnector over the given bus.
func NewReconnector(bus *stream.Bus, norm *Normalizer) *Reconnector {
	return &Reconnector{
		bus:       bus,
		norm:      norm,
		listening: make(map[string]bool),
	}
}

// SetTailStarter installs the frame producer hook.
func (r *Reconnector) SetTailStarter(start func(sessionID, path string) error) {
	r.startTail = start
}

// IsListening reports whether a listener set is active for the session id.
func (r *Reconnector) IsListening(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening[sessionID]
}

// Attach registers a listener set for the session and starts consuming its
// frames. Returns false without error when already listening. The token
// ties all resulting mutations to the load that requested the attach.
func (r *Reconnector) Attach(store *Store, token uint64) (bool, error) {
	meta := store.Meta()
	if meta.ID == "" {
		return false, fmt.Errorf("attach: empty session id")
	}

	r.mu.Lock()
	if r.listening[meta.ID] {
		r.mu.Unlock()
		return false, nil
	}
	r.listening[meta.ID] = true
	r.mu.Unlock()

	listener, unsub := r.bus.Subscribe(meta.ID)

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			unsub()
			r.mu.Lock()
			delete(r.listening, meta.ID)
			r.mu.Unlock()
		})
	}

	if r.startTail != nil && meta.FullPath != "" {
		if err := r.startTail(meta.ID, meta.FullPath); err != nil {
			teardown()
			return false, fmt.Errorf("start tail: %w", err)
		}
	}

	if !store.SetUnsub(token, teardown) {
		// Superseded or closed while attaching.
		teardown()
		return false, nil
	}

	go r.listen(store, token, meta, listener, teardown)
	return true, nil
}

// listen consumes the listener set until completion or teardown. One bad
// frame never kills the stream, and a stream error does not tear the set
// down on its own; completion is what ends the turn.
func (r *Reconnector) listen(store *Store, token uint64, meta deck.SessionMeta, l stream.Listener, teardown func()) {
	defer teardown()

	output := l.Output
	errors := l.Errors

	for {
		select {
		case frame, ok := <-output:
			if !ok {
				output = nil
				continue
			}
			r.handleFrame(store, token, meta, frame)

		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			store.SetError(token, err.Error())

		case <-l.Done:
			// Completion resets the session so a later turn can re-attach.
			store.SetLoading(token, false)
			store.ClearUnsub()
			return
		}
	}
}

func (r *Reconnector) handleFrame(store *Store, token uint64, meta deck.SessionMeta, frame stream.Frame) {
	store.AppendRaw(token, deck.RawEvent{
		SessionID:  meta.ID,
		Engine:     meta.Engine,
		Payload:    string(frame.Payload),
		ReceivedAt: time.Now(),
	})

	msgs, err := r.norm.Normalize(meta.Engine, frame.Payload)
	if err != nil {
		decklog.Log.Warn("Dropping malformed stream frame",
			"session_id", meta.ID, "engine", meta.Engine, "error", err)
		return
	}
	if len(msgs) > 0 {
		store.Merge(token, msgs...)
	}
}
