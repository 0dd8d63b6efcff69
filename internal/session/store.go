// Package session implements the session lifecycle core: race-guarded
// history loading, live stream reattachment, and message reconciliation.
package session

import (
	"sync"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Store holds the mutable state of one open session. One instance exists
// per concurrently open session; nothing is shared across instances.
//
// Loads are guarded by a monotonic token. Every asynchronous continuation
// re-validates its token against the current one before mutating state, so
// a superseded load can never resurrect stale data.
type Store struct {
	mu sync.Mutex

	meta deck.SessionMeta

	messages []deck.Message
	raw      []deck.RawEvent
	seenIDs  map[string]struct{}

	loading bool
	errMsg  string

	token  uint64
	closed bool

	// unsub releases the active listener set, when one exists.
	unsub func()
}

// NewStore creates a store for the given session.
func NewStore(meta deck.SessionMeta) *Store {
	return &Store{
		meta:    meta,
		seenIDs: make(map[string]struct{}),
	}
}

// Meta returns the session's identity.
func (s *Store) Meta() deck.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// BeginLoad supersedes any in-flight load and returns the new token. It
// sets the loading flag and clears the error. Returns 0 if the store is
// already closed.
func (s *Store) BeginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.token++
	s.loading = true
	s.errMsg = ""
	return s.token
}

// current reports whether token still owns the store. Callers must hold mu.
func (s *Store) current(token uint64) bool {
	return !s.closed && token != 0 && token == s.token
}

// Publish installs a freshly loaded history if token is still current.
// A superseded or closed publish is silently discarded.
func (s *Store) Publish(token uint64, messages []deck.Message, raw []deck.RawEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}

	s.messages = nil
	s.raw = nil
	s.seenIDs = make(map[string]struct{}, len(messages))
	for i := range messages {
		s.mergeLocked(messages[i])
	}
	s.raw = append(s.raw, raw...)
	s.loading = false
	return true
}

// Fail records a load error if token is still current. A superseded error
// is discarded, not logged as a failure.
func (s *Store) Fail(token uint64, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}
	s.errMsg = errMsg
	s.loading = false
	return true
}

// SetLoading flips the loading flag if token is still current. The
// reconnector uses this to keep a session in the loading state while its
// listener set attaches.
func (s *Store) SetLoading(token uint64, loading bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}
	s.loading = loading
	return true
}

// SetError records a session-level error without touching the loading flag.
// Stream errors use this path since the stream keeps running.
func (s *Store) SetError(token uint64, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}
	s.errMsg = errMsg
	return true
}

// Merge appends incoming messages in receipt order, dropping any whose ID
// was already merged. Duplicate IDs appear at the history/live boundary
// when the same logical event is replayed by history and delivered again
// on the live channel.
func (s *Store) Merge(token uint64, messages ...deck.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}
	for i := range messages {
		s.mergeLocked(messages[i])
	}
	return true
}

func (s *Store) mergeLocked(m deck.Message) {
	if m.ID != "" {
		if _, dup := s.seenIDs[m.ID]; dup {
			return
		}
		s.seenIDs[m.ID] = struct{}{}
	}
	s.messages = append(s.messages, m)
}

// AppendRaw records a verbatim payload on the raw event log.
func (s *Store) AppendRaw(token uint64, ev deck.RawEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}
	s.raw = append(s.raw, ev)
	return true
}

// SetUnsub installs the teardown function for the active listener set,
// replacing (and invoking) any previous one. Returns false if the store is
// closed or the token stale, in which case the caller must tear down the
// listener set itself.
func (s *Store) SetUnsub(token uint64, unsub func()) bool {
	s.mu.Lock()
	if !s.current(token) {
		s.mu.Unlock()
		return false
	}
	prev := s.unsub
	s.unsub = unsub
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	return true
}

// ClearUnsub drops the stored teardown function without invoking it. The
// reconnector calls this once completion has already torn the set down.
func (s *Store) ClearUnsub() {
	s.mu.Lock()
	s.unsub = nil
	s.mu.Unlock()
}

// Snapshot returns a copy of the current view state.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Meta:    s.meta,
		Loading: s.loading,
		Error:   s.errMsg,
	}
	v.Messages = append(v.Messages, s.messages...)
	v.Raw = append(v.Raw, s.raw...)
	return v
}

// Closed reports whether the store has been torn down.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down: releases the listener set and marks the
// store so in-flight callbacks detect the teardown and no-op.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// View is the renderer-facing snapshot of a session.
type View struct {
	Meta     deck.SessionMeta
	Messages []deck.Message
	Raw      []deck.RawEvent
	Loading  bool
	Error    string
}
