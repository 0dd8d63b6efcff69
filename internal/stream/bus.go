// Package stream carries live engine output from tailers to listeners.
package stream

import (
	"sync"

	"github.com/codedeck/go-codedeck/internal/decklog"
)

// Frame is one raw line of engine output, exactly as it appeared on disk
// or on the wire. Normalization happens on the consumer side.
type Frame struct {
	SessionID string
	Payload   []byte
}

// Listener is one subscriber's view of a session stream. Output carries raw
// frames, Errors carries stream-level failures, and Done is closed exactly
// once when the underlying process or tail finishes.
type Listener struct {
	Output <-chan Frame
	Errors <-chan error
	Done   <-chan struct{}
}

type subscriber struct {
	output chan Frame
	errors chan error
	done   chan struct{}
	closed bool
}

// Bus provides in-memory fan-out of session frames to listeners watching
// specific sessions.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
}

// NewBus creates a new bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscriber)}
}

// Subscribe registers a listener for the given session. Call the returned
// function to unsubscribe and close the listener's channels.
func (b *Bus) Subscribe(sessionID string) (Listener, func()) {
	sub := &subscriber{
		output: make(chan Frame, 64),
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[sessionID]
		for i, s := range subs {
			if s == sub {
				b.subs[sessionID] = append(subs[:i], subs[i+1:]...)
				s.shutdown()
				break
			}
		}
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
	}

	return Listener{Output: sub.output, Errors: sub.errors, Done: sub.done}, unsub
}

// Publish sends a frame to all listeners watching the given session.
// Slow consumers whose buffers are full will have frames dropped.
//
// The read lock is held across the sends: channels are only closed under
// the write lock, so a concurrent Complete or unsubscribe can never close
// a channel mid-send.
func (b *Bus) Publish(sessionID string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[sessionID] {
		select {
		case sub.output <- Frame{SessionID: sessionID, Payload: payload}:
		default:
			decklog.Log.Warn("Dropping frame for slow stream listener",
				"session_id", sessionID)
		}
	}
}

// PublishError reports a stream-level failure to all listeners of a session.
func (b *Bus) PublishError(sessionID string, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[sessionID] {
		select {
		case sub.errors <- err:
		default:
		}
	}
}

// Complete signals that a session's stream has ended and removes all of its
// listeners. Each listener's Done channel is closed exactly once.
func (b *Bus) Complete(sessionID string) {
	b.mu.Lock()
	subs := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}

// ListenerCount reports how many listeners a session currently has.
func (b *Bus) ListenerCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// shutdown closes the subscriber's channels. Callers must hold the bus lock
// or own the only reference.
func (s *subscriber) shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.output)
	close(s.errors)
}
