package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TicketStore hands out short-lived, single-use WebSocket tickets. Browser
// clients cannot set an Authorization header on a WebSocket upgrade, so they
// trade the bearer token for a ticket over REST and connect with the ticket
// as a query parameter instead.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]ticket
	ttl     time.Duration
}

// ticket scopes one redemption to one session.
type ticket struct {
	sessionID string
	expiresAt time.Time
}

// NewTicketStore creates a ticket store whose tickets live for ttl. The TTL
// comes from server.ticket_ttl in the config.
func NewTicketStore(ttl time.Duration) *TicketStore {
	return &TicketStore{
		tickets: make(map[string]ticket),
		ttl:     ttl,
	}
}

// Issue creates a new single-use ticket scoped to the given session.
func (ts *TicketStore) Issue(sessionID string) string {
	id := uuid.NewString()

	ts.mu.Lock()
	ts.tickets[id] = ticket{
		sessionID: sessionID,
		expiresAt: time.Now().Add(ts.ttl),
	}
	ts.mu.Unlock()

	return id
}

// Redeem burns a ticket and reports whether it was live and scoped to the
// given session. The ticket is consumed even when redemption fails.
func (ts *TicketStore) Redeem(id, sessionID string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tk, ok := ts.tickets[id]
	if !ok {
		return false
	}
	delete(ts.tickets, id)

	if time.Now().After(tk.expiresAt) {
		return false
	}
	return tk.sessionID == sessionID
}

// Cleanup drops expired tickets that were never redeemed.
func (ts *TicketStore) Cleanup() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for id, tk := range ts.tickets {
		if now.After(tk.expiresAt) {
			delete(ts.tickets, id)
		}
	}
}
