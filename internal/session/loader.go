package session

import (
	"context"
	"time"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/decklog"
	"github.com/codedeck/go-codedeck/internal/liveness"
	"github.com/codedeck/go-codedeck/internal/sources"
)

// DefaultLoadTimeout is the watchdog for a history fetch that never
// resolves. A hung backend call surfaces as a session error instead of
// leaving the session loading forever.
const DefaultLoadTimeout = 30 * time.Second

// Loader performs race-guarded session loads: fetch history, normalize,
// publish, then reattach to the live stream when the underlying process is
// still running. Rapid repeated loads supersede each other; only the
// latest load's results are ever published.
type Loader struct {
	registry *sources.Registry
	detector *liveness.Detector
	recon    *Reconnector
	timeout  time.Duration
}

// NewLoader wires a loader from its collaborators.
func NewLoader(registry *sources.Registry, detector *liveness.Detector, recon *Reconnector) *Loader {
	return &Loader{
		registry: registry,
		detector: detector,
		recon:    recon,
		timeout:  DefaultLoadTimeout,
	}
}

// SetTimeout overrides the load watchdog.
func (l *Loader) SetTimeout(d time.Duration) {
	l.timeout = d
}

// Load begins an asynchronous load of the session into its store. A later
// Load on the same store supersedes this one; the superseded load's
// results are discarded without error.
func (l *Loader) Load(ctx context.Context, store *Store) {
	token := store.BeginLoad()
	if token == 0 {
		return
	}
	go l.load(ctx, store, token)
}

// LoadWait runs the same load synchronously, mostly for CLI callers.
func (l *Loader) LoadWait(ctx context.Context, store *Store) {
	token := store.BeginLoad()
	if token == 0 {
		return
	}
	l.load(ctx, store, token)
}

func (l *Loader) load(ctx context.Context, store *Store, token uint64) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	meta := store.Meta()

	src, err := l.registry.Store(meta.Engine)
	if err != nil {
		store.Fail(token, err.Error())
		return
	}

	// The fetch runs on its own goroutine so a backend call that ignores
	// ctx cannot wedge the session in the loading state; the watchdog fires
	// regardless of what the fetch is stuck on.
	type fetchResult struct {
		hist *deck.History
		err  error
	}
	fetched := make(chan fetchResult, 1)
	go func() {
		hist, err := src.LoadHistory(ctx, meta.ID, meta.ProjectPath)
		fetched <- fetchResult{hist: hist, err: err}
	}()

	var hist *deck.History
	select {
	case res := <-fetched:
		if res.err != nil {
			// Fail re-checks the token, so a superseded error is discarded too.
			store.Fail(token, res.err.Error())
			return
		}
		hist = res.hist
	case <-ctx.Done():
		// A late result lands in the buffered channel and is dropped.
		store.Fail(token, "history load timed out")
		return
	}

	if !store.Publish(token, hist.Messages, hist.Raw) {
		return
	}
	store.UpdateMeta(token, hist.Meta)
	meta = store.Meta()

	running, err := l.detector.IsRunning(ctx, meta)
	if err != nil {
		decklog.Log.Warn("Liveness check failed, treating session as historical",
			"session_id", meta.ID, "error", err)
		return
	}
	if !running {
		return
	}

	if _, err := l.recon.Attach(store, token); err != nil {
		store.SetError(token, err.Error())
	}
}

// UpdateMeta fills in fields the caller did not know at open time, such as
// the session file path discovered during the history fetch.
func (s *Store) UpdateMeta(token uint64, meta deck.SessionMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		return false
	}
	if meta.FullPath != "" {
		s.meta.FullPath = meta.FullPath
	}
	if meta.FirstPrompt != "" {
		s.meta.FirstPrompt = meta.FirstPrompt
	}
	if meta.Model != "" {
		s.meta.Model = meta.Model
	}
	if !meta.CreatedAt.IsZero() {
		s.meta.CreatedAt = meta.CreatedAt
	}
	if !meta.ModifiedAt.IsZero() {
		s.meta.ModifiedAt = meta.ModifiedAt
	}
	return true
}
