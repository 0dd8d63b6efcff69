package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/liveness"
	"github.com/codedeck/go-codedeck/internal/sources"
	"github.com/codedeck/go-codedeck/internal/stream"
)

// fakeSource is a scriptable deck.Store for loader tests.
type fakeSource struct {
	engine deck.Engine

	mu    sync.Mutex
	calls int
	load  func(call int) (*deck.History, error)
}

func (f *fakeSource) Engine() deck.Engine { return f.engine }

func (f *fakeSource) ListSessions(ctx context.Context, projectPath string) ([]deck.SessionMeta, error) {
	return nil, nil
}

func (f *fakeSource) LoadHistory(ctx context.Context, sessionID, projectPath string) (*deck.History, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.load(call)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestLoader(src *fakeSource) *Loader {
	registry := sources.NewRegistryWith(src)
	detector := liveness.NewDetector()
	recon := NewReconnector(stream.NewBus(), NewNormalizer())
	return NewLoader(registry, detector, recon)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLoader_StalenessInvariant(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{
		engine: deck.EngineClaude,
		load: func(call int) (*deck.History, error) {
			if call == 1 {
				<-release
				return &deck.History{Messages: []deck.Message{
					{ID: "a-1", Kind: deck.KindUser, Text: "from A"},
				}}, nil
			}
			return &deck.History{Messages: []deck.Message{
				{ID: "b-1", Kind: deck.KindUser, Text: "from B"},
			}}, nil
		},
	}
	loader := newTestLoader(src)

	store := NewStore(testMeta("s1"))
	defer store.Close()

	// First load suspends inside the history fetch.
	loader.Load(context.Background(), store)
	waitFor(t, func() bool { return src.callCount() == 1 }, "first load never started")

	// Second load supersedes it and completes.
	loader.Load(context.Background(), store)
	waitFor(t, func() bool {
		v := store.Snapshot()
		return !v.Loading && len(v.Messages) == 1
	}, "second load never published")

	// Now let the first load resolve; its results must be discarded.
	close(release)
	time.Sleep(50 * time.Millisecond)

	view := store.Snapshot()
	if len(view.Messages) != 1 || view.Messages[0].Text != "from B" {
		t.Fatalf("stale load overwrote current state: %+v", view.Messages)
	}
}

func TestLoader_FetchFailureSurfacesError(t *testing.T) {
	src := &fakeSource{
		engine: deck.EngineClaude,
		load: func(call int) (*deck.History, error) {
			return nil, context.DeadlineExceeded
		},
	}
	loader := newTestLoader(src)

	store := NewStore(testMeta("s1"))
	defer store.Close()

	loader.LoadWait(context.Background(), store)

	view := store.Snapshot()
	if view.Error == "" {
		t.Fatal("fetch failure must surface as a session error")
	}
	if view.Loading {
		t.Fatal("loading must be reset after a failure")
	}
}

func TestLoader_WatchdogBoundsHungFetch(t *testing.T) {
	block := make(chan struct{})
	src := &fakeSource{
		engine: deck.EngineClaude,
		load: func(call int) (*deck.History, error) {
			// Ignores ctx entirely, like a backend stuck in blocking I/O.
			<-block
			return &deck.History{Messages: []deck.Message{
				{ID: "late-1", Kind: deck.KindUser, Text: "too late"},
			}}, nil
		},
	}
	loader := newTestLoader(src)
	loader.SetTimeout(30 * time.Millisecond)

	store := NewStore(testMeta("s1"))
	defer store.Close()

	loader.Load(context.Background(), store)

	waitFor(t, func() bool {
		v := store.Snapshot()
		return !v.Loading && v.Error != ""
	}, "watchdog never surfaced the hung fetch")

	// The fetch eventually resolving must not resurrect the load.
	close(block)
	time.Sleep(50 * time.Millisecond)

	view := store.Snapshot()
	if len(view.Messages) != 0 {
		t.Fatalf("late fetch result was published: %+v", view.Messages)
	}
	if view.Error == "" || view.Loading {
		t.Fatalf("timed-out load lost its error state: %+v", view)
	}
}

func TestLoader_SupersededErrorDiscarded(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{
		engine: deck.EngineClaude,
		load: func(call int) (*deck.History, error) {
			if call == 1 {
				<-release
				return nil, context.DeadlineExceeded
			}
			return &deck.History{Messages: []deck.Message{
				{ID: "b-1", Kind: deck.KindUser, Text: "fine"},
			}}, nil
		},
	}
	loader := newTestLoader(src)

	store := NewStore(testMeta("s1"))
	defer store.Close()

	loader.Load(context.Background(), store)
	waitFor(t, func() bool { return src.callCount() == 1 }, "first load never started")

	loader.Load(context.Background(), store)
	waitFor(t, func() bool { return len(store.Snapshot().Messages) == 1 }, "second load never published")

	close(release)
	time.Sleep(50 * time.Millisecond)

	if err := store.Snapshot().Error; err != "" {
		t.Fatalf("superseded failure must be silent, got %q", err)
	}
}
