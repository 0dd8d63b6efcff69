// Package sources aggregates the per-engine session stores.
package sources

import (
	"fmt"
	"os"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/sources/claude"
	"github.com/codedeck/go-codedeck/internal/sources/codex"
	"github.com/codedeck/go-codedeck/internal/sources/gemini"
)

// Registry maps engines to their stores.
type Registry struct {
	stores map[deck.Engine]deck.Store
}

// NewRegistry builds a registry with every supported engine. Base
// directories default to the engine's home dir and can be overridden with
// CODEDECK_CLAUDE_HOME, CODEDECK_CODEX_HOME, and CODEDECK_GEMINI_HOME.
func NewRegistry() *Registry {
	return &Registry{
		stores: map[deck.Engine]deck.Store{
			deck.EngineClaude: claude.NewStore(os.Getenv("CODEDECK_CLAUDE_HOME")),
			deck.EngineCodex:  codex.NewStore(os.Getenv("CODEDECK_CODEX_HOME")),
			deck.EngineGemini: gemini.NewStore(os.Getenv("CODEDECK_GEMINI_HOME")),
		},
	}
}

// NewRegistryWith builds a registry from explicit stores, mostly for tests.
func NewRegistryWith(stores ...deck.Store) *Registry {
	r := &Registry{stores: make(map[deck.Engine]deck.Store, len(stores))}
	for _, s := range stores {
		r.stores[s.Engine()] = s
	}
	return r
}

// Store returns the store for an engine.
func (r *Registry) Store(engine deck.Engine) (deck.Store, error) {
	s, ok := r.stores[engine]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
	return s, nil
}

// Engines lists the registered engines in a stable order.
func (r *Registry) Engines() []deck.Engine {
	out := make([]deck.Engine, 0, len(r.stores))
	for _, e := range []deck.Engine{deck.EngineClaude, deck.EngineCodex, deck.EngineGemini} {
		if _, ok := r.stores[e]; ok {
			out = append(out, e)
		}
	}
	return out
}
