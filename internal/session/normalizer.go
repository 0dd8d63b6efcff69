package session

import (
	"fmt"
	"sync"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/decklog"
	"github.com/codedeck/go-codedeck/internal/sources/claude"
	"github.com/codedeck/go-codedeck/internal/sources/codex"
	"github.com/codedeck/go-codedeck/internal/sources/gemini"
)

// Normalizer converts engine-native payloads into common messages. Native
// types with no mapping yield zero messages; each distinct unmapped type is
// logged once so a chatty stream cannot flood the log.
type Normalizer struct {
	mu       sync.Mutex
	unmapped map[string]struct{}
}

// NewNormalizer creates a normalizer with an empty unmapped-type memory.
func NewNormalizer() *Normalizer {
	return &Normalizer{unmapped: make(map[string]struct{})}
}

// Normalize converts one raw payload from the given engine. A parse failure
// returns an error so callers can drop the frame without killing the stream.
// An unmapped native type is not an error.
func (n *Normalizer) Normalize(engine deck.Engine, payload []byte) ([]deck.Message, error) {
	var (
		msgs       []deck.Message
		nativeType string
		err        error
	)

	switch engine {
	case deck.EngineClaude:
		msgs, nativeType, err = claude.NormalizeEvent(payload)
	case deck.EngineCodex:
		msgs, nativeType, err = codex.NormalizeEvent(payload)
	case deck.EngineGemini:
		msgs, nativeType, err = gemini.NormalizeEvent(payload)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s frame: %w", engine, err)
	}

	if len(msgs) == 0 {
		n.logUnmapped(engine, nativeType)
		return nil, nil
	}

	// The renderer only understands the six common kinds; anything else
	// would be a normalizer bug, so drop and log it here.
	kept := msgs[:0]
	for _, m := range msgs {
		if !m.Kind.Valid() {
			n.logUnmapped(engine, nativeType+"/"+string(m.Kind))
			continue
		}
		kept = append(kept, m)
	}
	return kept, nil
}

func (n *Normalizer) logUnmapped(engine deck.Engine, nativeType string) {
	if nativeType == "" {
		return
	}
	key := string(engine) + ":" + nativeType

	n.mu.Lock()
	_, seen := n.unmapped[key]
	if !seen {
		n.unmapped[key] = struct{}{}
	}
	n.mu.Unlock()

	if !seen {
		decklog.Log.Debug("Unmapped native event type",
			"engine", engine, "native_type", nativeType)
	}
}
