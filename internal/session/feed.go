package session

import (
	"strings"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Feed is the renderer-facing projection of a session: the reconciled
// message list with per-item size hints and prompt-turn navigation. It
// holds no state of its own; everything is recomputed from the store.
type Feed struct {
	store *Store
}

// NewFeed creates a feed over the store.
func NewFeed(store *Store) *Feed {
	return &Feed{store: store}
}

// Item is one renderable message with its derived projections.
type Item struct {
	Message deck.Message
	// SizeHint estimates the rendered height in text lines, used by the
	// renderer to reserve space before the item is measured for real.
	SizeHint int
	// PromptIndex is the zero-based count of user-kind messages before
	// this position.
	PromptIndex int
}

// Items returns the current message list with size hints and prompt
// indexes, in receipt order.
func (f *Feed) Items() []Item {
	view := f.store.Snapshot()
	items := make([]Item, 0, len(view.Messages))

	prompts := 0
	for i := range view.Messages {
		m := &view.Messages[i]
		items = append(items, Item{
			Message:     *m,
			SizeHint:    sizeHint(m),
			PromptIndex: prompts,
		})
		if m.Kind == deck.KindUser {
			prompts++
		}
	}
	return items
}

// PromptIndex returns the zero-based count of user-kind messages strictly
// before pos, or -1 when pos is out of range.
func (f *Feed) PromptIndex(pos int) int {
	view := f.store.Snapshot()
	if pos < 0 || pos >= len(view.Messages) {
		return -1
	}
	count := 0
	for i := 0; i < pos; i++ {
		if view.Messages[i].Kind == deck.KindUser {
			count++
		}
	}
	return count
}

// ScrollToPrompt resolves a logical user-turn index to a concrete item
// position. Returns -1, false when the turn does not exist yet; callers
// are expected to retry after more messages arrive.
func (f *Feed) ScrollToPrompt(promptIndex int) (int, bool) {
	if promptIndex < 0 {
		return -1, false
	}
	view := f.store.Snapshot()
	seen := 0
	for i := range view.Messages {
		if view.Messages[i].Kind != deck.KindUser {
			continue
		}
		if seen == promptIndex {
			return i, true
		}
		seen++
	}
	return -1, false
}

// sizeHint estimates rendered height from the message's text volume. The
// renderer replaces it with a measured height once the item mounts.
func sizeHint(m *deck.Message) int {
	lines := 1
	lines += strings.Count(m.Text, "\n")
	if m.Text != "" {
		lines += len(m.Text) / 80
	}

	for i := range m.Blocks {
		b := &m.Blocks[i]
		switch b.Type {
		case "text":
			lines += 1 + strings.Count(b.Text, "\n") + len(b.Text)/80
		case "thinking":
			lines += 1 + strings.Count(b.Thinking, "\n") + len(b.Thinking)/80
		case "tool_use":
			lines += 2
		case "tool_result":
			lines += 1 + strings.Count(b.ToolResult, "\n")
		default:
			lines++
		}
	}

	if lines < 1 {
		lines = 1
	}
	return lines
}
