package session

import (
	"testing"

	"github.com/codedeck/go-codedeck/internal/deck"
)

func feedFixture(t *testing.T) (*Store, *Feed) {
	t.Helper()
	store := NewStore(testMeta("s1"))
	token := store.BeginLoad()

	// User-kind messages at positions 0, 3, and 7.
	kinds := []deck.MessageKind{
		deck.KindUser,      // 0
		deck.KindAssistant, // 1
		deck.KindAssistant, // 2
		deck.KindUser,      // 3
		deck.KindAssistant, // 4
		deck.KindThinking,  // 5
		deck.KindAssistant, // 6
		deck.KindUser,      // 7
	}
	msgs := make([]deck.Message, len(kinds))
	for i, k := range kinds {
		msgs[i] = deck.Message{ID: string(rune('a' + i)), Kind: k, Text: "m"}
	}
	store.Publish(token, msgs, nil)

	return store, NewFeed(store)
}

func TestFeed_PromptIndexDerivation(t *testing.T) {
	_, feed := feedFixture(t)

	if got := feed.PromptIndex(7); got != 2 {
		t.Fatalf("prompt index at position 7: expected 2, got %d", got)
	}
	if got := feed.PromptIndex(0); got != 0 {
		t.Fatalf("prompt index at position 0: expected 0, got %d", got)
	}
	if got := feed.PromptIndex(4); got != 2 {
		t.Fatalf("prompt index at position 4: expected 2, got %d", got)
	}
	if got := feed.PromptIndex(99); got != -1 {
		t.Fatalf("out of range must return -1, got %d", got)
	}
}

func TestFeed_ScrollToPrompt(t *testing.T) {
	_, feed := feedFixture(t)

	cases := []struct {
		prompt int
		pos    int
		found  bool
	}{
		{0, 0, true},
		{1, 3, true},
		{2, 7, true},
		{3, -1, false},
		{-1, -1, false},
	}
	for _, tc := range cases {
		pos, ok := feed.ScrollToPrompt(tc.prompt)
		if pos != tc.pos || ok != tc.found {
			t.Fatalf("prompt %d: expected (%d, %v), got (%d, %v)", tc.prompt, tc.pos, tc.found, pos, ok)
		}
	}
}

func TestFeed_ItemsProjection(t *testing.T) {
	_, feed := feedFixture(t)

	items := feed.Items()
	if len(items) != 8 {
		t.Fatalf("expected 8 items, got %d", len(items))
	}
	if items[7].PromptIndex != 2 {
		t.Fatalf("item 7 prompt index: expected 2, got %d", items[7].PromptIndex)
	}
	for i, it := range items {
		if it.SizeHint < 1 {
			t.Fatalf("item %d has size hint %d", i, it.SizeHint)
		}
	}
}

func TestFeed_RecomputedAfterMerge(t *testing.T) {
	store, feed := feedFixture(t)

	// The projection is read-time; a new user turn shifts it.
	token := store.BeginLoad()
	store.Publish(token, nil, nil)
	store.Merge(token,
		deck.Message{ID: "u-1", Kind: deck.KindUser},
		deck.Message{ID: "a-1", Kind: deck.KindAssistant},
		deck.Message{ID: "u-2", Kind: deck.KindUser},
	)

	if got := feed.PromptIndex(2); got != 1 {
		t.Fatalf("expected recomputed prompt index 1, got %d", got)
	}
	if pos, ok := feed.ScrollToPrompt(1); !ok || pos != 2 {
		t.Fatalf("expected prompt 1 at position 2, got (%d, %v)", pos, ok)
	}
}
