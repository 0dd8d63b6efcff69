package claude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Store reads Claude Code sessions from ~/.claude/projects.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir. An empty baseDir means the
// default ~/.claude.
func NewStore(baseDir string) *Store {
	if baseDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			baseDir = filepath.Join(home, ".claude")
		}
	}
	return &Store{baseDir: baseDir}
}

// Engine returns deck.EngineClaude.
func (s *Store) Engine() deck.Engine {
	return deck.EngineClaude
}

// projectDir maps a project path to Claude's encoded storage directory.
// Claude encodes /Users/me/proj as -Users-me-proj.
func (s *Store) projectDir(projectPath string) string {
	encoded := strings.ReplaceAll(projectPath, string(os.PathSeparator), "-")
	if !strings.HasPrefix(encoded, "-") {
		encoded = "-" + encoded
	}
	return filepath.Join(s.baseDir, "projects", encoded)
}

// ListSessions returns metadata for every session file under the project.
func (s *Store) ListSessions(ctx context.Context, projectPath string) ([]deck.SessionMeta, error) {
	dir := s.projectDir(projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project dir: %w", err)
	}

	var metas []deck.SessionMeta
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		metas = append(metas, deck.SessionMeta{
			ID:          strings.TrimSuffix(de.Name(), ".jsonl"),
			ProjectPath: projectPath,
			FullPath:    filepath.Join(dir, de.Name()),
			Engine:      deck.EngineClaude,
			ModifiedAt:  info.ModTime(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].ModifiedAt.After(metas[j].ModifiedAt)
	})
	return metas, nil
}

// LoadHistory reads a session file and normalizes every entry.
func (s *Store) LoadHistory(ctx context.Context, sessionID, projectPath string) (*deck.History, error) {
	path := filepath.Join(s.projectDir(projectPath), sessionID+".jsonl")
	parser, closer, err := NewParserFromFile(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	hist := &deck.History{
		Meta: deck.SessionMeta{
			ID:          sessionID,
			ProjectPath: projectPath,
			FullPath:    path,
			Engine:      deck.EngineClaude,
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, raw, err := parser.Next()
		if err != nil {
			return nil, fmt.Errorf("read session %s: %w", sessionID, err)
		}
		if entry == nil {
			break
		}

		hist.Raw = append(hist.Raw, deck.RawEvent{
			SessionID:  sessionID,
			Engine:     deck.EngineClaude,
			Payload:    string(raw),
			ReceivedAt: parseTimestamp(entry.Timestamp),
		})

		fallback := fmt.Sprintf("%s:%06d:%s", sessionID, parser.LineNum(), entry.Type)
		msgs := Normalize(entry, fallback)
		hist.Messages = append(hist.Messages, msgs...)

		updateMeta(&hist.Meta, entry, msgs)
	}

	return hist, nil
}

// updateMeta fills session metadata from entries as they stream past.
func updateMeta(meta *deck.SessionMeta, e *Entry, msgs []deck.Message) {
	if t := parseTimestamp(e.Timestamp); !t.IsZero() {
		if meta.CreatedAt.IsZero() || t.Before(meta.CreatedAt) {
			meta.CreatedAt = t
		}
		if t.After(meta.ModifiedAt) {
			meta.ModifiedAt = t
		}
	}
	for i := range msgs {
		m := &msgs[i]
		if meta.FirstPrompt == "" && m.Kind == deck.KindUser {
			meta.FirstPrompt = deck.TruncateString(m.FirstText(), 100)
		}
		if meta.Model == "" && m.Model != "" {
			meta.Model = m.Model
		}
	}
}
