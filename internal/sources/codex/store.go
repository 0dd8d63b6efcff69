package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Store reads Codex CLI sessions from ~/.codex/sessions.
// Rollout files live at sessions/YYYY/MM/DD/rollout-<ts>-<uuid>.jsonl and
// carry their own session id and project path in a session_meta record.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir. Empty means ~/.codex.
func NewStore(baseDir string) *Store {
	if baseDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			baseDir = filepath.Join(home, ".codex")
		}
	}
	return &Store{baseDir: baseDir}
}

// Engine returns deck.EngineCodex.
func (s *Store) Engine() deck.Engine {
	return deck.EngineCodex
}

// ListSessions returns sessions whose recorded cwd matches projectPath.
// An empty projectPath matches everything.
func (s *Store) ListSessions(ctx context.Context, projectPath string) ([]deck.SessionMeta, error) {
	all, err := s.scanSessions(ctx)
	if err != nil {
		return nil, err
	}
	if projectPath == "" {
		return all, nil
	}

	matched := make([]deck.SessionMeta, 0, len(all))
	for _, m := range all {
		if m.ProjectPath == projectPath {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

// LoadHistory reads and normalizes a full session by id.
func (s *Store) LoadHistory(ctx context.Context, sessionID, projectPath string) (*deck.History, error) {
	path, err := s.findSessionFile(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	hist := &deck.History{
		Meta: deck.SessionMeta{
			ID:          sessionID,
			ProjectPath: projectPath,
			FullPath:    path,
			Engine:      deck.EngineCodex,
		},
	}

	parser := NewParser(f, sessionID)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, raw, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read session %s: %w", sessionID, err)
		}

		hist.Raw = append(hist.Raw, deck.RawEvent{
			SessionID: sessionID,
			Engine:    deck.EngineCodex,
			Payload:   string(raw),
		})
		for _, m := range msgs {
			if !m.Timestamp.IsZero() {
				hist.Raw[len(hist.Raw)-1].ReceivedAt = m.Timestamp
				break
			}
		}

		hist.Messages = append(hist.Messages, msgs...)

		for i := range msgs {
			m := &msgs[i]
			if hist.Meta.FirstPrompt == "" && m.Kind == deck.KindUser && m.Text != "" {
				hist.Meta.FirstPrompt = deck.TruncateString(m.Text, 100)
			}
			if !m.Timestamp.IsZero() {
				if hist.Meta.CreatedAt.IsZero() || m.Timestamp.Before(hist.Meta.CreatedAt) {
					hist.Meta.CreatedAt = m.Timestamp
				}
				if m.Timestamp.After(hist.Meta.ModifiedAt) {
					hist.Meta.ModifiedAt = m.Timestamp
				}
			}
		}
	}

	return hist, nil
}

// findSessionFile locates the rollout file for a session id. File names end
// with the session uuid, so a suffix match is enough.
func (s *Store) findSessionFile(ctx context.Context, sessionID string) (string, error) {
	root := filepath.Join(s.baseDir, "sessions")
	var found string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		if name == sessionID || strings.HasSuffix(name, sessionID) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("codex session %s: %w", sessionID, os.ErrNotExist)
	}
	return found, nil
}

func (s *Store) scanSessions(ctx context.Context) ([]deck.SessionMeta, error) {
	root := filepath.Join(s.baseDir, "sessions")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	sessions := make([]deck.SessionMeta, 0, 128)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}

		meta, err := readSessionMeta(path)
		if err != nil || meta == nil {
			return nil
		}
		sessions = append(sessions, *meta)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ModifiedAt.After(sessions[j].ModifiedAt)
	})
	return sessions, nil
}

// readSessionMeta reads the leading session_meta record of a rollout file.
func readSessionMeta(path string) (*deck.SessionMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	meta := &deck.SessionMeta{
		ID:         strings.TrimSuffix(filepath.Base(path), ".jsonl"),
		FullPath:   path,
		Engine:     deck.EngineCodex,
		ModifiedAt: info.ModTime(),
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := deck.NewScannerWithCapacity(f, 64*1024, deck.MaxScannerCapacity)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var l logLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			continue
		}
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = parseTimestamp(l.Timestamp)
		}
		if l.Type != "session_meta" {
			continue
		}

		var sm struct {
			ID  string `json:"id"`
			CWD string `json:"cwd"`
		}
		if err := json.Unmarshal(l.Payload, &sm); err == nil {
			if sm.ID != "" {
				meta.ID = sm.ID
			}
			meta.ProjectPath = sm.CWD
		}
		break
	}

	return meta, nil
}
