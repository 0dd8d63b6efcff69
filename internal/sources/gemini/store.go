package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Store reads Gemini CLI chat files from ~/.gemini/tmp/<hash>/chats.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir. Empty means ~/.gemini.
func NewStore(baseDir string) *Store {
	if baseDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			baseDir = filepath.Join(home, ".gemini")
		}
	}
	return &Store{baseDir: baseDir}
}

// Engine returns deck.EngineGemini.
func (s *Store) Engine() deck.Engine {
	return deck.EngineGemini
}

// projectHash is how Gemini CLI names a project's tmp directory.
func projectHash(projectPath string) string {
	sum := sha256.Sum256([]byte(projectPath))
	return hex.EncodeToString(sum[:])
}

func (s *Store) chatsDir(projectPath string) string {
	return filepath.Join(s.baseDir, "tmp", projectHash(projectPath), "chats")
}

// ListSessions returns metadata for every chat file under the project.
func (s *Store) ListSessions(ctx context.Context, projectPath string) ([]deck.SessionMeta, error) {
	dir := s.chatsDir(projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chats dir: %w", err)
	}

	var metas []deck.SessionMeta
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, de.Name())
		sess, err := readSessionFile(path)
		if err != nil {
			continue
		}

		id := sess.SessionID
		if id == "" {
			id = strings.TrimSuffix(de.Name(), ".json")
		}
		meta := deck.SessionMeta{
			ID:          id,
			ProjectPath: projectPath,
			FullPath:    path,
			Engine:      deck.EngineGemini,
			CreatedAt:   sess.StartTime,
			ModifiedAt:  sess.LastUpdated,
		}
		for i := range sess.Messages {
			if sess.Messages[i].Type == "user" && sess.Messages[i].Content != "" {
				meta.FirstPrompt = deck.TruncateString(sess.Messages[i].Content, 100)
				break
			}
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].ModifiedAt.After(metas[j].ModifiedAt)
	})
	return metas, nil
}

// LoadHistory loads a chat file and normalizes every message.
func (s *Store) LoadHistory(ctx context.Context, sessionID, projectPath string) (*deck.History, error) {
	path, sess, err := s.findSession(ctx, sessionID, projectPath)
	if err != nil {
		return nil, err
	}

	hist := &deck.History{
		Meta: deck.SessionMeta{
			ID:          sessionID,
			ProjectPath: projectPath,
			FullPath:    path,
			Engine:      deck.EngineGemini,
			CreatedAt:   sess.StartTime,
			ModifiedAt:  sess.LastUpdated,
		},
	}

	for i := range sess.Messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := &sess.Messages[i]

		if raw, err := json.Marshal(m); err == nil {
			hist.Raw = append(hist.Raw, deck.RawEvent{
				SessionID:  sessionID,
				Engine:     deck.EngineGemini,
				Payload:    string(raw),
				ReceivedAt: m.Timestamp,
			})
		}

		msgs := NormalizeMessage(sessionID, i, m)
		hist.Messages = append(hist.Messages, msgs...)

		if hist.Meta.FirstPrompt == "" && m.Type == "user" && m.Content != "" {
			hist.Meta.FirstPrompt = deck.TruncateString(m.Content, 100)
		}
		if hist.Meta.Model == "" && m.Model != "" {
			hist.Meta.Model = m.Model
		}
	}

	return hist, nil
}

// findSession locates a chat file by session id, preferring the project's
// own chats directory and falling back to a scan of all project hashes.
func (s *Store) findSession(ctx context.Context, sessionID, projectPath string) (string, *Session, error) {
	if projectPath != "" {
		if path, sess := findInDir(s.chatsDir(projectPath), sessionID); sess != nil {
			return path, sess, nil
		}
	}

	tmpDir := filepath.Join(s.baseDir, "tmp")
	hashes, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", nil, fmt.Errorf("gemini session %s: %w", sessionID, os.ErrNotExist)
	}
	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		if !h.IsDir() {
			continue
		}
		if path, sess := findInDir(filepath.Join(tmpDir, h.Name(), "chats"), sessionID); sess != nil {
			return path, sess, nil
		}
	}
	return "", nil, fmt.Errorf("gemini session %s: %w", sessionID, os.ErrNotExist)
}

func findInDir(dir, sessionID string) (string, *Session) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, de.Name())
		if strings.TrimSuffix(de.Name(), ".json") == sessionID {
			if sess, err := readSessionFile(path); err == nil {
				return path, sess
			}
			continue
		}
		sess, err := readSessionFile(path)
		if err != nil {
			continue
		}
		if sess.SessionID == sessionID {
			return path, sess
		}
	}
	return "", nil
}

func readSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
