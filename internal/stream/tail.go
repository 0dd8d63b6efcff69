package stream

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codedeck/go-codedeck/internal/decklog"
)

// TailFile opens a JSONL session file, seeks to the end, and publishes new
// lines to the bus as they are appended. It blocks until ctx is cancelled or
// the file is deleted, then signals completion on the bus.
func TailFile(ctx context.Context, bus *Bus, sessionID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	// Seek to end, listeners already have the history
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		f.Close()
		return err
	}

	tailLoop(ctx, bus, sessionID, f, watcher)
	return nil
}

func tailLoop(ctx context.Context, bus *Bus, sessionID string, f *os.File, watcher *fsnotify.Watcher) {
	defer bus.Complete(sessionID)
	defer f.Close()
	defer watcher.Close()

	reader := bufio.NewReaderSize(f, 64*1024)
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) {
				// Debounce rapid writes
				debounce.Reset(100 * time.Millisecond)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return
			}

		case <-debounce.C:
			// Read all available new lines
			for {
				line, err := reader.ReadBytes('\n')
				if err != nil {
					break
				}
				trimmed := strings.TrimSpace(string(line))
				if trimmed == "" {
					continue
				}
				bus.Publish(sessionID, []byte(trimmed))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			decklog.Log.Warn("Tail watcher error", "session_id", sessionID, "error", err)
			bus.PublishError(sessionID, err)
		}
	}
}
