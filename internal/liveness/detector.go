// Package liveness answers "is this session's engine process still
// producing output". Detection is a file-mtime heuristic: a session whose
// file changed within the active window is treated as running.
package liveness

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// DefaultActiveWindow is the mtime window for considering a session running.
const DefaultActiveWindow = 5 * time.Minute

// Detector checks session liveness. Concurrent checks for the same session
// id are coalesced per id, so one slow stat never blocks checks for
// unrelated sessions.
type Detector struct {
	window time.Duration
	group  singleflight.Group

	// now is replaceable for tests.
	now func() time.Time
}

// NewDetector creates a detector with the default active window.
func NewDetector() *Detector {
	return &Detector{
		window: DefaultActiveWindow,
		now:    time.Now,
	}
}

// SetActiveWindow overrides the mtime window.
func (d *Detector) SetActiveWindow(w time.Duration) {
	d.window = w
}

// IsRunning reports whether the session's underlying process appears to
// still be running. Engines without a liveness signal always report false,
// so their sessions are treated as historical.
func (d *Detector) IsRunning(ctx context.Context, meta deck.SessionMeta) (bool, error) {
	if !meta.Engine.SupportsLiveness() {
		return false, nil
	}
	if meta.FullPath == "" {
		return false, nil
	}

	v, err, _ := d.group.Do(meta.ID, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		info, err := os.Stat(meta.FullPath)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		return d.now().Sub(info.ModTime()) < d.window, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Filter returns the subset of sessions that are currently running.
func (d *Detector) Filter(ctx context.Context, metas []deck.SessionMeta) ([]deck.SessionMeta, error) {
	var running []deck.SessionMeta
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := d.IsRunning(ctx, m)
		if err != nil {
			continue
		}
		if ok {
			running = append(running, m)
		}
	}
	return running, nil
}
