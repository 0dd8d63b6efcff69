// Package archive persists raw engine events to DuckDB for export and
// debugging. Derived messages are never stored; they can always be
// re-normalized from the raw payloads.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/codedeck/go-codedeck/internal/deck"
	"github.com/codedeck/go-codedeck/internal/decklog"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS archived_sessions (
    id VARCHAR PRIMARY KEY,
    project_path VARCHAR,
    engine VARCHAR,
    event_count INTEGER DEFAULT 0,
    first_seen TIMESTAMP,
    last_updated TIMESTAMP
);

CREATE SEQUENCE IF NOT EXISTS archived_events_seq;

CREATE TABLE IF NOT EXISTS archived_events (
    seq BIGINT PRIMARY KEY DEFAULT nextval('archived_events_seq'),
    session_id VARCHAR,
    engine VARCHAR,
    payload VARCHAR,
    received_at TIMESTAMP,
    archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a DuckDB-backed raw-event archive.
type Store struct {
	db            *sql.DB
	path          string
	batchSize     int
	flushInterval time.Duration

	// Single-writer pattern: incoming events go to a channel,
	// a single goroutine drains and writes them.
	eventCh chan archiveRequest
	wg      sync.WaitGroup
	done    chan struct{}
}

type archiveRequest struct {
	projectPath string
	events      []deck.RawEvent
}

// NewStore opens (or creates) the archive database and starts the
// background batch writer.
func NewStore(dbPath string, batchSize int, flushInterval time.Duration) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	// Security hardening
	if _, err := db.Exec("SET enable_external_access=false"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set security settings: %w", err)
	}

	s := &Store{
		db:            db,
		path:          dbPath,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		eventCh:       make(chan archiveRequest, batchSize*2),
		done:          make(chan struct{}),
	}

	s.wg.Add(1)
	go s.batchWriter()

	return s, nil
}

// Archive queues raw events for the batch writer.
func (s *Store) Archive(ctx context.Context, projectPath string, events []deck.RawEvent) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case s.eventCh <- archiveRequest{projectPath: projectPath, events: events}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// batchWriter is the single goroutine that drains the event channel and
// writes batches to DuckDB.
func (s *Store) batchWriter() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	var batch []archiveRequest

	for {
		select {
		case req := <-s.eventCh:
			batch = append(batch, req)
			if batchEventCount(batch) >= s.batchSize {
				s.flushBatch(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = nil
			}

		case <-s.done:
			// Drain remaining
			for {
				select {
				case req := <-s.eventCh:
					batch = append(batch, req)
				default:
					if len(batch) > 0 {
						s.flushBatch(batch)
					}
					return
				}
			}
		}
	}
}

func batchEventCount(batch []archiveRequest) int {
	n := 0
	for _, req := range batch {
		n += len(req.events)
	}
	return n
}

// flushBatch writes a batch of requests in a single transaction.
func (s *Store) flushBatch(batch []archiveRequest) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		decklog.Log.Error("Failed to begin archive transaction", "error", err)
		return
	}

	for _, req := range batch {
		if err := s.writeRequest(tx, req); err != nil {
			decklog.Log.Error("Failed to write archive batch", "error", err)
			tx.Rollback()
			return
		}
	}

	if err := tx.Commit(); err != nil {
		decklog.Log.Error("Failed to commit archive batch", "error", err)
		return
	}

	archiveFlushDurationSeconds.Observe(time.Since(start).Seconds())
	decklog.Log.Debug("Flushed archive batch",
		"requests", len(batch), "events", batchEventCount(batch))
}

func (s *Store) writeRequest(tx *sql.Tx, req archiveRequest) error {
	now := time.Now()

	for _, ev := range req.events {
		_, err := tx.Exec(`
			INSERT INTO archived_sessions (id, project_path, engine, event_count, first_seen, last_updated)
			VALUES (?, ?, ?, 1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				event_count = archived_sessions.event_count + 1,
				last_updated = EXCLUDED.last_updated
		`, ev.SessionID, req.projectPath, string(ev.Engine), now, now)
		if err != nil {
			return fmt.Errorf("upsert session %s: %w", ev.SessionID, err)
		}

		receivedAt := ev.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = now
		}
		_, err = tx.Exec(`
			INSERT INTO archived_events (session_id, engine, payload, received_at, archived_at)
			VALUES (?, ?, ?, ?, ?)
		`, ev.SessionID, string(ev.Engine), ev.Payload, receivedAt, now)
		if err != nil {
			return fmt.Errorf("insert event for %s: %w", ev.SessionID, err)
		}
		archivedEventsTotal.WithLabelValues(string(ev.Engine)).Inc()
	}

	return nil
}

// Events returns archived payloads for a session in receipt order.
func (s *Store) Events(ctx context.Context, sessionID string, limit, offset int) ([]deck.RawEvent, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, engine, payload, received_at
		FROM archived_events
		WHERE session_id = ?
		ORDER BY seq ASC
		LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []deck.RawEvent
	for rows.Next() {
		var ev deck.RawEvent
		var engine string
		if err := rows.Scan(&ev.SessionID, &engine, &ev.Payload, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Engine = deck.Engine(engine)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Sessions returns archived session summaries, most recent first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_path, engine, event_count, first_seen, last_updated
		FROM archived_sessions
		ORDER BY last_updated DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.ProjectPath, &sum.Engine,
			&sum.EventCount, &sum.FirstSeen, &sum.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// Summary describes one archived session.
type Summary struct {
	ID          string    `json:"id"`
	ProjectPath string    `json:"project_path"`
	Engine      string    `json:"engine"`
	EventCount  int       `json:"event_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// Close stops the batch writer and closes the database.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
