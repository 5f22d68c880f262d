// Package journal keeps an append-only audit trail of board changes in SQLite.
//
// Every event the engine publishes becomes one row. The journal is never read back into
// the engine; the board is always rebuilt from the channel on startup.
//
// The database uses WAL mode so `reqboard history` can read while `reqboard serve` writes.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/reqboard/reqboard/internal/engine"
)

// Entry is one recorded event
type Entry struct {
	Seq        int64
	Type       engine.EventType
	RequestID  string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// queueSize bounds the events waiting to be written.
const queueSize = 256

// Journal wraps the SQLite connection. Published events are written by a background
// goroutine.
type Journal struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	queue  chan engine.Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Open opens or creates the journal at path. The caller must call Close.
func Open(path string, logger *log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[journal] ", log.LstdFlags)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	j := &Journal{
		conn:   conn,
		path:   path,
		logger: logger,
		queue:  make(chan engine.Event, queueSize),
	}

	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// InitSchema creates the events table. Safe to call more than once.
func (j *Journal) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		request_id TEXT NOT NULL,
		payload TEXT NOT NULL,  -- event as sent to subscribers
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id);
	`

	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Append records ev.
func (j *Journal) Append(ctx context.Context, ev engine.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := ev.ID
	if ev.Request != nil {
		id = ev.Request.ID
	}

	_, err = j.conn.ExecContext(ctx,
		`INSERT INTO events (type, request_id, payload, recorded_at) VALUES (?, ?, ?, ?)`,
		string(ev.Type), id, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Publish implements engine.Sink. The event is queued for writing; it is dropped when
// the queue is full or the journal is closed.
func (j *Journal) Publish(ev engine.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- ev:
	default:
		j.logger.Printf("Warning: journal queue full, dropping %s", ev.Type)
	}
}

// writeLoop appends queued events until the queue is closed. Failures are logged.
func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for ev := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := j.Append(ctx, ev); err != nil {
			j.logger.Printf("Failed to record %s: %v", ev.Type, err)
		}
		cancel()
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.conn.QueryContext(ctx,
		`SELECT seq, type, request_id, payload, recorded_at FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			typ        string
			payload    string
			recordedAt string
		)
		if err := rows.Scan(&e.Seq, &typ, &e.RequestID, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = engine.EventType(typ)
		e.Payload = json.RawMessage(payload)
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("bad timestamp on event %d: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return entries, nil
}

// Path returns the database file location.
func (j *Journal) Path() string {
	return j.path
}

// Close writes out queued events, checkpoints the WAL and closes the connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()

	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	return nil
}
