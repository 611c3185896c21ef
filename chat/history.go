package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the schema generation this build understands.
// Stored in the database's `user_version` pragma.
const CurrentSchemaVersion = 1

// History is the persistence capability the coordinator depends on. It is
// satisfied by SQLiteHistory in production and by hand-written stubs in
// tests; the coordinator never depends on the concrete type.
type History interface {
	// EventsSince returns every Event with id > lastEventID, in strictly
	// increasing id order. An empty, non-nil slice is a valid "no new
	// events" result.
	EventsSince(ctx context.Context, lastEventID EventID) ([]Event, error)

	// RecordMessage durably records message and returns the outcome. A
	// non-nil error indicates a StorageFailure; the outcome is only
	// meaningful when err is nil.
	RecordMessage(ctx context.Context, message Message) (RecordOutcome, error)
}

// RecordKind classifies the result of recording a message.
type RecordKind int

const (
	// RecordNew means the message was not previously recorded and has
	// been assigned a fresh Event.
	RecordNew RecordKind = iota
	// RecordDuplicate means an identical message (same id, sender and
	// content) was already recorded. The store is unchanged.
	RecordDuplicate
	// RecordConflict means a different message already occupies this
	// message id. The store is unchanged.
	RecordConflict
)

// RecordOutcome is the result of SQLiteHistory.RecordMessage. Event is only
// populated when Kind is RecordNew.
type RecordOutcome struct {
	Kind  RecordKind
	Event Event
}

// SQLiteHistory is the durable, schema-versioned event log. It opens a
// single relational table `events`, migrated via the `user_version`
// pragma, and serialises writes through an internal mutex since the
// sqlite driver does not itself guarantee that concurrent writers don't
// collide on SQLITE_BUSY under WAL.
type SQLiteHistory struct {
	db  *sql.DB
	now Clock

	mu          sync.Mutex
	lastEventID EventID
}

// OpenSQLiteHistory opens (and migrates, if necessary) the chat history at
// path. An empty path opens an in-memory store, used primarily by tests.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chat history: %w", err)
	}
	// sqlite has no real concept of concurrent writers; a single
	// connection avoids SQLITE_BUSY entirely and the coordinator is the
	// store's only caller anyway.
	db.SetMaxOpenConns(1)

	h := &SQLiteHistory{db: db, now: time.Now}
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	lastEventID, err := h.readLastEventID(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read last event id: %w", err)
	}
	h.lastEventID = lastEventID

	slog.Info("chat history ready", "path", path, "last_event_id", lastEventID)
	return h, nil
}

// Close releases the underlying database handle, flushing any pending
// writes.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

// LastEventID returns the id of the most recently stored event, or
// BeforeAll if the store is empty. It is read from the database on open and
// is the counter RecordMessage assigns the next id from.
func (h *SQLiteHistory) LastEventID() EventID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastEventID
}

func (h *SQLiteHistory) migrate(ctx context.Context) error {
	var version int
	if err := h.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case version == 0:
		tx, err := h.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema migration: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE events (
				id           INTEGER PRIMARY KEY,
				message_id   BLOB UNIQUE NOT NULL,
				sender       TEXT NOT NULL,
				content      TEXT NOT NULL,
				timestamp_ms INTEGER NOT NULL
			)`); err != nil {
			return fmt.Errorf("create events table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema migration: %w", err)
		}
		slog.Info("chat history schema created")
		return nil

	case version == CurrentSchemaVersion:
		return nil

	default:
		slog.Error("chat history schema is newer than supported", "found_version", version, "supported_version", CurrentSchemaVersion)
		return errors.New("chat history has been created by a newer version: to load it you need to upgrade to a newer version")
	}
}

func (h *SQLiteHistory) readLastEventID(ctx context.Context) (EventID, error) {
	var id sql.NullInt64
	err := h.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&id)
	if err != nil {
		return 0, err
	}
	if !id.Valid {
		return BeforeAll, nil
	}
	return EventID(id.Int64), nil
}

// EventsSince implements History.
func (h *SQLiteHistory) EventsSince(ctx context.Context, lastEventID EventID) ([]Event, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, message_id, sender, content, timestamp_ms
		FROM events WHERE id > ? ORDER BY id`, uint64(lastEventID))
	if err != nil {
		slog.Error("failed to read events", "error", err)
		return nil, fmt.Errorf("read events since %s: %w", lastEventID, err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			id          uint64
			messageID   []byte
			sender      string
			content     string
			timestampMs uint64
		)
		if err := rows.Scan(&id, &messageID, &sender, &content, &timestampMs); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		msgID, err := uuid.FromBytes(messageID)
		if err != nil {
			return nil, fmt.Errorf("decode message id: %w", err)
		}
		events = append(events, Event{
			ID: EventID(id),
			Message: Message{
				ID:      msgID,
				Sender:  sender,
				Content: content,
			},
			TimestampMs: timestampMs,
		})
	}
	if err := rows.Err(); err != nil {
		slog.Error("failed to read events", "error", err)
		return nil, fmt.Errorf("read events since %s: %w", lastEventID, err)
	}
	return events, nil
}

// RecordMessage implements History. It attempts an insert under the next
// unused id; a unique-constraint violation on message_id means this client
// id has been seen before, so the existing row is compared byte-wise
// against the submitted (sender, content) to distinguish a Duplicate retry
// from a genuine Conflict.
func (h *SQLiteHistory) RecordMessage(ctx context.Context, message Message) (RecordOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	nextID := h.lastEventID.Successor()
	event := newEvent(nextID, message, h.now)

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO events (id, message_id, sender, content, timestamp_ms)
		VALUES (?, ?, ?, ?, ?)`,
		uint64(event.ID), event.Message.ID[:], event.Message.Sender, event.Message.Content, event.TimestampMs)
	if err == nil {
		h.lastEventID = nextID
		return RecordOutcome{Kind: RecordNew, Event: event}, nil
	}

	if !isUniqueConstraintViolation(err) {
		slog.Error("failed to record event", "error", err)
		return RecordOutcome{}, fmt.Errorf("insert event: %w", err)
	}

	var existingSender, existingContent string
	row := h.db.QueryRowContext(ctx, `
		SELECT sender, content FROM events WHERE message_id = ?`, message.ID[:])
	if err := row.Scan(&existingSender, &existingContent); err != nil {
		slog.Error("failed to resolve duplicate/conflict", "error", err)
		return RecordOutcome{}, fmt.Errorf("look up existing message: %w", err)
	}

	if existingSender == message.Sender && existingContent == message.Content {
		return RecordOutcome{Kind: RecordDuplicate}, nil
	}
	return RecordOutcome{Kind: RecordConflict}, nil
}

// isUniqueConstraintViolation reports whether err is a SQLite UNIQUE
// constraint failure. modernc.org/sqlite does not export a typed
// constraint-code API, so callers throughout the ecosystem match on the
// driver's error text instead.
func isUniqueConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
