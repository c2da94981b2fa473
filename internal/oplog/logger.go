// Package oplog writes operator-facing audit entries to the operator_logs
// table.
//
// Most entries are fire-and-forget: [Logger.Log] enqueues onto a bounded
// buffer drained by a background goroutine, so a slow or dead database never
// blocks the assembly hot path. Entries that other operations depend on (the
// session-completion marker consulted by the idempotency check) go through
// [Logger.LogSync] instead.
package oplog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ofim/contexto/internal/observe"
)

// Operation names recorded in operator_logs rows.
const (
	OpContextAssembly  = "context_assembly"
	OpCouncilAssembly  = "council_assembly"
	OpSessionComplete  = "session_complete"
	OpErrorGraceful    = "error_graceful"
	OpSoulFailure      = "soul_validation_failure"
	OpTrustChange      = "trust_level_change"
	OpMemoryConsigned  = "memory_consignment"
	OpPreteriteSurface = "preterite_surfacing"
)

// bufferSize bounds the async queue. When full, new entries are dropped and
// counted rather than blocking the caller.
const bufferSize = 256

// writeTimeout bounds a single background insert.
const writeTimeout = 2 * time.Second

// DB is the narrow database interface required by [Logger]. It is satisfied
// by [pgxpool.Pool] and [pgx.Tx].
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Entry is a single operator-log record. Zero-valued UUID fields are stored
// as NULL.
type Entry struct {
	Operation string
	SessionID uuid.UUID
	PersonaID uuid.UUID
	UserID    uuid.UUID
	Details   map[string]any
	Duration  time.Duration
	Success   bool
}

// Logger persists [Entry] values. All methods are safe for concurrent use.
type Logger struct {
	db      DB
	metrics *observe.Metrics

	ch       chan Entry
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Logger and starts its background drain goroutine. Call
// [Logger.Close] to flush and stop it.
func New(db DB, metrics *observe.Metrics) *Logger {
	l := &Logger{
		db:      db,
		metrics: metrics,
		ch:      make(chan Entry, bufferSize),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

// Log enqueues e for asynchronous persistence. It never blocks: when the
// buffer is full the entry is dropped, counted, and logged. Failures to
// persist are logged and swallowed — the operator log must never take the
// pipeline down with it.
func (l *Logger) Log(ctx context.Context, e Entry) {
	select {
	case l.ch <- e:
	default:
		if l.metrics != nil {
			l.metrics.OplogDrops.Add(ctx, 1)
		}
		observe.Logger(ctx).Warn("operator log entry dropped, buffer full",
			"operation", e.Operation,
		)
	}
}

// LogSync writes e synchronously, bypassing the buffer. Use it for entries
// whose presence other operations depend on, such as the session-completion
// marker checked by [Logger.HasSucceeded].
func (l *Logger) LogSync(ctx context.Context, e Entry) error {
	if err := l.insert(ctx, l.db, e); err != nil {
		return fmt.Errorf("oplog: write %s: %w", e.Operation, err)
	}
	return nil
}

// LogTx writes e synchronously using the given transaction-scoped DB, so the
// entry commits or rolls back with the surrounding work.
func (l *Logger) LogTx(ctx context.Context, tx DB, e Entry) error {
	if err := l.insert(ctx, tx, e); err != nil {
		return fmt.Errorf("oplog: write %s: %w", e.Operation, err)
	}
	return nil
}

// HasSucceeded reports whether a successful entry for operation and
// sessionID has been recorded. It backs the session-completion idempotency
// check.
func (l *Logger) HasSucceeded(ctx context.Context, operation string, sessionID uuid.UUID) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM operator_logs
     WHERE operation = $1 AND session_id = $2 AND success
)`
	var exists bool
	if err := l.db.QueryRow(ctx, q, operation, sessionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("oplog: check %s: %w", operation, err)
	}
	return exists, nil
}

// Close stops the drain goroutine after flushing any buffered entries. Safe
// to call multiple times.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// drain moves buffered entries to the database until Close, then flushes
// whatever remains in the buffer.
func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.ch:
			l.write(e)
		case <-l.done:
			for {
				select {
				case e := <-l.ch:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

// write persists one entry with its own timeout, detached from any caller
// context that may already be gone.
func (l *Logger) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.insert(ctx, l.db, e); err != nil {
		slog.Warn("operator log write failed",
			"operation", e.Operation,
			"error", err,
		)
	}
}

func (l *Logger) insert(ctx context.Context, db DB, e Entry) error {
	details, err := json.Marshal(emptyMap(e.Details))
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	const q = `
INSERT INTO operator_logs (operation, session_id, persona_id, user_id, details, duration_ms, success)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = db.Exec(ctx, q,
		e.Operation,
		nullUUID(e.SessionID),
		nullUUID(e.PersonaID),
		nullUUID(e.UserID),
		details,
		e.Duration.Milliseconds(),
		e.Success,
	)
	return err
}

// nullUUID maps the zero UUID to NULL.
func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// emptyMap returns an empty map when m is nil, so JSONB columns receive '{}'
// instead of 'null'.
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
