package drift

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the narrow database interface required by [Store]. It is satisfied by
// [pgxpool.Pool] and [pgx.Tx].
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists drift alerts.
type Store struct {
	db DB
}

// NewStore creates a drift store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Alert is one drift_alerts row. SessionID may be zero when the response was
// scored outside a session.
type Alert struct {
	PersonaID uuid.UUID
	SessionID uuid.UUID
	Score     float64
	Severity  Severity
	Signals   map[string]any
}

// InsertAlert writes an alert row. Callers on the assembly path invoke this
// fire-and-forget; the alert's score must equal the analysis score it came
// from.
func (s *Store) InsertAlert(ctx context.Context, a Alert) error {
	signals, err := json.Marshal(emptyMap(a.Signals))
	if err != nil {
		return fmt.Errorf("drift: marshal signals: %w", err)
	}

	const q = `
INSERT INTO drift_alerts (persona_id, session_id, drift_score, severity, signals)
VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.Exec(ctx, q,
		a.PersonaID,
		nullUUID(a.SessionID),
		a.Score,
		string(a.Severity),
		signals,
	)
	if err != nil {
		return fmt.Errorf("drift: insert alert: %w", err)
	}
	return nil
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
