package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// State is one persona_temporal_state row: when the persona was last
// invoked, how often, and what it was last talking about.
type State struct {
	PersonaID       uuid.UUID
	LastActive      time.Time
	InvocationCount int
	LastTopic       string
}

// Event is one temporal_events row, the append-only trail behind the
// per-persona state.
type Event struct {
	PersonaID uuid.UUID
	UserID    uuid.UUID
	EventType string
	Details   map[string]any
}

// Store persists per-persona temporal state and its event trail.
type Store struct {
	db DB
}

// NewStore creates a [Store] on the given connection, pool or transaction.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Get loads a persona's temporal state. A persona never touched returns nil.
func (s *Store) Get(ctx context.Context, personaID uuid.UUID) (*State, error) {
	const q = `
		SELECT persona_id, last_active, invocation_count, last_topic
		FROM persona_temporal_state
		WHERE persona_id = $1`

	st := &State{}
	err := s.db.QueryRow(ctx, q, personaID).Scan(
		&st.PersonaID, &st.LastActive, &st.InvocationCount, &st.LastTopic,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("temporal: get state %s: %w", personaID, err)
	}
	return st, nil
}

// Touch records a persona invocation: last_active moves to now, the
// invocation count advances by one, and last_topic is replaced when topic
// is non-empty.
func (s *Store) Touch(ctx context.Context, personaID uuid.UUID, topic string) error {
	const q = `
		INSERT INTO persona_temporal_state (persona_id, last_active, invocation_count, last_topic)
		VALUES ($1, now(), 1, $2)
		ON CONFLICT (persona_id) DO UPDATE
		SET last_active = now(),
			invocation_count = persona_temporal_state.invocation_count + 1,
			last_topic = CASE WHEN $2 <> '' THEN $2 ELSE persona_temporal_state.last_topic END`

	if _, err := s.db.Exec(ctx, q, personaID, topic); err != nil {
		return fmt.Errorf("temporal: touch %s: %w", personaID, err)
	}
	return nil
}

// InsertEvent appends one row to the temporal event trail.
func (s *Store) InsertEvent(ctx context.Context, e Event) error {
	details, err := json.Marshal(emptyMap(e.Details))
	if err != nil {
		return fmt.Errorf("temporal: marshal event details: %w", err)
	}

	const q = `
		INSERT INTO temporal_events (persona_id, user_id, event_type, details)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, q, e.PersonaID, nullUUID(e.UserID), e.EventType, details); err != nil {
		return fmt.Errorf("temporal: insert event: %w", err)
	}
	return nil
}

// nullUUID maps the zero UUID to NULL for events not tied to a user.
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
