package pynchon

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
// pgx.Tx satisfy this interface, so the same store methods run inside and
// outside transactions.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists the two atmosphere singletons, per-session narrative arcs,
// and the zone/They observation logs.
type Store struct {
	db DB
}

// NewStore creates a [Store] on the given connection, pool or transaction.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// SettingState is the global entropy singleton.
type SettingState struct {
	Level     float64
	State     string
	UpdatedAt time.Time
}

// ParanoiaState is the global They-awareness singleton.
type ParanoiaState struct {
	Awareness  float64
	LastSpike  *time.Time
	SpikeCount int
	UpdatedAt  time.Time
}

// Arc is one session's narrative gravity state.
type Arc struct {
	SessionID     uuid.UUID
	Phase         Phase
	Momentum      float64
	ApexReachedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ZoneObservation records one query that crossed the zone threshold.
type ZoneObservation struct {
	SessionID uuid.UUID
	Proximity float64
	Intensity string
	Triggers  []string
}

// TheyObservation records one query that registered on They-awareness.
type TheyObservation struct {
	SessionID    uuid.UUID
	Score        float64
	Categories   []string
	QueryExcerpt string
}

// GetSetting reads the entropy singleton.
func (s *Store) GetSetting(ctx context.Context) (SettingState, error) {
	const q = `
		SELECT entropy_level, entropy_state, updated_at
		FROM setting_state
		WHERE id = 1`

	var st SettingState
	err := s.db.QueryRow(ctx, q).Scan(&st.Level, &st.State, &st.UpdatedAt)
	if err != nil {
		return SettingState{}, fmt.Errorf("pynchon: get setting state: %w", err)
	}
	return st, nil
}

// UpdateSetting writes the entropy singleton. Last writer wins.
func (s *Store) UpdateSetting(ctx context.Context, level float64, state string) error {
	const q = `
		UPDATE setting_state
		SET entropy_level = $1, entropy_state = $2, updated_at = now()
		WHERE id = 1`

	if _, err := s.db.Exec(ctx, q, level, state); err != nil {
		return fmt.Errorf("pynchon: update setting state: %w", err)
	}
	return nil
}

// GetParanoia reads the They-awareness singleton.
func (s *Store) GetParanoia(ctx context.Context) (ParanoiaState, error) {
	const q = `
		SELECT awareness_level, last_spike, spike_count, updated_at
		FROM paranoia_state
		WHERE id = 1`

	var st ParanoiaState
	err := s.db.QueryRow(ctx, q).Scan(&st.Awareness, &st.LastSpike, &st.SpikeCount, &st.UpdatedAt)
	if err != nil {
		return ParanoiaState{}, fmt.Errorf("pynchon: get paranoia state: %w", err)
	}
	return st, nil
}

// UpdateParanoia writes the awareness level. When spiked is true the spike
// counter advances and last_spike moves to now.
func (s *Store) UpdateParanoia(ctx context.Context, awareness float64, spiked bool) error {
	const q = `
		UPDATE paranoia_state
		SET awareness_level = $1,
			spike_count = spike_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_spike = CASE WHEN $2 THEN now() ELSE last_spike END,
			updated_at = now()
		WHERE id = 1`

	if _, err := s.db.Exec(ctx, q, awareness, spiked); err != nil {
		return fmt.Errorf("pynchon: update paranoia state: %w", err)
	}
	return nil
}

// GetArc loads a session's arc. A session with no arc yet returns nil.
func (s *Store) GetArc(ctx context.Context, sessionID uuid.UUID) (*Arc, error) {
	const q = `
		SELECT session_id, phase, momentum, apex_reached_at, created_at, updated_at
		FROM narrative_arcs
		WHERE session_id = $1`

	a := &Arc{}
	err := s.db.QueryRow(ctx, q, sessionID).Scan(
		&a.SessionID, &a.Phase, &a.Momentum, &a.ApexReachedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pynchon: get arc %s: %w", sessionID, err)
	}
	return a, nil
}

// UpsertArc writes an arc's phase, momentum and apex timestamp.
func (s *Store) UpsertArc(ctx context.Context, a *Arc) error {
	const q = `
		INSERT INTO narrative_arcs (session_id, phase, momentum, apex_reached_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET phase = EXCLUDED.phase,
			momentum = EXCLUDED.momentum,
			apex_reached_at = EXCLUDED.apex_reached_at,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, q, a.SessionID, a.Phase, a.Momentum, a.ApexReachedAt); err != nil {
		return fmt.Errorf("pynchon: upsert arc %s: %w", a.SessionID, err)
	}
	return nil
}

// InsertZoneObservation appends one row to the zone observation log.
func (s *Store) InsertZoneObservation(ctx context.Context, o ZoneObservation) error {
	triggers, err := json.Marshal(emptySlice(o.Triggers))
	if err != nil {
		return fmt.Errorf("pynchon: marshal zone triggers: %w", err)
	}

	const q = `
		INSERT INTO zone_observations (session_id, proximity, intensity, triggers)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, q, nullableID(o.SessionID), o.Proximity, o.Intensity, triggers); err != nil {
		return fmt.Errorf("pynchon: insert zone observation: %w", err)
	}
	return nil
}

// InsertTheyObservation appends one row to the They observation log.
func (s *Store) InsertTheyObservation(ctx context.Context, o TheyObservation) error {
	categories, err := json.Marshal(emptySlice(o.Categories))
	if err != nil {
		return fmt.Errorf("pynchon: marshal they categories: %w", err)
	}

	const q = `
		INSERT INTO they_observations (session_id, score, categories, query_excerpt)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, q, nullableID(o.SessionID), o.Score, categories, o.QueryExcerpt); err != nil {
		return fmt.Errorf("pynchon: insert they observation: %w", err)
	}
	return nil
}

// emptySlice returns an empty slice when s is nil, so JSONB columns receive
// [] instead of null.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullableID maps the zero UUID to NULL for observation rows that are not
// tied to a session.
func nullableID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
