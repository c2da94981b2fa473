package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// pgx.Tx satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads and writes personas rows and their context templates.
type Store struct {
	db DB
}

// NewStore creates a Store using the given connection pool or transaction.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetBySlug retrieves a persona by its slug. It returns (nil, nil) when no
// persona with the given slug exists.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Persona, error) {
	const query = `
		SELECT id, slug, name, soul_path, soul_hash, soul_version,
		       learned_traits, drift_check_enabled, drift_threshold,
		       created_at, updated_at
		FROM personas
		WHERE slug = $1`

	p, err := scanPersona(s.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("persona: get %q: %w", slug, err)
	}
	return p, nil
}

// GetByID retrieves a persona by ID. It returns (nil, nil) when no persona
// with the given ID exists.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Persona, error) {
	const query = `
		SELECT id, slug, name, soul_path, soul_hash, soul_version,
		       learned_traits, drift_check_enabled, drift_threshold,
		       created_at, updated_at
		FROM personas
		WHERE id = $1`

	p, err := scanPersona(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("persona: get %s: %w", id, err)
	}
	return p, nil
}

// List returns all personas ordered by slug.
func (s *Store) List(ctx context.Context) ([]Persona, error) {
	const query = `
		SELECT id, slug, name, soul_path, soul_hash, soul_version,
		       learned_traits, drift_check_enabled, drift_threshold,
		       created_at, updated_at
		FROM personas
		ORDER BY slug`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persona: list: %w", err)
	}
	defer rows.Close()

	var personas []Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("persona: list scan: %w", err)
		}
		personas = append(personas, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persona: list: %w", err)
	}
	return personas, nil
}

// Upsert creates or refreshes a persona row keyed by slug. soul_version is
// bumped only when the stored soul hash differs from the incoming one, so
// re-syncing unchanged files is a no-op version-wise. On return p carries the
// row's ID, version, and timestamps.
func (s *Store) Upsert(ctx context.Context, p *Persona) error {
	const query = `
		INSERT INTO personas (slug, name, soul_path, soul_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			soul_path = EXCLUDED.soul_path,
			soul_hash = EXCLUDED.soul_hash,
			soul_version = personas.soul_version
				+ CASE WHEN personas.soul_hash <> EXCLUDED.soul_hash THEN 1 ELSE 0 END,
			updated_at = now()
		RETURNING id, soul_version, created_at, updated_at`

	err := s.db.QueryRow(ctx, query, p.Slug, p.Name, p.SoulPath, p.SoulHash).
		Scan(&p.ID, &p.SoulVersion, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("persona: upsert %q: %w", p.Slug, err)
	}
	return nil
}

// UpdateLearnedTraits replaces a persona's learned_traits JSONB.
func (s *Store) UpdateLearnedTraits(ctx context.Context, id uuid.UUID, traits LearnedTraits) error {
	traitsJSON, err := json.Marshal(traits)
	if err != nil {
		return fmt.Errorf("persona: marshal learned_traits: %w", err)
	}

	const query = `
		UPDATE personas
		SET learned_traits = $2, updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, traitsJSON)
	if err != nil {
		return fmt.Errorf("persona: update learned_traits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("persona: update learned_traits: persona %s not found", id)
	}
	return nil
}

// Template retrieves a context template for (personaID, kind). When
// requireActive is set, inactive rows are treated as absent. Returns
// (nil, nil) when no matching template exists.
func (s *Store) Template(ctx context.Context, personaID uuid.UUID, kind string, requireActive bool) (*Template, error) {
	query := `
		SELECT id, persona_id, kind, content, active, created_at
		FROM context_templates
		WHERE persona_id = $1 AND kind = $2`
	if requireActive {
		query += ` AND active`
	}

	var t Template
	err := s.db.QueryRow(ctx, query, personaID, kind).
		Scan(&t.ID, &t.PersonaID, &t.Kind, &t.Content, &t.Active, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("persona: template %q: %w", kind, err)
	}
	return &t, nil
}

// scanPersona scans one personas row, deserialising the learned_traits JSONB.
func scanPersona(row pgx.Row) (*Persona, error) {
	var p Persona
	var traitsJSON []byte

	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.SoulPath, &p.SoulHash, &p.SoulVersion,
		&traitsJSON, &p.DriftCheckEnabled, &p.DriftThreshold,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(traitsJSON, &p.LearnedTraits); err != nil {
		return nil, fmt.Errorf("unmarshal learned_traits: %w", err)
	}
	return &p, nil
}
