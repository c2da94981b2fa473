package relationship

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the narrow database interface required by [Store]. It is satisfied by
// [pgxpool.Pool] and [pgx.Tx].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists relationships.
type Store struct {
	db DB
}

// NewStore creates a relationship store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetOrCreate returns the relationship row for (userID, personaID),
// materializing a stranger/0 default when none exists. The no-op DO UPDATE
// makes RETURNING yield the row on both paths, so concurrent first lookups
// are safe.
func (s *Store) GetOrCreate(ctx context.Context, userID, personaID uuid.UUID) (*Relationship, error) {
	const q = `
INSERT INTO relationships (user_id, persona_id)
VALUES ($1, $2)
ON CONFLICT (user_id, persona_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING user_id, persona_id, familiarity_score, trust_level, interaction_count,
          user_summary, user_preferences, memorable_exchanges, created_at, updated_at`

	r, err := scanRelationship(s.db.QueryRow(ctx, q, userID, personaID))
	if err != nil {
		return nil, fmt.Errorf("relationship: get or create %s/%s: %w", userID, personaID, err)
	}
	return r, nil
}

// Update writes the mutable fields of r back to its row.
func (s *Store) Update(ctx context.Context, r *Relationship) error {
	prefs, err := json.Marshal(emptyStringMap(r.UserPreferences))
	if err != nil {
		return fmt.Errorf("relationship: marshal user_preferences: %w", err)
	}
	exchanges, err := json.Marshal(emptySlice(r.MemorableExchanges))
	if err != nil {
		return fmt.Errorf("relationship: marshal memorable_exchanges: %w", err)
	}

	const q = `
UPDATE relationships
   SET familiarity_score = $3,
       trust_level = $4,
       interaction_count = $5,
       user_summary = $6,
       user_preferences = $7,
       memorable_exchanges = $8,
       updated_at = now()
 WHERE user_id = $1 AND persona_id = $2`

	tag, err := s.db.Exec(ctx, q,
		r.UserID,
		r.PersonaID,
		r.FamiliarityScore,
		string(r.TrustLevel),
		r.InteractionCount,
		r.UserSummary,
		prefs,
		exchanges,
	)
	if err != nil {
		return fmt.Errorf("relationship: update %s/%s: %w", r.UserID, r.PersonaID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relationship: update %s/%s: row not found", r.UserID, r.PersonaID)
	}
	return nil
}

func scanRelationship(row pgx.Row) (*Relationship, error) {
	var (
		r         Relationship
		trust     string
		prefs     []byte
		exchanges []byte
	)
	err := row.Scan(
		&r.UserID,
		&r.PersonaID,
		&r.FamiliarityScore,
		&trust,
		&r.InteractionCount,
		&r.UserSummary,
		&prefs,
		&exchanges,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.TrustLevel = TrustLevel(trust)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &r.UserPreferences); err != nil {
			return nil, fmt.Errorf("unmarshal user_preferences: %w", err)
		}
	}
	if len(exchanges) > 0 {
		if err := json.Unmarshal(exchanges, &r.MemorableExchanges); err != nil {
			return nil, fmt.Errorf("unmarshal memorable_exchanges: %w", err)
		}
	}
	return &r, nil
}

// emptyStringMap returns an empty map when m is nil, so JSONB columns receive
// '{}' instead of 'null'.
func emptyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// emptySlice returns an empty slice when s is nil, so JSONB columns receive
// '[]' instead of 'null'.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
