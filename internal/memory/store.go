package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// retrievalLimit caps how many memories any single retrieval returns.
const retrievalLimit = 10

// insertParams is the number of bind parameters per batch-inserted row.
// Postgres caps a statement at 65535 bind parameters, so a single batch
// carries at most maxBatchRows rows; anything beyond that is dropped.
const (
	insertParams = 5
	maxBatchRows = 65535 / insertParams
)

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// pgx.Tx satisfy this interface, so the same store methods run inside and
// outside transactions.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists memories, the preterite, persona memories and opinions.
type Store struct {
	db DB
}

// NewStore creates a [Store] on the given connection, pool or transaction.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const memoryColumns = `id, persona_id, user_id, content, memory_type,
		importance_score, access_count, last_accessed, created_at`

// SearchHybrid ranks memories by a blend of vector similarity and stored
// importance: 0.6 * cosine similarity + 0.4 * importance. Rows without an
// embedding are invisible to this path; callers fall back to
// [Store.ListByImportance] when the result is empty or the query vector is
// unavailable.
func (s *Store) SearchHybrid(ctx context.Context, personaID, userID uuid.UUID, query []float32) ([]*Memory, error) {
	const q = `
		SELECT ` + memoryColumns + `
		FROM memories
		WHERE persona_id = $1 AND user_id = $2 AND embedding IS NOT NULL
		ORDER BY 0.6 * (1 - (embedding <=> $3)) + 0.4 * importance_score DESC
		LIMIT $4`

	rows, err := s.db.Query(ctx, q, personaID, userID, pgvector.NewVector(query), retrievalLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: hybrid search: %w", err)
	}
	return collectMemories(rows, "hybrid search")
}

// ListByImportance returns the highest-importance memories for a
// persona/user pair, most recent first among equals.
func (s *Store) ListByImportance(ctx context.Context, personaID, userID uuid.UUID) ([]*Memory, error) {
	const q = `
		SELECT ` + memoryColumns + `
		FROM memories
		WHERE persona_id = $1 AND user_id = $2
		ORDER BY importance_score DESC, created_at DESC
		LIMIT $3`

	rows, err := s.db.Query(ctx, q, personaID, userID, retrievalLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: list by importance: %w", err)
	}
	return collectMemories(rows, "list by importance")
}

// InsertBatch stores memories in a single multi-row INSERT, filling in the
// generated IDs and timestamps. Embeddings, when present, are written in a
// second pass so that rows without one insert cleanly. Batches beyond
// maxBatchRows are truncated. Returns the number of rows inserted.
func (s *Store) InsertBatch(ctx context.Context, mems []*Memory) (int, error) {
	if len(mems) == 0 {
		return 0, nil
	}
	if len(mems) > maxBatchRows {
		mems = mems[:maxBatchRows]
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(mems)*insertParams)
	)
	sb.WriteString(`INSERT INTO memories (persona_id, user_id, content, memory_type, importance_score) VALUES `)
	for i, m := range mems {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * insertParams
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, m.PersonaID, m.UserID, m.Content, defaultType(m.MemoryType), m.ImportanceScore)
	}
	sb.WriteString(" RETURNING id, created_at")

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("memory: insert batch: %w", err)
	}
	defer rows.Close()

	inserted := 0
	for rows.Next() {
		if err := rows.Scan(&mems[inserted].ID, &mems[inserted].CreatedAt); err != nil {
			return inserted, fmt.Errorf("memory: insert batch scan: %w", err)
		}
		inserted++
	}
	if err := rows.Err(); err != nil {
		return inserted, fmt.Errorf("memory: insert batch: %w", err)
	}
	// Inside a transaction the embedding updates share the connection with
	// the insert, so the result set must be fully closed first.
	rows.Close()

	for _, m := range mems[:inserted] {
		if m.Embedding == nil {
			continue
		}
		const upd = `UPDATE memories SET embedding = $2 WHERE id = $1`
		if _, err := s.db.Exec(ctx, upd, m.ID, pgvector.NewVector(m.Embedding)); err != nil {
			return inserted, fmt.Errorf("memory: set embedding: %w", err)
		}
	}
	return inserted, nil
}

// TouchAccessed bumps access_count and last_accessed for the given
// memories. Called after retrieval so election can tell read memories from
// never-read ones.
func (s *Store) TouchAccessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = now()
		WHERE id = ANY($1)`

	if _, err := s.db.Exec(ctx, q, ids); err != nil {
		return fmt.Errorf("memory: touch accessed: %w", err)
	}
	return nil
}

// ConsignPreterite records that a memory lost the election. Re-consigning
// the same memory updates the reason and score instead of duplicating the
// row; a memory is passed over at most once.
func (s *Store) ConsignPreterite(ctx context.Context, p *PreteriteMemory) error {
	const q = `
		INSERT INTO preterite_memories (original_memory_id, persona_id, user_id, preterite_reason, original_score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (original_memory_id) DO UPDATE
			SET preterite_reason = EXCLUDED.preterite_reason,
			    original_score   = EXCLUDED.original_score
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, q,
		p.OriginalMemoryID, p.PersonaID, p.UserID, p.Reason, p.OriginalScore,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("memory: consign preterite: %w", err)
	}
	return nil
}

// RandomPreterite returns up to limit passed-over memories in random order,
// joined with the original content they were consigned from.
func (s *Store) RandomPreterite(ctx context.Context, personaID, userID uuid.UUID, limit int) ([]*PreteriteMemory, error) {
	const q = `
		SELECT p.id, p.original_memory_id, p.persona_id, p.user_id, p.preterite_reason,
		       p.original_score, p.surface_count, p.last_surfaced, p.created_at, m.content
		FROM preterite_memories p
		JOIN memories m ON m.id = p.original_memory_id
		WHERE p.persona_id = $1 AND p.user_id = $2
		ORDER BY random()
		LIMIT $3`

	rows, err := s.db.Query(ctx, q, personaID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: random preterite: %w", err)
	}
	defer rows.Close()

	var out []*PreteriteMemory
	for rows.Next() {
		var p PreteriteMemory
		err := rows.Scan(&p.ID, &p.OriginalMemoryID, &p.PersonaID, &p.UserID, &p.Reason,
			&p.OriginalScore, &p.SurfaceCount, &p.LastSurfaced, &p.CreatedAt, &p.Content)
		if err != nil {
			return nil, fmt.Errorf("memory: random preterite scan: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: random preterite: %w", err)
	}
	return out, nil
}

// MarkSurfaced bumps surface_count and last_surfaced for preterite rows
// that made it into a prompt.
func (s *Store) MarkSurfaced(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `
		UPDATE preterite_memories
		SET surface_count = surface_count + 1, last_surfaced = now()
		WHERE id = ANY($1)`

	if _, err := s.db.Exec(ctx, q, ids); err != nil {
		return fmt.Errorf("memory: mark surfaced: %w", err)
	}
	return nil
}

// ListPersonaMemories returns a persona's own reflections, most important
// first.
func (s *Store) ListPersonaMemories(ctx context.Context, personaID uuid.UUID, limit int) ([]*PersonaMemory, error) {
	const q = `
		SELECT id, persona_id, content, memory_type, source_persona, importance, created_at
		FROM persona_memories
		WHERE persona_id = $1
		ORDER BY importance DESC, created_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, q, personaID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: list persona memories: %w", err)
	}
	defer rows.Close()

	var out []*PersonaMemory
	for rows.Next() {
		var m PersonaMemory
		err := rows.Scan(&m.ID, &m.PersonaID, &m.Content, &m.MemoryType, &m.SourcePersona, &m.Importance, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("memory: list persona memories scan: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: list persona memories: %w", err)
	}
	return out, nil
}

// ListOpinions returns a persona's learned opinions, most expressed first.
func (s *Store) ListOpinions(ctx context.Context, personaID uuid.UUID, limit int) ([]*Opinion, error) {
	const q = `
		SELECT id, persona_id, topic, stance, confidence, expression_count, last_expressed, created_at
		FROM persona_opinions
		WHERE persona_id = $1
		ORDER BY expression_count DESC, confidence DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, q, personaID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: list opinions: %w", err)
	}
	defer rows.Close()

	var out []*Opinion
	for rows.Next() {
		var o Opinion
		err := rows.Scan(&o.ID, &o.PersonaID, &o.Topic, &o.Stance, &o.Confidence, &o.ExpressionCount, &o.LastExpressed, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("memory: list opinions scan: %w", err)
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: list opinions: %w", err)
	}
	return out, nil
}

// UpsertOpinion records or reinforces a persona's stance on a topic. The
// latest stance and confidence win; expression_count accumulates.
func (s *Store) UpsertOpinion(ctx context.Context, o *Opinion) error {
	const q = `
		INSERT INTO persona_opinions (persona_id, topic, stance, confidence, expression_count, last_expressed)
		VALUES ($1, $2, $3, $4, 1, now())
		ON CONFLICT (persona_id, topic) DO UPDATE
			SET stance           = EXCLUDED.stance,
			    confidence       = EXCLUDED.confidence,
			    expression_count = persona_opinions.expression_count + 1,
			    last_expressed   = now()
		RETURNING id, expression_count, created_at`

	err := s.db.QueryRow(ctx, q, o.PersonaID, o.Topic, o.Stance, o.Confidence).
		Scan(&o.ID, &o.ExpressionCount, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("memory: upsert opinion: %w", err)
	}
	return nil
}

func collectMemories(rows pgx.Rows, op string) ([]*Memory, error) {
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		var m Memory
		err := rows.Scan(&m.ID, &m.PersonaID, &m.UserID, &m.Content, &m.MemoryType,
			&m.ImportanceScore, &m.AccessCount, &m.LastAccessed, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("memory: %s scan: %w", op, err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: %s: %w", op, err)
	}
	return out, nil
}

func defaultType(t string) string {
	if t == "" {
		return TypeInteraction
	}
	return t
}
