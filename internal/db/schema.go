package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the minimal statement-execution interface required by [Migrate].
// It is satisfied by [pgxpool.Pool], [pgx.Conn], and [pgx.Tx].
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Identity DDL — personas and per-user relationships
// ─────────────────────────────────────────────────────────────────────────────

const ddlIdentity = `
CREATE TABLE IF NOT EXISTS personas (
    id                  UUID             PRIMARY KEY DEFAULT gen_random_uuid(),
    slug                TEXT             NOT NULL UNIQUE,
    name                TEXT             NOT NULL,
    soul_path           TEXT             NOT NULL DEFAULT '',
    soul_hash           TEXT             NOT NULL DEFAULT '',
    soul_version        INT              NOT NULL DEFAULT 1,
    learned_traits      JSONB            NOT NULL DEFAULT '{}',
    drift_check_enabled BOOLEAN          NOT NULL DEFAULT TRUE,
    drift_threshold     DOUBLE PRECISION NOT NULL DEFAULT 0.3,
    created_at          TIMESTAMPTZ      NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relationships (
    user_id             UUID             NOT NULL,
    persona_id          UUID             NOT NULL REFERENCES personas (id) ON DELETE CASCADE,
    familiarity_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
    trust_level         TEXT             NOT NULL DEFAULT 'stranger',
    interaction_count   INT              NOT NULL DEFAULT 0,
    user_summary        TEXT             NOT NULL DEFAULT '',
    user_preferences    JSONB            NOT NULL DEFAULT '{}',
    memorable_exchanges JSONB            NOT NULL DEFAULT '[]',
    created_at          TIMESTAMPTZ      NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ      NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, persona_id)
);

CREATE TABLE IF NOT EXISTS context_templates (
    id         UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
    persona_id UUID        NOT NULL REFERENCES personas (id) ON DELETE CASCADE,
    kind       TEXT        NOT NULL,
    content    TEXT        NOT NULL,
    active     BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (persona_id, kind)
);
`

// ─────────────────────────────────────────────────────────────────────────────
// Memory DDL — user memories, the preterite, persona-private memories
// ─────────────────────────────────────────────────────────────────────────────

// ddlMemories returns the memory DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlMemories(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    id               UUID             PRIMARY KEY DEFAULT gen_random_uuid(),
    persona_id       UUID             NOT NULL,
    user_id          UUID             NOT NULL,
    content          TEXT             NOT NULL,
    memory_type      TEXT             NOT NULL DEFAULT 'interaction',
    importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    embedding        vector(%d),
    access_count     INT              NOT NULL DEFAULT 0,
    last_accessed    TIMESTAMPTZ,
    created_at       TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memories_persona_user
    ON memories (persona_id, user_id);

CREATE INDEX IF NOT EXISTS idx_memories_importance
    ON memories (persona_id, user_id, importance_score DESC);

CREATE INDEX IF NOT EXISTS idx_memories_embedding
    ON memories USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS preterite_memories (
    id                 UUID             PRIMARY KEY DEFAULT gen_random_uuid(),
    original_memory_id UUID             NOT NULL UNIQUE REFERENCES memories (id) ON DELETE CASCADE,
    persona_id         UUID             NOT NULL,
    user_id            UUID             NOT NULL,
    preterite_reason   TEXT             NOT NULL,
    original_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
    surface_count      INT              NOT NULL DEFAULT 0,
    last_surfaced      TIMESTAMPTZ,
    created_at         TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_preterite_persona_user
    ON preterite_memories (persona_id, user_id);

CREATE TABLE IF NOT EXISTS persona_memories (
    id             UUID             PRIMARY KEY DEFAULT gen_random_uuid(),
    persona_id     UUID             NOT NULL REFERENCES personas (id) ON DELETE CASCADE,
    content        TEXT             NOT NULL,
    memory_type    TEXT             NOT NULL DEFAULT 'opinion',
    source_persona TEXT             NOT NULL DEFAULT '',
    importance     DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    created_at     TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_persona_memories_persona
    ON persona_memories (persona_id, importance DESC);

CREATE TABLE IF NOT EXISTS persona_opinions (
    id               UUID             PRIMARY KEY DEFAULT gen_random_uuid(),
    persona_id       UUID             NOT NULL REFERENCES personas (id) ON DELETE CASCADE,
    topic            TEXT             NOT NULL,
    stance           TEXT             NOT NULL DEFAULT '',
    confidence       DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    expression_count INT              NOT NULL DEFAULT 0,
    last_expressed   TIMESTAMPTZ,
    created_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
    UNIQUE (persona_id, topic)
);
`, embeddingDimensions)
}

// ─────────────────────────────────────────────────────────────────────────────
// Atmosphere DDL — bar-wide entropy, paranoia, narrative arcs, observations
// ─────────────────────────────────────────────────────────────────────────────

const ddlAtmosphere = `
CREATE TABLE IF NOT EXISTS setting_state (
    id            INT              PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    entropy_level DOUBLE PRECISION NOT NULL DEFAULT 0,
    entropy_state TEXT             NOT NULL DEFAULT 'stable',
    updated_at    TIMESTAMPTZ      NOT NULL DEFAULT now()
);

INSERT INTO setting_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS paranoia_state (
    id              INT              PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    awareness_level DOUBLE PRECISION NOT NULL DEFAULT 0.05,
    last_spike      TIMESTAMPTZ,
    spike_count     INT              NOT NULL DEFAULT 0,
    updated_at      TIMESTAMPTZ      NOT NULL DEFAULT now()
);

INSERT INTO paranoia_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS narrative_arcs (
    session_id      UUID             PRIMARY KEY,
    phase           TEXT             NOT NULL DEFAULT 'rising',
    momentum        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    apex_reached_at TIMESTAMPTZ,
    created_at      TIMESTAMPTZ      NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS zone_observations (
    id         BIGSERIAL        PRIMARY KEY,
    session_id UUID,
    proximity  DOUBLE PRECISION NOT NULL,
    intensity  TEXT             NOT NULL,
    triggers   JSONB            NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS they_observations (
    id            BIGSERIAL        PRIMARY KEY,
    session_id    UUID,
    score         DOUBLE PRECISION NOT NULL,
    categories    JSONB            NOT NULL DEFAULT '[]',
    query_excerpt TEXT             NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ      NOT NULL DEFAULT now()
);
`

// ─────────────────────────────────────────────────────────────────────────────
// Temporal DDL — per-persona clocks and the event trail
// ─────────────────────────────────────────────────────────────────────────────

const ddlTemporal = `
CREATE TABLE IF NOT EXISTS persona_temporal_state (
    persona_id       UUID        PRIMARY KEY REFERENCES personas (id) ON DELETE CASCADE,
    last_active      TIMESTAMPTZ NOT NULL DEFAULT now(),
    invocation_count INT         NOT NULL DEFAULT 0,
    last_topic       TEXT        NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS temporal_events (
    id         BIGSERIAL   PRIMARY KEY,
    persona_id UUID        NOT NULL,
    user_id    UUID,
    event_type TEXT        NOT NULL,
    details    JSONB       NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_temporal_events_persona
    ON temporal_events (persona_id, created_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// Operations DDL — drift alerts and the operator log
// ─────────────────────────────────────────────────────────────────────────────

const ddlOperations = `
CREATE TABLE IF NOT EXISTS drift_alerts (
    id          BIGSERIAL        PRIMARY KEY,
    persona_id  UUID             NOT NULL,
    session_id  UUID,
    drift_score DOUBLE PRECISION NOT NULL,
    severity    TEXT             NOT NULL,
    signals     JSONB            NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_drift_alerts_persona
    ON drift_alerts (persona_id, created_at);

CREATE TABLE IF NOT EXISTS operator_logs (
    id          BIGSERIAL   PRIMARY KEY,
    operation   TEXT        NOT NULL,
    session_id  UUID,
    persona_id  UUID,
    user_id     UUID,
    details     JSONB       NOT NULL DEFAULT '{}',
    duration_ms BIGINT      NOT NULL DEFAULT 0,
    success     BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_operator_logs_operation
    ON operator_logs (operation, created_at);

CREATE INDEX IF NOT EXISTS idx_operator_logs_session
    ON operator_logs (session_id);
`

// Migrate creates or ensures all required database tables, indexes, and
// extensions exist, and seeds the two singleton atmosphere rows. It is
// idempotent (CREATE TABLE IF NOT EXISTS / ON CONFLICT DO NOTHING) and safe
// to run repeatedly.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, db Execer, embeddingDimensions int) error {
	statements := []string{
		ddlIdentity,
		ddlMemories(embeddingDimensions),
		ddlAtmosphere,
		ddlTemporal,
		ddlOperations,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}
	return nil
}
