package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// mockExecer implements Execer and records every statement it receives.
type mockExecer struct {
	statements []string
	err        error
}

func (m *mockExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.statements = append(m.statements, sql)
	return pgconn.CommandTag{}, m.err
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	t.Run("creates every table", func(t *testing.T) {
		t.Parallel()

		db := &mockExecer{}
		if err := Migrate(context.Background(), db, 1536); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}

		all := strings.Join(db.statements, "\n")
		tables := []string{
			"personas",
			"relationships",
			"context_templates",
			"memories",
			"preterite_memories",
			"persona_memories",
			"persona_opinions",
			"setting_state",
			"paranoia_state",
			"narrative_arcs",
			"zone_observations",
			"they_observations",
			"persona_temporal_state",
			"temporal_events",
			"drift_alerts",
			"operator_logs",
		}
		for _, table := range tables {
			if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table) {
				t.Errorf("Migrate() DDL missing table %q", table)
			}
		}
	})

	t.Run("substitutes embedding dimension", func(t *testing.T) {
		t.Parallel()

		db := &mockExecer{}
		if err := Migrate(context.Background(), db, 768); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}

		all := strings.Join(db.statements, "\n")
		if !strings.Contains(all, "vector(768)") {
			t.Error("Migrate() DDL should declare vector(768)")
		}
		if strings.Contains(all, "vector(1536)") {
			t.Error("Migrate() DDL should not contain the default dimension when overridden")
		}
	})

	t.Run("seeds singleton rows", func(t *testing.T) {
		t.Parallel()

		db := &mockExecer{}
		if err := Migrate(context.Background(), db, 1536); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}

		all := strings.Join(db.statements, "\n")
		for _, table := range []string{"setting_state", "paranoia_state"} {
			want := "INSERT INTO " + table + " (id) VALUES (1) ON CONFLICT (id) DO NOTHING"
			if !strings.Contains(all, want) {
				t.Errorf("Migrate() DDL missing singleton seed for %q", table)
			}
		}
	})

	t.Run("installs pgvector", func(t *testing.T) {
		t.Parallel()

		db := &mockExecer{}
		if err := Migrate(context.Background(), db, 1536); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}

		all := strings.Join(db.statements, "\n")
		if !strings.Contains(all, "CREATE EXTENSION IF NOT EXISTS vector") {
			t.Error("Migrate() DDL should install the vector extension")
		}
		if !strings.Contains(all, "USING hnsw (embedding vector_cosine_ops)") {
			t.Error("Migrate() DDL should create the HNSW index on memories.embedding")
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		db := &mockExecer{err: errors.New("connection refused")}
		err := Migrate(context.Background(), db, 1536)
		if err == nil {
			t.Fatal("Migrate() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "db: migrate:") {
			t.Errorf("error = %q, want prefix 'db: migrate:'", err.Error())
		}
	})
}
