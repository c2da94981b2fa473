package temporal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	execSQL  []string
	execArgs [][]any
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, args)
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// stateDB returns a mock whose QueryRow scans one temporal state row.
func stateDB(personaID uuid.UUID, lastActive time.Time, count int, topic string) *mockDB {
	return &mockDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*uuid.UUID) = personaID
				*dest[1].(*time.Time) = lastActive
				*dest[2].(*int) = count
				*dest[3].(*string) = topic
				return nil
			}}
		},
	}
}

var fixedNow = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Gap classification
// ---------------------------------------------------------------------------

func TestClassifyGap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		gap  time.Duration
		want string
	}{
		{30 * time.Minute, GapMoments},
		{59 * time.Minute, GapMoments},
		{time.Hour, GapHours},
		{23 * time.Hour, GapHours},
		{24 * time.Hour, GapDays},
		{6 * 24 * time.Hour, GapDays},
		{7 * 24 * time.Hour, GapWeeks},
		{29 * 24 * time.Hour, GapWeeks},
		{30 * 24 * time.Hour, GapLong},
		{365 * 24 * time.Hour, GapLong},
	}
	for _, tt := range tests {
		if got := ClassifyGap(tt.gap); got != tt.want {
			t.Errorf("ClassifyGap(%v) = %q, want %q", tt.gap, got, tt.want)
		}
	}
}

func TestReflectionPools(t *testing.T) {
	t.Parallel()

	for _, class := range []string{GapHours, GapDays, GapWeeks, GapLong} {
		lines := reflections.Classes[class]
		if len(lines) == 0 {
			t.Errorf("no reflection templates for class %q", class)
			continue
		}
		for _, line := range lines {
			if !strings.Contains(line, "{gap}") {
				t.Errorf("class %q template missing {gap}: %q", class, line)
			}
		}
	}
	if !strings.Contains(reflections.TopicEcho, "{topic}") {
		t.Errorf("topic echo missing {topic}: %q", reflections.TopicEcho)
	}
}

// ---------------------------------------------------------------------------
// Reflect
// ---------------------------------------------------------------------------

func TestAwareness_Reflect(t *testing.T) {
	t.Parallel()
	personaID := uuid.New()

	t.Run("no prior state reflects nothing", func(t *testing.T) {
		a := NewAwareness(NewStore(&mockDB{}))
		got, err := a.Reflect(context.Background(), personaID)
		if err != nil {
			t.Fatalf("Reflect() error = %v", err)
		}
		if got != "" {
			t.Errorf("Reflect() = %q, want empty", got)
		}
	})

	t.Run("recent activity reflects nothing", func(t *testing.T) {
		a := NewAwareness(NewStore(stateDB(personaID, fixedNow.Add(-10*time.Minute), 3, "")))
		a.now = func() time.Time { return fixedNow }
		got, err := a.Reflect(context.Background(), personaID)
		if err != nil {
			t.Fatalf("Reflect() error = %v", err)
		}
		if got != "" {
			t.Errorf("Reflect() = %q, want empty for a moments gap", got)
		}
	})

	t.Run("day gap renders a rendered template", func(t *testing.T) {
		a := NewAwareness(NewStore(stateDB(personaID, fixedNow.Add(-3*24*time.Hour), 3, "")))
		a.now = func() time.Time { return fixedNow }
		got, err := a.Reflect(context.Background(), personaID)
		if err != nil {
			t.Fatalf("Reflect() error = %v", err)
		}
		if got == "" {
			t.Fatal("Reflect() empty, want a days reflection")
		}
		if strings.Contains(got, "{gap}") {
			t.Errorf("Reflect() left {gap} unrendered: %q", got)
		}
		if !strings.Contains(got, "3 days") {
			t.Errorf("Reflect() = %q, want gap phrase %q", got, "3 days")
		}
	})

	t.Run("last topic is echoed", func(t *testing.T) {
		a := NewAwareness(NewStore(stateDB(personaID, fixedNow.Add(-2*24*time.Hour), 3, "the nature of rivers")))
		a.now = func() time.Time { return fixedNow }
		got, err := a.Reflect(context.Background(), personaID)
		if err != nil {
			t.Fatalf("Reflect() error = %v", err)
		}
		if !strings.Contains(got, "the nature of rivers") {
			t.Errorf("Reflect() = %q, want topic echo", got)
		}
		if strings.Contains(got, "{topic}") {
			t.Errorf("Reflect() left {topic} unrendered: %q", got)
		}
	})

	t.Run("store error propagates", func(t *testing.T) {
		dbErr := errors.New("connection refused")
		db := &mockDB{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error { return dbErr }}
		}}
		a := NewAwareness(NewStore(db))
		if _, err := a.Reflect(context.Background(), personaID); !errors.Is(err, dbErr) {
			t.Errorf("Reflect() error = %v, want wrapped %v", err, dbErr)
		}
	})
}

// ---------------------------------------------------------------------------
// Touch
// ---------------------------------------------------------------------------

func TestAwareness_Touch(t *testing.T) {
	t.Parallel()
	personaID, userID := uuid.New(), uuid.New()

	db := &mockDB{}
	a := NewAwareness(NewStore(db))
	if err := a.Touch(context.Background(), personaID, userID, "entropy"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	if len(db.execSQL) != 2 {
		t.Fatalf("Touch() issued %d statements, want 2 (touch + event)", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[0], "persona_temporal_state") {
		t.Errorf("first statement = %q, want persona_temporal_state upsert", db.execSQL[0])
	}
	if !strings.Contains(db.execSQL[0], "ON CONFLICT (persona_id)") {
		t.Errorf("touch statement missing upsert clause: %q", db.execSQL[0])
	}
	if !strings.Contains(db.execSQL[1], "temporal_events") {
		t.Errorf("second statement = %q, want temporal_events insert", db.execSQL[1])
	}
	if got := db.execArgs[0][1]; got != "entropy" {
		t.Errorf("touch topic arg = %v, want entropy", got)
	}
}

func TestStore_TouchError(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("deadlock detected")
	db := &mockDB{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, dbErr
	}}
	s := NewStore(db)
	if err := s.Touch(context.Background(), uuid.New(), ""); !errors.Is(err, dbErr) {
		t.Errorf("Touch() error = %v, want wrapped %v", err, dbErr)
	}
}
