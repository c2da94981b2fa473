package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func preteriteRow(id uuid.UUID, personaID, userID uuid.UUID, content string) []any {
	return []any{id, uuid.New(), personaID, userID, ReasonOvershadowed, 0.2, 0, nil, fixedTime, content}
}

func TestSurfacer_RollFails(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			t.Error("store must not be queried when the roll fails")
			return &mockRows{}, nil
		},
	}
	s := NewSurfacer(NewStore(db), nil, nil)
	s.roll = func() float64 { return 0.99 }

	got, err := s.Surface(context.Background(), uuid.New(), uuid.New(), 1)
	if err != nil || got != "" {
		t.Fatalf("Surface = (%q, %v), want empty", got, err)
	}
}

func TestSurfacer_MultiplierScalesProbability(t *testing.T) {
	t.Parallel()

	// A roll of 0.2 fails at the base probability but passes once the
	// narrative arc doubles it.
	queried := false
	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			queried = true
			return &mockRows{}, nil
		},
	}
	s := NewSurfacer(NewStore(db), nil, nil)
	s.roll = func() float64 { return 0.2 }

	if _, err := s.Surface(context.Background(), uuid.New(), uuid.New(), 1); err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if queried {
		t.Error("base probability should not admit a 0.2 roll")
	}

	if _, err := s.Surface(context.Background(), uuid.New(), uuid.New(), 2); err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if !queried {
		t.Error("doubled probability should admit a 0.2 roll")
	}
}

func TestSurfacer_SurfacesCorruptedBlocks(t *testing.T) {
	t.Parallel()

	personaID := uuid.New()
	userID := uuid.New()
	id1, id2 := uuid.New(), uuid.New()

	marked := make(chan []any, 1)
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "ORDER BY random()") {
				t.Errorf("unexpected query:\n%s", sql)
			}
			return &mockRows{data: [][]any{
				preteriteRow(id1, personaID, userID, "the rain fell on the awning all night"),
				preteriteRow(id2, personaID, userID, "someone paid for the last round"),
			}}, nil
		},
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "surface_count = surface_count + 1") {
				t.Errorf("unexpected exec:\n%s", sql)
			}
			marked <- args
			return pgconn.NewCommandTag("UPDATE 2"), nil
		},
	}

	s := NewSurfacer(NewStore(db), nil, nil)
	s.roll = func() float64 { return 0 }

	got, err := s.Surface(context.Background(), personaID, userID, 1)
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d blocks, want 2:\n%s", len(lines), got)
	}
	for i, line := range lines {
		if !strings.Contains(line, "…") {
			t.Errorf("block %d missing corruption ellipsis: %q", i, line)
		}
		framed := false
		for _, frame := range surfaceFrames {
			if strings.HasPrefix(line, strings.TrimSuffix(frame, "%s")) {
				framed = true
				break
			}
		}
		if !framed {
			t.Errorf("block %d not introduced by a surfacing frame: %q", i, line)
		}
	}

	select {
	case args := <-marked:
		ids, ok := args[0].([]uuid.UUID)
		if !ok || len(ids) != 2 {
			t.Errorf("marked ids = %v", args[0])
		}
	case <-time.After(2 * time.Second):
		t.Error("surface bump never ran")
	}
}

func TestSurfacer_NothingConsigned(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			t.Error("no bump expected when nothing surfaces")
			return pgconn.CommandTag{}, nil
		},
	}
	s := NewSurfacer(NewStore(db), nil, nil)
	s.roll = func() float64 { return 0 }

	got, err := s.Surface(context.Background(), uuid.New(), uuid.New(), 1)
	if err != nil || got != "" {
		t.Fatalf("Surface = (%q, %v), want empty", got, err)
	}
}

func TestSurfacer_StoreError(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return nil, errors.New("down")
		},
	}
	s := NewSurfacer(NewStore(db), nil, nil)
	s.roll = func() float64 { return 0 }

	_, err := s.Surface(context.Background(), uuid.New(), uuid.New(), 1)
	if err == nil || !strings.Contains(err.Error(), "memory: random preterite") {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
}

func TestCorrupt_Empty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 1))
	if got := corrupt("", rng); got != "…" {
		t.Errorf("corrupt(empty) = %q, want single ellipsis", got)
	}
}

func TestCorrupt_TruncatesLongMemories(t *testing.T) {
	t.Parallel()

	words := make([]string, 20)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	content := strings.Join(words, " ")

	rng := rand.New(rand.NewPCG(7, 7))
	got := corrupt(content, rng)

	if !strings.HasPrefix(got, "…") {
		t.Errorf("missing ellipsis prefix: %q", got)
	}
	if !strings.HasSuffix(got, "…the memory corrupts at the edges…") {
		t.Errorf("missing corruption suffix: %q", got)
	}
	for _, lost := range words[15:] {
		if strings.Contains(got, lost) {
			t.Errorf("word beyond the cutoff survived: %q in %q", lost, got)
		}
	}
}

func TestCorrupt_ShortMemoriesKeepPlainEllipses(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 3))
	got := corrupt("five words and no more", rng)

	if !strings.HasPrefix(got, "…") || !strings.HasSuffix(got, "…") {
		t.Errorf("missing edge ellipses: %q", got)
	}
	if strings.Contains(got, "corrupts at the edges") {
		t.Errorf("short memory must not carry the truncation suffix: %q", got)
	}
}

func TestCorrupt_EventuallyRedacts(t *testing.T) {
	t.Parallel()

	// Over many seeds the 30% per-word redaction chance is effectively
	// certain to fire at least once.
	content := "one two three four five six seven eight nine ten"
	redacted := false
	uncertain := false
	for seed := range uint64(50) {
		got := corrupt(content, rand.New(rand.NewPCG(seed, seed)))
		if strings.Contains(got, "[...]") {
			redacted = true
		}
		for _, marker := range uncertaintyMarkers {
			if strings.Contains(got, marker) {
				uncertain = true
			}
		}
	}
	if !redacted {
		t.Error("no seed produced a redaction")
	}
	if !uncertain {
		t.Error("no seed produced an uncertainty marker")
	}
}
