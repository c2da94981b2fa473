package pynchon

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestClassifyAwareness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a    float64
		want string
	}{
		{0.05, ParanoiaOblivious},
		{0.19, ParanoiaOblivious},
		{0.2, ParanoiaUneasy},
		{0.39, ParanoiaUneasy},
		{0.4, ParanoiaSuspicious},
		{0.59, ParanoiaSuspicious},
		{0.6, ParanoiaParanoid},
		{0.79, ParanoiaParanoid},
		{0.8, ParanoiaAwakened},
		{1, ParanoiaAwakened},
	}
	for _, tt := range tests {
		if got := ClassifyAwareness(tt.a); got != tt.want {
			t.Errorf("ClassifyAwareness(%v) = %q, want %q", tt.a, got, tt.want)
		}
	}
}

func TestScoreThey(t *testing.T) {
	t.Parallel()

	t.Run("quiet query scores zero", func(t *testing.T) {
		score, cats := ScoreThey("Tell me about the river.")
		if score != 0 || cats != nil {
			t.Errorf("ScoreThey() = %v, %v, want 0, nil", score, cats)
		}
	})

	t.Run("direct question scores its weight", func(t *testing.T) {
		score, cats := ScoreThey("They know what we said here.")
		if math.Abs(score-0.90) > 1e-9 {
			t.Errorf("score = %v, want 0.90", score)
		}
		if len(cats) != 1 || cats[0] != "direct" {
			t.Errorf("categories = %v, want [direct]", cats)
		}
	})

	t.Run("score is capped at one", func(t *testing.T) {
		score, cats := ScoreThey("Who are they? The surveillance, the conspiracy, the government — it's all connected, no coincidence.")
		if score != 1 {
			t.Errorf("score = %v, want cap at 1", score)
		}
		if len(cats) < 3 {
			t.Errorf("categories = %v, want several families", cats)
		}
	})
}

func TestThey_ReadDecaysToFloor(t *testing.T) {
	t.Parallel()

	// A week without attention decays well past the floor; the floor holds.
	db := paranoiaDB(0.30, 2, fixedNow.Add(-7*24*time.Hour))
	they := NewThey(NewStore(db))
	they.now = func() time.Time { return fixedNow }

	st, err := they.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if st.Awareness != awarenessFloor {
		t.Errorf("awareness = %v, want the floor %v — They never fully stop watching", st.Awareness, awarenessFloor)
	}
	if len(db.execSQL) != 1 {
		t.Errorf("Read() issued %d writes, want 1 persisting the decay", len(db.execSQL))
	}
}

func TestThey_ObserveSpikes(t *testing.T) {
	t.Parallel()

	db := paranoiaDB(0.10, 0, fixedNow)
	they := NewThey(NewStore(db))
	they.now = func() time.Time { return fixedNow }

	st, err := they.Observe(context.Background(), uuid.Nil, "They know everything, don't they?")
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	// Gain = 0.90 · 0.5 = 0.45 ≥ spike threshold.
	if math.Abs(st.Awareness-0.55) > 1e-9 {
		t.Errorf("awareness = %v, want 0.55", st.Awareness)
	}
	if st.SpikeCount != 1 {
		t.Errorf("spike count = %d, want 1", st.SpikeCount)
	}
	if st.LastSpike == nil {
		t.Error("last spike not recorded")
	}

	// One write for the state, one for the observation row.
	if len(db.execSQL) != 2 {
		t.Fatalf("Observe() issued %d statements, want 2", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[1], "they_observations") {
		t.Errorf("second statement = %q, want they_observations insert", db.execSQL[1])
	}
	if got := db.execArgs[0][1]; got != true {
		t.Errorf("spiked arg = %v, want true", got)
	}
}

func TestThey_ObserveQuietQuery(t *testing.T) {
	t.Parallel()

	db := paranoiaDB(0.10, 0, fixedNow)
	they := NewThey(NewStore(db))
	they.now = func() time.Time { return fixedNow }

	st, err := they.Observe(context.Background(), uuid.Nil, "What beer do you have?")
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if st.Awareness != 0.10 {
		t.Errorf("awareness = %v, want unchanged 0.10", st.Awareness)
	}
	if len(db.execSQL) != 0 {
		t.Errorf("issued %d statements, want 0", len(db.execSQL))
	}
}

func TestThey_Describe(t *testing.T) {
	t.Parallel()

	they := NewThey(NewStore(&mockDB{}))
	if got := they.Describe(ParanoiaState{Awareness: 0.1}); got != "" {
		t.Errorf("Describe(oblivious) = %q, want empty", got)
	}
	if got := they.Describe(ParanoiaState{Awareness: 0.97}); !strings.Contains(got, "They") && !strings.Contains(got, "awareness") {
		t.Errorf("Describe(awakened_full) = %q, want full-awakening prose", got)
	}
}
