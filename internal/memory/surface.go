package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
)

// Surfacing tuning. The base probability is scaled by the narrative arc's
// preterite multiplier before the roll.
const (
	surfaceProbability = 0.15
	surfaceLimit       = 2
	corruptMaxWords    = 15

	redactChance      = 0.30
	uncertaintyChance = 0.15
	swapChance        = 0.20
)

// uncertaintyMarkers replace words the memory is no longer sure of.
var uncertaintyMarkers = []string{
	"perhaps", "or was it", "possibly", "something like", "if memory serves",
}

// surfaceFrames introduce a surfaced preterite memory.
var surfaceFrames = []string{
	"From what was passed over: %s",
	"A memory that was never elected returns: %s",
	"The preterite stirs. Something almost remembered: %s",
	"What was discarded does not stay lost: %s",
	"Of everything not kept, this surfaces: %s",
}

// Surfacer occasionally lets passed-over memories back into a prompt, in
// corrupted form. Safe for concurrent use.
type Surfacer struct {
	store   *Store
	oplog   *oplog.Logger
	metrics *observe.Metrics

	mu   sync.Mutex
	rng  *rand.Rand
	roll func() float64
}

// NewSurfacer creates a [Surfacer]. logger and metrics may be nil.
func NewSurfacer(store *Store, logger *oplog.Logger, metrics *observe.Metrics) *Surfacer {
	s := &Surfacer{
		store:   store,
		oplog:   logger,
		metrics: metrics,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	s.roll = func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.rng.Float64()
	}
	return s
}

// Surface rolls the preterite dice. With probability 0.15 times the given
// multiplier, up to two passed-over memories for the persona/user pair
// return as a framed, corrupted block. Returns "" when the roll fails or
// nothing has been consigned yet. The surface-count bump is fire-and-forget.
func (s *Surfacer) Surface(ctx context.Context, personaID, userID uuid.UUID, multiplier float64) (string, error) {
	if multiplier <= 0 {
		multiplier = 1
	}
	if s.roll() >= surfaceProbability*multiplier {
		return "", nil
	}

	rows, err := s.store.RandomPreterite(ctx, personaID, userID, surfaceLimit)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	blocks := make([]string, 0, len(rows))
	s.mu.Lock()
	for _, p := range rows {
		frame := surfaceFrames[s.rng.IntN(len(surfaceFrames))]
		blocks = append(blocks, fmt.Sprintf(frame, corrupt(p.Content, s.rng)))
		ids = append(ids, p.ID)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PreteriteSurfacings.Add(ctx, int64(len(rows)))
	}
	if s.oplog != nil {
		s.oplog.Log(ctx, oplog.Entry{
			Operation: oplog.OpPreteriteSurface,
			PersonaID: personaID,
			UserID:    userID,
			Details:   map[string]any{"count": len(rows)},
			Success:   true,
		})
	}

	go func() {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.store.MarkSurfaced(bctx, ids); err != nil {
			observe.Logger(bctx).Warn("preterite surface bump failed", "error", err)
		}
	}()

	return strings.Join(blocks, "\n"), nil
}

// corrupt degrades a memory's text: ellipses at the edges, words redacted
// or replaced with uncertainty markers, the occasional pair swapped, and
// anything past fifteen words lost outright.
func corrupt(content string, rng *rand.Rand) string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return "…"
	}

	truncated := false
	if len(words) > corruptMaxWords {
		words = words[:corruptMaxWords]
		truncated = true
	}

	for i := range words {
		switch roll := rng.Float64(); {
		case roll < redactChance:
			words[i] = "[...]"
		case roll < redactChance+uncertaintyChance:
			words[i] = uncertaintyMarkers[rng.IntN(len(uncertaintyMarkers))]
		}
	}
	if len(words) > 1 && rng.Float64() < swapChance {
		i := rng.IntN(len(words) - 1)
		words[i], words[i+1] = words[i+1], words[i]
	}

	text := strings.Join(words, " ")
	if truncated {
		return "…" + text + " …the memory corrupts at the edges…"
	}
	return "…" + text + "…"
}
