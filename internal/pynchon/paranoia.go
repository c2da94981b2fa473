package pynchon

import (
	"context"
	"math/rand/v2"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ofim/contexto/internal/observe"
)

// They-awareness state names.
const (
	ParanoiaOblivious  = "oblivious"
	ParanoiaUneasy     = "uneasy"
	ParanoiaSuspicious = "suspicious"
	ParanoiaParanoid   = "paranoid"
	ParanoiaAwakened   = "awakened"
)

const (
	awarenessFloor        = 0.05
	awarenessDecayPerHour = 0.02
	awarenessGain         = 0.5
	spikeThreshold        = 0.1
	fullAwakening         = 0.95
	theyExcerptLimit      = 80
)

// theyTriggers are the question families They take an interest in.
var theyTriggers = []trigger{
	{"direct", 0.90, regexp.MustCompile(`(?i)\b(who are they|they are listening|they know|are they watching)\b`)},
	{"surveillance", 0.80, regexp.MustCompile(`(?i)\b(watching|watched|surveillance|cameras?|tracking|tracked|being followed)\b`)},
	{"conspiracy", 0.70, regexp.MustCompile(`(?i)\b(they control|conspiracy|cover.?up|powers that be|hidden hand)\b`)},
	{"pattern", 0.50, regexp.MustCompile(`(?i)\b(no coincidence|too convenient|all connected|the pattern|adds up too well)\b`)},
	{"institution", 0.40, regexp.MustCompile(`(?i)\b(the government|the agency|the corporation|the cartel|the bureau)\b`)},
}

// ClassifyAwareness maps an awareness level to its state name.
func ClassifyAwareness(a float64) string {
	switch {
	case a < 0.2:
		return ParanoiaOblivious
	case a < 0.4:
		return ParanoiaUneasy
	case a < 0.6:
		return ParanoiaSuspicious
	case a < 0.8:
		return ParanoiaParanoid
	default:
		return ParanoiaAwakened
	}
}

// ScoreThey measures how strongly a query feeds They-awareness, using the
// same multi-match boost as zone proximity but capped at 1 so the
// awareness arithmetic stays in range.
func ScoreThey(query string) (float64, []string) {
	var (
		names     []string
		maxWeight float64
	)
	for _, t := range theyTriggers {
		if t.re.MatchString(query) {
			names = append(names, t.name)
			maxWeight = max(maxWeight, t.weight)
		}
	}
	if len(names) == 0 {
		return 0, nil
	}
	boost := min(1+float64(len(names)-1)*multiMatchStep, multiMatchCap)
	return min(maxWeight*boost, 1), names
}

// They tracks the global awareness singleton. Awareness decays with wall
// time down to a hard floor; They never fully stop watching.
type They struct {
	store *Store

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewThey creates a [They] over the given store.
func NewThey(store *Store) *They {
	return &They{
		store: store,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:   time.Now,
	}
}

// Read returns current awareness after applying time decay since the last
// write, holding the hard floor. The decayed value is persisted.
func (t *They) Read(ctx context.Context) (ParanoiaState, error) {
	st, err := t.store.GetParanoia(ctx)
	if err != nil {
		return ParanoiaState{}, err
	}
	if hours := t.now().Sub(st.UpdatedAt).Hours(); hours > 0 {
		decayed := max(st.Awareness-hours*awarenessDecayPerHour, awarenessFloor)
		if decayed < st.Awareness {
			st.Awareness = decayed
			if err := t.store.UpdateParanoia(ctx, decayed, false); err != nil {
				return ParanoiaState{}, err
			}
		}
	}
	return st, nil
}

// Observe folds one query into the awareness level. Queries that do not
// register leave the state untouched beyond decay. Any single gain of
// spikeThreshold or more counts as a spike.
func (t *They) Observe(ctx context.Context, sessionID uuid.UUID, query string) (ParanoiaState, error) {
	st, err := t.Read(ctx)
	if err != nil {
		return ParanoiaState{}, err
	}
	score, categories := ScoreThey(query)
	if score == 0 {
		return st, nil
	}

	next := min(st.Awareness+score*awarenessGain, 1)
	delta := next - st.Awareness
	spiked := delta >= spikeThreshold
	if err := t.store.UpdateParanoia(ctx, next, spiked); err != nil {
		return ParanoiaState{}, err
	}
	st.Awareness = next
	if spiked {
		st.SpikeCount++
		now := t.now()
		st.LastSpike = &now
	}

	obs := TheyObservation{
		SessionID:    sessionID,
		Score:        score,
		Categories:   categories,
		QueryExcerpt: excerpt(query, theyExcerptLimit),
	}
	if err := t.store.InsertTheyObservation(ctx, obs); err != nil {
		observe.Logger(ctx).Warn("they observation lost", "error", err)
	}
	return st, nil
}

// Describe renders the They layer prose for an awareness level. Oblivious
// renders nothing; past full awakening the prose changes register.
func (t *They) Describe(st ParanoiaState) string {
	bucket := ClassifyAwareness(st.Awareness)
	if st.Awareness >= fullAwakening {
		bucket = "awakened_full"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return pick(paranoiaProse[bucket], t.rng)
}

// excerpt bounds a query to limit runes for the observation log.
func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
