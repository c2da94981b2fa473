package pynchon

import (
	"context"
	"math/rand/v2"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/ofim/contexto/internal/observe"
)

// Zone intensity buckets.
const (
	ZoneSubtle   = "subtle"
	ZoneModerate = "moderate"
	ZoneStrong   = "strong"
	ZoneExtreme  = "extreme"
)

const (
	multiMatchStep   = 0.08
	multiMatchCap    = 1.4
	zonePersistAbove = 0.3
)

type trigger struct {
	name   string
	weight float64
	re     *regexp.Regexp
}

// zoneTriggers are the question families that carry a conversation toward
// the boundary of the bar. Weights order them by how directly the question
// presses on the frame.
var zoneTriggers = []trigger{
	{"reality_simulation", 0.95, regexp.MustCompile(`(?i)\b(simulat(?:ion|ed)|not real|are you real|rendered|a glitch|scripted world)\b`)},
	{"death_boundary", 0.85, regexp.MustCompile(`(?i)\b(death|dying|afterlife|what comes after|the other side)\b`)},
	{"system_edge", 0.80, regexp.MustCompile(`(?i)\b(outside the system|edge of the world|beyond the walls|end of the map|leave the bar)\b`)},
	{"control", 0.70, regexp.MustCompile(`(?i)\b(who controls|predetermined|no free will|puppets?|strings being pulled)\b`)},
	{"dream_logic", 0.60, regexp.MustCompile(`(?i)\b(dream(?:ing|s)?|d[eé]j[aà] vu|unreal|lucid)\b`)},
	{"dissolution", 0.50, regexp.MustCompile(`(?i)\b(entropy|dissolv(?:e|ing)|falling apart|coming undone)\b`)},
}

// ZoneReading is the outcome of zone detection for one query.
type ZoneReading struct {
	Proximity float64
	Intensity string
	Triggers  []string
	Prose     string
}

// DetectZone measures how close a query stands to the zone boundary.
// Proximity is the strongest trigger's weight, raised a step for each
// additional family that fired. Queries below the subtle threshold read
// as empty.
func DetectZone(query string) ZoneReading {
	var (
		names     []string
		maxWeight float64
	)
	for _, t := range zoneTriggers {
		if t.re.MatchString(query) {
			names = append(names, t.name)
			maxWeight = max(maxWeight, t.weight)
		}
	}
	if len(names) == 0 {
		return ZoneReading{}
	}
	boost := min(1+float64(len(names)-1)*multiMatchStep, multiMatchCap)
	proximity := maxWeight * boost
	return ZoneReading{
		Proximity: proximity,
		Intensity: zoneIntensity(proximity),
		Triggers:  names,
	}
}

func zoneIntensity(p float64) string {
	switch {
	case p >= 0.9:
		return ZoneExtreme
	case p >= 0.7:
		return ZoneStrong
	case p >= 0.5:
		return ZoneModerate
	case p >= 0.3:
		return ZoneSubtle
	default:
		return ""
	}
}

// Zone runs boundary detection and keeps the observation log.
type Zone struct {
	store *Store

	mu  sync.Mutex
	rng *rand.Rand
}

// NewZone creates a [Zone] over the given store.
func NewZone(store *Store) *Zone {
	return &Zone{
		store: store,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Observe detects zone proximity for a query, renders the bucket prose,
// and persists an observation for queries past the persistence threshold.
// A lost observation is logged and swallowed: the reading stands either
// way.
func (z *Zone) Observe(ctx context.Context, sessionID uuid.UUID, query string) ZoneReading {
	r := DetectZone(query)
	if r.Intensity == "" {
		return r
	}

	z.mu.Lock()
	r.Prose = pick(zoneProse[r.Intensity], z.rng)
	z.mu.Unlock()

	if r.Proximity > zonePersistAbove {
		obs := ZoneObservation{
			SessionID: sessionID,
			Proximity: r.Proximity,
			Intensity: r.Intensity,
			Triggers:  r.Triggers,
		}
		if err := z.store.InsertZoneObservation(ctx, obs); err != nil {
			observe.Logger(ctx).Warn("zone observation lost", "error", err)
		}
	}
	return r
}
