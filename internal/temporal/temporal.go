// Package temporal gives personas a sense of elapsed time. Each persona
// carries a temporal state row (last invocation, count, last topic); the
// reflection layer turns the gap since last_active into a line of prose,
// and session completion touches the state.
package temporal

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Gap classes, ordered by elapsed time since the persona was last active.
// Moments renders no reflection: the persona never left.
const (
	GapMoments = "moments"
	GapHours   = "hours"
	GapDays    = "days"
	GapWeeks   = "weeks"
	GapLong    = "long"
)

//go:embed reflections.yaml
var reflectionsYAML []byte

var reflections = mustLoadReflections(reflectionsYAML)

type reflectionPool struct {
	Classes   map[string][]string `yaml:"classes"`
	TopicEcho string              `yaml:"topic_echo"`
}

func mustLoadReflections(data []byte) reflectionPool {
	var doc reflectionPool
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("temporal: parse reflections.yaml: %v", err))
	}
	return doc
}

// ClassifyGap maps an elapsed duration to its gap class.
func ClassifyGap(gap time.Duration) string {
	switch {
	case gap < time.Hour:
		return GapMoments
	case gap < 24*time.Hour:
		return GapHours
	case gap < 7*24*time.Hour:
		return GapDays
	case gap < 30*24*time.Hour:
		return GapWeeks
	default:
		return GapLong
	}
}

// describeGap renders a duration as the phrase substituted for {gap}.
func describeGap(gap time.Duration) string {
	switch {
	case gap < 2*time.Hour:
		return "an hour or so"
	case gap < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(gap.Hours()))
	case gap < 48*time.Hour:
		return "a day"
	case gap < 7*24*time.Hour:
		return fmt.Sprintf("%d days", int(gap.Hours()/24))
	case gap < 14*24*time.Hour:
		return "a week"
	case gap < 30*24*time.Hour:
		return fmt.Sprintf("%d weeks", int(gap.Hours()/(24*7)))
	case gap < 60*24*time.Hour:
		return "a month"
	default:
		return fmt.Sprintf("%d months", int(gap.Hours()/(24*30)))
	}
}

// Awareness renders the temporal reflection layer.
type Awareness struct {
	store *Store
	now   func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAwareness creates an [Awareness] over the given store.
func NewAwareness(store *Store) *Awareness {
	return &Awareness{
		store: store,
		now:   time.Now,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Reflect renders the temporal layer for a persona: a line about how long
// it has been, plus the hanging topic when one was recorded. Personas with
// no prior state, or active within the hour, reflect nothing.
func (a *Awareness) Reflect(ctx context.Context, personaID uuid.UUID) (string, error) {
	st, err := a.store.Get(ctx, personaID)
	if err != nil {
		return "", err
	}
	if st == nil {
		return "", nil
	}
	gap := a.now().Sub(st.LastActive)
	class := ClassifyGap(gap)
	if class == GapMoments {
		return "", nil
	}

	a.mu.Lock()
	tpl := pickLine(reflections.Classes[class], a.rng)
	a.mu.Unlock()
	if tpl == "" {
		return "", nil
	}

	line := strings.ReplaceAll(tpl, "{gap}", describeGap(gap))
	if st.LastTopic != "" {
		line += " " + strings.ReplaceAll(reflections.TopicEcho, "{topic}", st.LastTopic)
	}
	return line, nil
}

// Touch records a persona invocation at session end, best-effort: the state
// row advances and a session_end event lands on the trail. An event insert
// failure does not undo the touch.
func (a *Awareness) Touch(ctx context.Context, personaID, userID uuid.UUID, topic string) error {
	if err := a.store.Touch(ctx, personaID, topic); err != nil {
		return err
	}
	return a.store.InsertEvent(ctx, Event{
		PersonaID: personaID,
		UserID:    userID,
		EventType: "session_end",
		Details:   map[string]any{"topic": topic},
	})
}

func pickLine(lines []string, rng *rand.Rand) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[rng.IntN(len(lines))]
}
