// Package persona holds the persona registry: identity rows, learned traits,
// per-persona context templates, and the static relation lines between the
// regulars of O Fim.
//
// A persona is immutable in principle. Its soul lives in a markdown file on
// disk; the row carries the file's path, hash, and version so the validator
// can detect tampering. The single mutable part is learned_traits, which
// accumulates bounded counterforce adjustments over time.
package persona

import (
	"time"

	"github.com/google/uuid"
)

// Bounds on learned counterforce drift. A single session can nudge alignment
// by at most AdjustmentLimit; the lifetime total never leaves ±TotalLimit;
// only the last HistoryLimit adjustments are kept.
const (
	AdjustmentLimit = 0.1
	TotalLimit      = 0.5
	HistoryLimit    = 10
)

// CounterforceAdjustment is one recorded nudge to a persona's alignment.
type CounterforceAdjustment struct {
	Delta  float64   `json:"delta"`
	Reason string    `json:"reason"`
	At     time.Time `json:"ts"`
}

// LearnedTraits is the mutable part of a persona, stored as JSONB.
type LearnedTraits struct {
	CounterforceDelta   float64                  `json:"counterforce_delta"`
	CounterforceHistory []CounterforceAdjustment `json:"counterforce_history,omitempty"`
}

// Adjust applies a counterforce nudge, clamping the single adjustment to
// ±[AdjustmentLimit] and the accumulated delta to ±[TotalLimit], and appends
// it to the history (bounded to [HistoryLimit] entries). It returns the delta
// actually applied after both clamps.
func (t *LearnedTraits) Adjust(delta float64, reason string, at time.Time) float64 {
	delta = min(max(delta, -AdjustmentLimit), AdjustmentLimit)

	next := min(max(t.CounterforceDelta+delta, -TotalLimit), TotalLimit)
	applied := next - t.CounterforceDelta
	t.CounterforceDelta = next

	t.CounterforceHistory = append(t.CounterforceHistory, CounterforceAdjustment{
		Delta:  applied,
		Reason: reason,
		At:     at,
	})
	if len(t.CounterforceHistory) > HistoryLimit {
		t.CounterforceHistory = t.CounterforceHistory[len(t.CounterforceHistory)-HistoryLimit:]
	}
	return applied
}

// Persona is one row of the personas table.
type Persona struct {
	ID                uuid.UUID
	Slug              string
	Name              string
	SoulPath          string
	SoulHash          string
	SoulVersion       int
	LearnedTraits     LearnedTraits
	DriftCheckEnabled bool
	DriftThreshold    float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Template is one row of the context_templates table: operator-provided prose
// that overrides a built-in for one persona. Kind is "setting", "hints", or a
// council frame name.
type Template struct {
	ID        uuid.UUID
	PersonaID uuid.UUID
	Kind      string
	Content   string
	Active    bool
	CreatedAt time.Time
}
