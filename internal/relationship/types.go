// Package relationship tracks the familiarity state machine between a user
// and a persona.
//
// A relationship row is lazily materialized as stranger/0 on first lookup and
// mutates only at session completion: engagement-weighted familiarity gain,
// trust reclassification, interaction count, and whatever the session taught
// the persona about the user (summary, preferences, memorable exchanges).
package relationship

import (
	"time"

	"github.com/google/uuid"
)

// TrustLevel is the discrete classification of a familiarity score.
type TrustLevel string

const (
	TrustStranger     TrustLevel = "stranger"
	TrustAcquaintance TrustLevel = "acquaintance"
	TrustFamiliar     TrustLevel = "familiar"
	TrustConfidant    TrustLevel = "confidant"
)

// Classify maps a familiarity score onto its trust level. The thresholds are
// 0.2 / 0.5 / 0.8; everything below 0.2 is a stranger.
func Classify(score float64) TrustLevel {
	switch {
	case score >= 0.8:
		return TrustConfidant
	case score >= 0.5:
		return TrustFamiliar
	case score >= 0.2:
		return TrustAcquaintance
	default:
		return TrustStranger
	}
}

// exchangeLimit bounds memorable_exchanges; older entries roll off.
const exchangeLimit = 10

// Relationship is one user-persona row. TrustLevel is always the
// classification of FamiliarityScore.
type Relationship struct {
	UserID             uuid.UUID
	PersonaID          uuid.UUID
	FamiliarityScore   float64
	TrustLevel         TrustLevel
	InteractionCount   int
	UserSummary        string
	UserPreferences    map[string]string
	MemorableExchanges []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RememberExchange appends a memorable exchange summary, keeping only the
// most recent [exchangeLimit].
func (r *Relationship) RememberExchange(summary string) {
	r.MemorableExchanges = append(r.MemorableExchanges, summary)
	if len(r.MemorableExchanges) > exchangeLimit {
		r.MemorableExchanges = r.MemorableExchanges[len(r.MemorableExchanges)-exchangeLimit:]
	}
}

// SetPreference records the user's stance on a topic, replacing any earlier
// stance.
func (r *Relationship) SetPreference(topic, stance string) {
	if r.UserPreferences == nil {
		r.UserPreferences = make(map[string]string)
	}
	r.UserPreferences[topic] = stance
}
