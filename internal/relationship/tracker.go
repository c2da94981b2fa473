package relationship

// Familiarity gain per session: a base rate scaled by engagement, capped so
// no single session moves the score more than 0.05.
const (
	deltaRate = 0.02
	deltaCap  = 0.05
)

// Outcome describes what one session did to a relationship.
type Outcome struct {
	Delta         float64
	PreviousTrust TrustLevel
	NewTrust      TrustLevel
	TrustChanged  bool
}

// Apply folds a session's quality into the relationship: familiarity moves by
// min(0.02·engagement, 0.05) clamped to [0,1], trust is reclassified, and the
// interaction count increases by exactly one. Outcome.Delta is the movement
// actually applied after clamping. The caller persists r and emits the
// trust-change log when Outcome.TrustChanged.
func Apply(r *Relationship, q Quality) Outcome {
	out := Outcome{PreviousTrust: r.TrustLevel}

	next := min(max(r.FamiliarityScore+min(deltaRate*q.Engagement, deltaCap), 0), 1)
	out.Delta = next - r.FamiliarityScore
	r.FamiliarityScore = next
	r.TrustLevel = Classify(r.FamiliarityScore)
	r.InteractionCount++

	out.NewTrust = r.TrustLevel
	out.TrustChanged = out.NewTrust != out.PreviousTrust
	return out
}
