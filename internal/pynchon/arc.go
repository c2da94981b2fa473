package pynchon

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Phase names one leg of the narrative gravity arc.
type Phase string

const (
	PhaseRising  Phase = "rising"
	PhaseApex    Phase = "apex"
	PhaseFalling Phase = "falling"
	PhaseImpact  Phase = "impact"
)

const (
	initialMomentum   = 0.5
	apexMin           = 0.8
	fallingBelow      = 0.5
	impactBelow       = 0.2
	impactDeltaCap    = 0.05
	momentumBaseDecay = -0.02
	sessionEndDelta   = -1.0
)

type momentumSignal struct {
	name  string
	delta float64
	re    *regexp.Regexp
}

// Momentum boosters and drains. Each category counts at most once per
// message, on top of the base decay every message pays.
var momentumBoosters = []momentumSignal{
	{"deep_question", 0.08, regexp.MustCompile(`(?i)\b(why|what if|suppose|consider|meaning|nature of)\b`)},
	{"philosophical", 0.06, regexp.MustCompile(`(?i)\b(being|existence|consciousness|free will|truth|the absurd|infinity|god|death)\b`)},
	{"emotional", 0.05, regexp.MustCompile(`(?i)\b(feel|felt|feeling|afraid|love|grief|longing|lonely|joy|haunted)\b`)},
	{"follow_up", 0.04, regexp.MustCompile(`(?i)^(but|and|so|also|what about|how about)\b|tell me more|go on|elaborate|continue`)},
}

var momentumDrains = []momentumSignal{
	{"surface_question", -0.03, regexp.MustCompile(`(?i)\b(what time|how much|how many|what year|who won|the weather|the menu|the price)\b`)},
	{"fatigue", -0.08, regexp.MustCompile(`(?i)\b(tired|exhausted|sleepy|getting late|should go|long day)\b`)},
	{"repetition", -0.05, regexp.MustCompile(`(?i)\b(again|you said|already told|as i said|like i said)\b`)},
	{"disengagement", -0.06, regexp.MustCompile(`(?i)^(ok|okay|sure|fine|whatever|i guess|if you say so)[.!]?$`)},
	{"topic_exhaustion", -0.10, regexp.MustCompile(`(?i)\b(nothing left|nothing else|out of things|enough of this|change the subject|let's move on)\b`)},
}

// AnalyzeMomentum scores one user message against the booster and drain
// categories and returns the summed delta plus the categories that fired.
func AnalyzeMomentum(message string) (float64, []string) {
	delta := momentumBaseDecay
	var signals []string
	for _, sig := range momentumBoosters {
		if sig.re.MatchString(message) {
			delta += sig.delta
			signals = append(signals, sig.name)
		}
	}
	for _, sig := range momentumDrains {
		if sig.re.MatchString(message) {
			delta += sig.delta
			signals = append(signals, sig.name)
		}
	}
	return delta, signals
}

// Advance applies one momentum delta and moves the phase machine. At
// IMPACT any single delta is capped, so the arc cannot bounce back off the
// ground in one exchange. The apex timestamp is written the first time
// APEX is entered and never changes afterwards.
func Advance(a *Arc, delta float64, now time.Time) {
	if a.Phase == PhaseImpact {
		delta = min(delta, impactDeltaCap)
	}
	a.Momentum = min(max(a.Momentum+delta, 0), 1)
	next := nextPhase(a.Phase, a.Momentum)
	if next == PhaseApex && a.ApexReachedAt == nil {
		t := now
		a.ApexReachedAt = &t
	}
	a.Phase = next
}

// nextPhase implements the hysteresis between phases: APEX holds until
// momentum drops below fallingBelow, FALLING can recover to APEX or drop
// to IMPACT, and IMPACT is terminal.
func nextPhase(p Phase, m float64) Phase {
	switch p {
	case PhaseApex:
		if m < fallingBelow {
			return PhaseFalling
		}
		return PhaseApex
	case PhaseFalling:
		switch {
		case m >= apexMin:
			return PhaseApex
		case m < impactBelow:
			return PhaseImpact
		default:
			return PhaseFalling
		}
	case PhaseImpact:
		return PhaseImpact
	default:
		switch {
		case m >= apexMin:
			return PhaseApex
		case m < impactBelow:
			return PhaseImpact
		case m < fallingBelow:
			return PhaseFalling
		default:
			return PhaseRising
		}
	}
}

// PhaseEffects is the arc's influence on the other layers.
type PhaseEffects struct {
	EntropyModifier           float64
	PreteriteChanceMultiplier float64
	InsightBonus              float64
}

var basePhaseEffects = map[Phase]PhaseEffects{
	PhaseRising:  {EntropyModifier: 0.9, PreteriteChanceMultiplier: 1.0, InsightBonus: 0.05},
	PhaseApex:    {EntropyModifier: 0.7, PreteriteChanceMultiplier: 0.8, InsightBonus: 0.15},
	PhaseFalling: {EntropyModifier: 1.2, PreteriteChanceMultiplier: 1.3, InsightBonus: 0.05},
	PhaseImpact:  {EntropyModifier: 1.5, PreteriteChanceMultiplier: 1.6, InsightBonus: 0},
}

// Effects returns the arc's cross-layer effects. The preterite multiplier
// grows as momentum drains away, and the insight bonus follows momentum.
// A nil arc exerts no influence.
func Effects(a *Arc) PhaseEffects {
	if a == nil {
		return PhaseEffects{EntropyModifier: 1, PreteriteChanceMultiplier: 1}
	}
	base, ok := basePhaseEffects[a.Phase]
	if !ok {
		base = PhaseEffects{EntropyModifier: 1, PreteriteChanceMultiplier: 1}
	}
	return PhaseEffects{
		EntropyModifier:           base.EntropyModifier,
		PreteriteChanceMultiplier: base.PreteriteChanceMultiplier * (1 + (1-a.Momentum)*0.5),
		InsightBonus:              base.InsightBonus * a.Momentum,
	}
}

var phaseProse = map[Phase]string{
	PhaseRising:  "The night is still climbing. Momentum gathers around the conversation.",
	PhaseApex:    "The night has found its apex. Everything said now lands with full weight.",
	PhaseFalling: "The conversation is past its peak, descending the far side of the night.",
	PhaseImpact:  "The arc has come to ground. What is said now is said among the wreckage.",
}

// Describe renders the narrative layer line for the arc's phase.
func (a *Arc) Describe() string {
	if a == nil {
		return ""
	}
	return phaseProse[a.Phase]
}

// Gravity tracks per-session narrative arcs.
type Gravity struct {
	store *Store
	now   func() time.Time
}

// NewGravity creates a [Gravity] over the given store.
func NewGravity(store *Store) *Gravity {
	return &Gravity{store: store, now: time.Now}
}

// Observe folds one user message into the session's arc, creating the arc
// on first contact, and persists the result.
func (g *Gravity) Observe(ctx context.Context, sessionID uuid.UUID, message string) (*Arc, error) {
	a, err := g.store.GetArc(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		a = &Arc{SessionID: sessionID, Phase: PhaseRising, Momentum: initialMomentum}
	}
	delta, _ := AnalyzeMomentum(message)
	Advance(a, delta, g.now())
	if err := g.store.UpsertArc(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Conclude drives a session's arc to ground at session end. Sessions that
// never formed an arc stay arcless; the concluded arc is returned.
func (g *Gravity) Conclude(ctx context.Context, sessionID uuid.UUID) (*Arc, error) {
	a, err := g.store.GetArc(ctx, sessionID)
	if err != nil || a == nil {
		return a, err
	}
	Advance(a, sessionEndDelta, g.now())
	if err := g.store.UpsertArc(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
