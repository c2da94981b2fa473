package pynchon

// Alignment classifications.
const (
	AlignCounterforce = "counterforce"
	AlignNeutral      = "neutral"
	AlignCollaborator = "collaborator"
)

type counterforceSeed struct {
	score float64
	style string
}

// staticAlignments seeds each resident persona's standing toward the
// System. Unknown slugs read as zero: neutral, no style.
var staticAlignments = map[string]counterforceSeed{
	"diogenes": {0.8, "open defiance"},
	"camus":    {0.6, "quiet revolt"},
	"pessoa":   {0.3, "plural evasion"},
	"hegel":    {0.1, "dialectical distance"},
	"clarice":  {-0.1, "inward weather"},
}

// Alignment is a persona's effective stance toward the System.
type Alignment struct {
	Score          float64
	Classification string
	Style          string
}

// Align computes a persona's effective alignment from its static seed plus
// the learned drift accumulated in its traits. The traits layer clamps
// the drift itself; the sum is clamped here to [-1, 1].
func Align(slug string, learnedDelta float64) Alignment {
	seed := staticAlignments[slug]
	score := min(max(seed.score+learnedDelta, -1), 1)
	return Alignment{
		Score:          score,
		Classification: classifyAlignment(score),
		Style:          seed.style,
	}
}

func classifyAlignment(score float64) string {
	switch {
	case score > 0.5:
		return AlignCounterforce
	case score < -0.3:
		return AlignCollaborator
	default:
		return AlignNeutral
	}
}

// Describe renders the counterforce layer line.
func (a Alignment) Describe() string {
	switch a.Classification {
	case AlignCounterforce:
		s := "You run with the Counterforce."
		if a.Style != "" {
			s += " Your mode of resistance: " + a.Style + "."
		}
		return s
	case AlignCollaborator:
		return "You have made your accommodations with the System. It shows."
	default:
		if a.Style != "" {
			return "You keep to your stool between the System and its enemies. Your leaning: " + a.Style + "."
		}
		return "You keep to your stool between the System and its enemies."
	}
}
