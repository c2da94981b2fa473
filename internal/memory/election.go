package memory

import (
	"regexp"
	"strings"
	"time"
)

// Election thresholds and contribution weights. The five contribution
// groups sum to at most 1.0 when all are maxed.
const (
	electThreshold      = 0.7
	borderlineThreshold = 0.4

	emotionWeight = 0.07
	emotionCap    = 0.35
	pronounWeight = 0.03
	pronounCap    = 0.25

	insignificantScore   = 0.1
	overshadowedBelow    = 0.3
	tooOrdinaryWords     = 5
	entropyClaimAge      = 30 * 24 * time.Hour
	electionLengthLong   = 20
	electionLengthMedium = 10
)

// emotionCategories group emotional vocabulary: joy, sorrow, anger, fear,
// longing. A memory scores once per category, no matter how many of the
// category's words it contains.
var emotionCategories = [][]string{
	{"happy", "joy", "laugh", "delight", "wonderful", "glad"},
	{"sad", "cry", "grief", "loss", "miss", "mourn"},
	{"angry", "furious", "hate", "rage", "resent"},
	{"afraid", "fear", "terrified", "worry", "anxious", "dread"},
	{"wish", "hope", "dream", "longing", "yearn", "regret"},
}

var pronounRe = regexp.MustCompile(`(?i)\b(i|me|my|mine|you|your|yours|we|us|our)\b`)

// Election is the verdict on one stored memory: kept, kept reluctantly, or
// consigned to the preterite with a reason.
type Election struct {
	Score  float64
	Status string

	// Reason is set only when Status is [StatusPreterite].
	Reason string
}

// Elect scores a memory and decides its fate. The score sums emotional
// intensity, personal reference density, recency, length and an importance
// echo; memories scoring below the borderline threshold are passed over.
func Elect(m *Memory, now time.Time) Election {
	lower := strings.ToLower(m.Content)
	words := len(strings.Fields(m.Content))
	pronounHits := len(pronounRe.FindAllString(m.Content, -1))
	age := now.Sub(m.CreatedAt)

	score := min(emotionWeight*float64(emotionCategoryHits(lower)), emotionCap)
	score += min(pronounWeight*float64(pronounHits), pronounCap)
	score += recencyContribution(age)
	switch {
	case words >= electionLengthLong:
		score += 0.10
	case words >= electionLengthMedium:
		score += 0.05
	}
	score += 0.10 * m.ImportanceScore
	score = min(score, 1)

	e := Election{Score: score}
	switch {
	case score >= electThreshold:
		e.Status = StatusElect
	case score >= borderlineThreshold:
		e.Status = StatusBorderline
	default:
		e.Status = StatusPreterite
		e.Reason = preteriteReason(m, score, words, pronounHits, age)
	}
	return e
}

func emotionCategoryHits(lower string) int {
	hits := 0
	for _, category := range emotionCategories {
		for _, word := range category {
			if strings.Contains(lower, word) {
				hits++
				break
			}
		}
	}
	return hits
}

func recencyContribution(age time.Duration) float64 {
	switch {
	case age < 24*time.Hour:
		return 0.20
	case age < 7*24*time.Hour:
		return 0.15
	case age < 30*24*time.Hour:
		return 0.10
	case age < 90*24*time.Hour:
		return 0.05
	default:
		return 0
	}
}

// preteriteReason picks the first matching reason in precedence order.
func preteriteReason(m *Memory, score float64, words, pronounHits int, age time.Duration) string {
	switch {
	case words < tooOrdinaryWords:
		return ReasonTooOrdinary
	case pronounHits == 0:
		return ReasonNoWitness
	case score < insignificantScore:
		return ReasonDeemedInsignificant
	case m.AccessCount == 0 && age > entropyClaimAge:
		return ReasonEntropyClaimed
	case m.ImportanceScore < overshadowedBelow:
		return ReasonOvershadowed
	default:
		return ReasonPatternMismatch
	}
}
