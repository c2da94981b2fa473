package memory

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ofim/contexto/pkg/types"
)

// Extraction tuning. A candidate needs two pattern classes to clear the
// importance filter; a session longer than five minutes lifts every
// candidate's recomputed importance.
const (
	maxCandidates     = 5
	minImportance     = 0.3
	patternWeight     = 0.2
	longSession       = 5 * time.Minute
	longSessionBonus  = 0.2
	maxSummaryChars   = 200
	followingMessages = 2
)

// patternClasses are the five signal families scanned for in user
// messages. A message matching a class counts it once, no matter how many
// times the class's phrases appear.
var patternClasses = []struct {
	name string
	re   *regexp.Regexp
}{
	{"personal", regexp.MustCompile(`(?i)\b(i am|i'm|i was|my name is|i live|i grew up|i work|i moved)\b`)},
	{"depth", regexp.MustCompile(`(?i)\b(why|meaning|nature of|what if|suppose|consider)\b`)},
	{"topic", regexp.MustCompile(`(?i)\b(always|never|believe|truth|matters|important)\b`)},
	{"preference", regexp.MustCompile(`(?i)\b(i like|i love|i hate|i prefer|i enjoy|favorite|favourite)\b`)},
	{"fact", regexp.MustCompile(`(?i)\b(i work as|works as|lives in|i live in|my job|years old|my wife|my husband|my partner)\b`)},
}

var (
	worksAsRe  = regexp.MustCompile(`(?i)\bi work as (?:a |an |the )?([^.,;!?\n]{1,60})`)
	interestRe = regexp.MustCompile(`(?i)\bi (?:really )?(?:like|love|enjoy) ([^.,;!?\n]{1,60})`)
)

// thirdPersonSwaps rewrite first-person phrasing for stored summaries.
// Order matters: multi-word swaps run before the bare pronoun.
var thirdPersonSwaps = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?i)\bi am\b`), "they are"},
	{regexp.MustCompile(`(?i)\bi'm\b`), "they are"},
	{regexp.MustCompile(`(?i)\bi was\b`), "they were"},
	{regexp.MustCompile(`(?i)\bi have\b`), "they have"},
	{regexp.MustCompile(`(?i)\bi\b`), "they"},
	{regexp.MustCompile(`(?i)\bmy\b`), "their"},
	{regexp.MustCompile(`(?i)\bme\b`), "them"},
	{regexp.MustCompile(`(?i)\bmine\b`), "theirs"},
}

// Candidate is a memory-worthy moment extracted from a transcript, ready
// to become a stored [Memory].
type Candidate struct {
	// Summary is the exchange condensed to third-person prose.
	Summary string

	// MemoryType classifies the candidate: insight when the user went
	// deep, learning when they stated facts or preferences, interaction
	// otherwise.
	MemoryType string

	// Importance is the recomputed weighted score in [0,1].
	Importance float64
}

// ExtractCandidates scans a finished session's transcript for moments
// worth remembering. Only user messages are scanned; each one that matches
// at least two pattern classes becomes a candidate, scored by which
// classes hit and whether the session ran long. At most maxCandidates
// survive, highest importance first.
func ExtractCandidates(messages []types.Message, duration time.Duration) []Candidate {
	var out []Candidate
	for i, msg := range messages {
		if msg.Role != types.RoleUser || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		matched := make(map[string]bool, len(patternClasses))
		for _, pc := range patternClasses {
			if pc.re.MatchString(msg.Content) {
				matched[pc.name] = true
			}
		}
		if float64(len(matched))*patternWeight < minImportance {
			continue
		}

		importance := 0.0
		if matched["personal"] {
			importance += 0.4
		}
		if matched["depth"] {
			importance += 0.3
		}
		if matched["topic"] {
			importance += 0.3
		}
		if duration > longSession {
			importance += longSessionBonus
		}

		out = append(out, Candidate{
			Summary:    summarizeExchange(messages, i),
			MemoryType: candidateType(matched),
			Importance: min(importance, 1),
		})
	}

	// Stable sort keeps transcript order among equals.
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return cmp.Compare(b.Importance, a.Importance)
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func candidateType(matched map[string]bool) string {
	switch {
	case matched["depth"]:
		return TypeInsight
	case matched["fact"] || matched["preference"]:
		return TypeLearning
	default:
		return TypeInteraction
	}
}

// summarizeExchange condenses the user message at index i plus up to two
// following messages into third-person prose, preferring the occupation
// and interest templates when they apply.
func summarizeExchange(messages []types.Message, i int) string {
	end := min(i+followingMessages+1, len(messages))
	parts := make([]string, 0, end-i)
	for _, m := range messages[i:end] {
		parts = append(parts, strings.TrimSpace(m.Content))
	}
	exchange := strings.Join(parts, " ")

	if m := worksAsRe.FindStringSubmatch(exchange); m != nil {
		return truncateRunes("Works as "+strings.TrimSpace(m[1])+".", maxSummaryChars)
	}
	if m := interestRe.FindStringSubmatch(exchange); m != nil {
		return truncateRunes("Interested in "+strings.TrimSpace(m[1])+".", maxSummaryChars)
	}

	for _, swap := range thirdPersonSwaps {
		exchange = swap.re.ReplaceAllString(exchange, swap.with)
	}
	return truncateRunes(exchange, maxSummaryChars)
}
