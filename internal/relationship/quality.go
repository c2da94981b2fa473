package relationship

import (
	"regexp"
	"strings"
	"time"

	"github.com/ofim/contexto/pkg/types"
)

// Engagement bounds. A silent session still earns the floor; nothing earns
// more than twice the baseline.
const (
	minEngagement = 0.5
	maxEngagement = 2.0
)

// followUpPatterns mark a non-first user message as continuing a thread
// rather than opening a new one.
var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(but|and|so|also|what about|how about|could you|can you explain)`),
	regexp.MustCompile(`(?s)\?.*\?`),
	regexp.MustCompile(`(?i)tell me more`),
	regexp.MustCompile(`(?i)go on`),
	regexp.MustCompile(`(?i)continue`),
	regexp.MustCompile(`(?i)elaborate`),
}

// deepWords signal a question that goes past small talk.
var deepWords = []string{
	"why", "how", "what if", "suppose", "consider", "meaning", "nature of",
}

// Quality is the engagement profile of a finished session.
type Quality struct {
	MessageCount int
	Duration     time.Duration
	HasFollowUps bool
	TopicDepth   float64
	Engagement   float64
}

// Analyze computes the session quality profile from a transcript and its
// wall-clock duration.
func Analyze(messages []types.Message, duration time.Duration) Quality {
	userMsgs := types.UserContents(messages)
	q := Quality{
		MessageCount: len(messages),
		Duration:     duration,
		HasFollowUps: hasFollowUps(userMsgs),
		TopicDepth:   topicDepth(userMsgs),
	}
	q.Engagement = engagement(q)
	return q
}

// engagement blends message volume, duration, follow-up behavior, and topic
// depth into a single multiplier, clamped to [minEngagement, maxEngagement].
func engagement(q Quality) float64 {
	e := min(float64(q.MessageCount)*0.1, 1) +
		min(q.Duration.Minutes()*0.2, 1) +
		min(q.TopicDepth*0.3, 0.9)
	if q.HasFollowUps {
		e += 0.5
	}
	return min(max(e, minEngagement), maxEngagement)
}

// hasFollowUps reports whether any non-first user message continues a thread.
// The first message cannot follow anything.
func hasFollowUps(userMsgs []string) bool {
	for i, msg := range userMsgs {
		if i == 0 {
			continue
		}
		for _, re := range followUpPatterns {
			if re.MatchString(msg) {
				return true
			}
		}
	}
	return false
}

// topicDepth scores how substantive the user's side was: average message
// length against a 200-char yardstick, plus a bonus when any message asks a
// deep question. Clamped to 1.
func topicDepth(userMsgs []string) float64 {
	if len(userMsgs) == 0 {
		return 0
	}
	total := 0
	for _, msg := range userMsgs {
		total += len(msg)
	}
	avg := float64(total) / float64(len(userMsgs))

	depth := min(avg/200, 1)
	if hasDeepQuestion(userMsgs) {
		depth += 0.3
	}
	return min(depth, 1)
}

func hasDeepQuestion(userMsgs []string) bool {
	for _, msg := range userMsgs {
		lower := strings.ToLower(msg)
		for _, w := range deepWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}
