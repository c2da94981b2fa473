package memory

import (
	"strings"

	"github.com/ofim/contexto/internal/relationship"
)

// maxFramedContent bounds how much of a memory's content survives framing.
const maxFramedContent = 300

// frameTemplates render a memory as a first-person recollection, keyed by
// memory_type. {content} and {user_ref} are the only placeholders.
var frameTemplates = map[string]string{
	"interaction":  "You remember {user_ref} telling you: {content}",
	"relationship": "Between you and {user_ref} there is this: {content}",
	"insight":      "An insight that came to you about {user_ref}: {content}",
	"learning":     "Something you learned from {user_ref}: {content}",
	"general":      "You recall, about {user_ref}: {content}",
}

// UserRef is how a persona refers to the user at a given trust level.
func UserRef(trust relationship.TrustLevel) string {
	switch trust {
	case relationship.TrustAcquaintance:
		return "your acquaintance"
	case relationship.TrustFamiliar:
		return "your friend"
	case relationship.TrustConfidant:
		return "your trusted companion"
	default:
		return "a visitor"
	}
}

// Frame renders memories as recollections, one per line, addressed to the
// persona. Unknown memory types use the general template; content longer
// than maxFramedContent runes is truncated with an ellipsis.
func Frame(mems []*Memory, trust relationship.TrustLevel) string {
	ref := UserRef(trust)
	lines := make([]string, 0, len(mems))
	for _, m := range mems {
		tpl, ok := frameTemplates[m.MemoryType]
		if !ok {
			tpl = frameTemplates["general"]
		}
		line := strings.ReplaceAll(tpl, "{content}", truncateRunes(m.Content, maxFramedContent))
		line = strings.ReplaceAll(line, "{user_ref}", ref)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FramePersonaMemories renders a persona's own reflections for the
// persona-memories context layer.
func FramePersonaMemories(mems []*PersonaMemory) string {
	if len(mems) == 0 {
		return ""
	}
	lines := make([]string, 0, len(mems)+1)
	lines = append(lines, "Your own mind keeps circling:")
	for _, m := range mems {
		lines = append(lines, "- "+truncateRunes(m.Content, maxFramedContent))
	}
	return strings.Join(lines, "\n")
}

// truncateRunes shortens s to at most n runes, ellipsis included.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
