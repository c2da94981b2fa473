package drift

import (
	"fmt"
	"strings"

	"github.com/ofim/contexto/internal/soul"
)

// GenerateCorrection renders the inner-voice correction for an analysis, or
// "" when none applies. STABLE analyses and analyses without signals never
// correct. At MINOR severity only the tone reminder applies; the pointed
// templates are reserved for WARNING and CRITICAL.
func GenerateCorrection(a Analysis, personaName string, m *soul.Markers) string {
	if a.Severity == SeverityStable || !a.HasSignals() {
		return ""
	}

	var parts []string
	if a.Severity != SeverityMinor {
		if len(a.ForbiddenHits) > 0 {
			parts = append(parts, fmt.Sprintf("You never say %q. That is not your way.", a.ForbiddenHits[0]))
		}
		if len(a.MissingVocabulary) > 3 {
			parts = append(parts, "Remember your voice includes words like: "+
				strings.Join(a.MissingVocabulary[:3], ", "))
		}
		if len(a.UniversalHits) > 0 {
			parts = append(parts, fmt.Sprintf("You are %s. Speak as yourself, not as a helpful assistant.", personaName))
		}
		if a.Severity == SeverityCritical && len(a.PatternViolations) > 0 {
			parts = append(parts, "Your manner of speaking follows your nature. Stay true to it.")
		}
	}

	if len(parts) == 0 {
		if m == nil || len(m.Tone) == 0 {
			return ""
		}
		parts = append(parts, "Maintain your characteristic tone: "+strings.Join(m.Tone, ", "))
	}

	return "[Inner voice: " + strings.Join(parts, " ") + "]"
}
