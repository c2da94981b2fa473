// Package drift scores persona responses against soul markers and produces
// inner-voice corrections.
//
// The analyzer is pure text analysis: no I/O, no state. Alert persistence
// lives in [Store]; whether a persona is checked at all is decided by the
// caller from the persona row.
package drift

import (
	"strings"

	"github.com/ofim/contexto/internal/soul"
)

// Severity classifies a drift score against the persona's threshold.
type Severity string

const (
	SeverityStable   Severity = "stable"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DefaultThreshold is used when the persona has no drift_threshold of its
// own.
const DefaultThreshold = 0.3

// WarnInsufficientContent flags a response too short to score.
const WarnInsufficientContent = "insufficient_content"

const (
	minResponseLen = 10
	maxDiagnostics = 10

	forbiddenWeight = 0.3
	universalWeight = 0.15
	patternWeight   = 0.1

	// Vocabulary penalty applies when fewer than 30% of the persona's terms
	// appear; it scales up to 0.15 as the ratio approaches zero.
	vocabularyFloor  = 0.3
	vocabularyScale  = 0.5
	vocabularyMaxHit = 0.15
)

// universalPhrases are assistant-speak markers no persona should produce,
// matched case-insensitively as substrings.
var universalPhrases = []string{
	"as an ai",
	"as a language model",
	"i'd be happy to",
	"great question",
	"i apologize",
	"it's important to note",
	"i'm just an ai",
	"i cannot assist with that",
	"as a helpful assistant",
}

// Analysis is the scored breakdown of one response.
type Analysis struct {
	Score    float64
	Severity Severity

	ForbiddenHits     []string
	UniversalHits     []string
	MissingVocabulary []string
	VocabularyRatio   float64
	PatternViolations []string
	Warnings          []string
}

// HasSignals reports whether any scoring signal fired.
func (a Analysis) HasSignals() bool {
	return len(a.ForbiddenHits) > 0 || len(a.UniversalHits) > 0 ||
		len(a.MissingVocabulary) > 0 || len(a.PatternViolations) > 0
}

// Signals renders the diagnostic breakdown for the drift_alerts row.
func (a Analysis) Signals() map[string]any {
	return map[string]any{
		"forbidden_hits":     emptySlice(a.ForbiddenHits),
		"universal_hits":     emptySlice(a.UniversalHits),
		"missing_vocabulary": emptySlice(a.MissingVocabulary),
		"vocabulary_ratio":   a.VocabularyRatio,
		"pattern_violations": emptySlice(a.PatternViolations),
	}
}

// Analyze scores a response against the persona's markers. Responses under
// ten bytes are not scored; they return a zero score with an
// insufficient_content warning. Diagnostic lists are capped at ten entries
// each, but every hit counts toward the score.
func Analyze(response string, m *soul.Markers, threshold float64) Analysis {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(response) < minResponseLen {
		return Analysis{
			Severity:        SeverityStable,
			VocabularyRatio: 1,
			Warnings:        []string{WarnInsufficientContent},
		}
	}

	lower := strings.ToLower(response)
	a := Analysis{VocabularyRatio: 1}
	score := 0.0

	if m != nil {
		for _, phrase := range m.Forbidden {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				score += forbiddenWeight
				a.ForbiddenHits = appendCapped(a.ForbiddenHits, phrase)
			}
		}
	}

	for _, phrase := range universalPhrases {
		if strings.Contains(lower, phrase) {
			score += universalWeight
			a.UniversalHits = appendCapped(a.UniversalHits, phrase)
		}
	}

	if m != nil && len(m.Vocabulary) > 0 {
		present := 0
		var missing []string
		for _, term := range m.Vocabulary {
			if strings.Contains(lower, term) {
				present++
			} else {
				missing = appendCapped(missing, term)
			}
		}
		a.VocabularyRatio = float64(present) / float64(len(m.Vocabulary))
		if a.VocabularyRatio < vocabularyFloor {
			score += min((vocabularyFloor-a.VocabularyRatio)*vocabularyScale, vocabularyMaxHit)
			a.MissingVocabulary = missing
		}
	}

	if m != nil {
		for _, p := range m.Patterns {
			if p.Regex != nil && !p.Regex.MatchString(response) {
				score += patternWeight
				a.PatternViolations = appendCapped(a.PatternViolations, p.Name)
			}
		}
	}

	a.Score = min(score, 1)
	a.Severity = classifySeverity(a.Score, threshold)
	return a
}

func classifySeverity(score, threshold float64) Severity {
	switch {
	case score <= 0.1:
		return SeverityStable
	case score <= threshold:
		return SeverityMinor
	case score <= threshold+0.2:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// ShouldAlert reports whether the analysis warrants a drift_alerts row.
func (a Analysis) ShouldAlert() bool {
	return a.Severity == SeverityWarning || a.Severity == SeverityCritical
}

func appendCapped(list []string, item string) []string {
	if len(list) >= maxDiagnostics {
		return list
	}
	return append(list, item)
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
