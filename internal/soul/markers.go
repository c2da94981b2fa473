package soul

import (
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Markers are the voice-fidelity signals extracted from a soul file. The
// drift engine scores responses against them.
type Markers struct {
	// Vocabulary terms characteristic of the persona, lowercased.
	Vocabulary []string
	// Tone descriptors from the opening of the voice section.
	Tone []string
	// Patterns the persona's speech is expected to match.
	Patterns []Pattern
	// Forbidden phrases for this persona specifically. Initially empty;
	// operators grow it as personas reveal their failure modes.
	Forbidden []string
}

// Pattern is a named regexp a persona's speech should satisfy.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

var (
	boldTermRe = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)

	// Diacritics of the Latin-1 range; souls written in Portuguese light
	// these up.
	specialCharRe = regexp.MustCompile(`[áàâãäéèêëíìîïóòôõöúùûüçñÁÀÂÃÄÉÈÊËÍÌÎÏÓÒÔÕÖÚÙÛÜÇÑ]`)
	emDashRe      = regexp.MustCompile(`—`)
)

const (
	specialCharThreshold = 10
	emDashThreshold      = 3
)

// Loader extracts markers from soul files and caches them forever per slug.
// A missing or unreadable file yields empty markers (universal drift checks
// still apply); the empty result is cached like any other.
type Loader struct {
	root string

	mu    sync.RWMutex
	cache map[string]*Markers
}

// NewLoader creates a marker loader over the given personas root.
func NewLoader(root string) *Loader {
	return &Loader{root: root, cache: make(map[string]*Markers)}
}

// Load returns the markers for a persona slug, extracting and caching them on
// first use.
func (l *Loader) Load(slug string) *Markers {
	l.mu.RLock()
	m, ok := l.cache[slug]
	l.mu.RUnlock()
	if ok {
		return m
	}

	m = &Markers{}
	if path, err := Find(l.root, slug); err == nil {
		if content, err := os.ReadFile(path); err == nil {
			m = Extract(string(content))
		}
	}

	l.mu.Lock()
	// First writer wins; concurrent extractions produce identical results.
	if existing, ok := l.cache[slug]; ok {
		m = existing
	} else {
		l.cache[slug] = m
	}
	l.mu.Unlock()
	return m
}

// Extract pulls markers out of soul markdown: vocabulary from bold terms,
// uppercase code-block labels, table keys and the opening blockquote; tone
// descriptors from the first paragraph of the voice (or bar) section; derived
// patterns from the file's own typography.
func Extract(content string) *Markers {
	m := &Markers{}
	seen := make(map[string]bool)
	addVocab := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		m.Vocabulary = append(m.Vocabulary, term)
	}

	for _, match := range boldTermRe.FindAllStringSubmatch(content, -1) {
		if term := strings.TrimSpace(match[1]); len(term) >= 1 && len(term) <= 60 {
			addVocab(term)
		}
	}

	inCode := false
	quoteTaken := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			if label := upperLabel(trimmed); label != "" {
				addVocab(label)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "|") {
			if key := tableKey(trimmed); key != "" && len(key) <= 40 {
				addVocab(key)
			}
			continue
		}
		if !quoteTaken && strings.HasPrefix(trimmed, ">") {
			if quote := strings.TrimSpace(strings.TrimPrefix(trimmed, ">")); quote != "" {
				addVocab(quote)
				quoteTaken = true
			}
		}
	}

	doc := Parse(content)
	section, ok := doc.Section("voice", "voz")
	if !ok {
		section, ok = doc.Section("bar")
	}
	if ok {
		m.Tone = toneDescriptors(section.Body)
	}

	if len(specialCharRe.FindAllString(content, -1)) > specialCharThreshold {
		m.Patterns = append(m.Patterns, Pattern{Name: "uses_special_characters", Regex: specialCharRe})
	}
	if len(emDashRe.FindAllString(content, -1)) > emDashThreshold {
		m.Patterns = append(m.Patterns, Pattern{Name: "uses_em_dashes", Regex: emDashRe})
	}

	return m
}

// upperLabel recognises uppercase label lines inside code blocks, e.g.
// "THESIS:" or "O SISTEMA". Returns the label without a trailing colon, or ""
// when the line is not a label.
func upperLabel(line string) string {
	label := strings.TrimSuffix(line, ":")
	if len(label) < 2 || len(label) > 40 {
		return ""
	}
	hasLetter := false
	for _, r := range label {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return ""
			}
		}
	}
	if !hasLetter {
		return ""
	}
	return label
}

// tableKey returns the first-column cell of a markdown table row, or "" for
// separator rows.
func tableKey(line string) string {
	cells := strings.Split(line, "|")
	if len(cells) < 2 {
		return ""
	}
	key := strings.TrimSpace(cells[1])
	if key == "" || strings.Trim(key, "-: ") == "" {
		return ""
	}
	return key
}

// toneDescriptors splits the first paragraph of a section body on commas and
// periods, keeping short descriptors.
func toneDescriptors(body string) []string {
	var paragraph []string
	started := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if started {
				break
			}
			continue
		}
		started = true
		paragraph = append(paragraph, trimmed)
	}

	var tone []string
	for _, piece := range strings.FieldsFunc(strings.Join(paragraph, " "), func(r rune) bool {
		return r == ',' || r == '.'
	}) {
		piece = strings.TrimSpace(strings.ReplaceAll(piece, "**", ""))
		if piece != "" && len(piece) < 80 {
			tone = append(tone, piece)
		}
	}
	return tone
}
