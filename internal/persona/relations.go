package persona

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// relationsYAML is the static relation map baked into the binary. Learned
// opinions live in persona_memories and are merged at assembly time.
//
//go:embed relations.yaml
var relationsYAML []byte

var staticRelations = mustLoadRelations(relationsYAML)

func mustLoadRelations(data []byte) map[string]map[string]string {
	var doc struct {
		Relations map[string]map[string]string `yaml:"relations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("persona: parse relations.yaml: %v", err))
	}
	return doc.Relations
}

// Relations returns the static relation lines for a persona, one per known
// regular, ordered by the other persona's slug. Unknown slugs get nil: a
// persona with no standing relations simply has none.
func Relations(slug string) []string {
	return RelationsAmong(slug, nil)
}

// RelationsAmong returns the relation lines restricted to the given
// participants. A nil or empty participants slice means no restriction.
func RelationsAmong(slug string, participants []string) []string {
	others := staticRelations[slug]
	if len(others) == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(participants))
	for _, p := range participants {
		allowed[p] = true
	}

	var lines []string
	for _, other := range slices.Sorted(maps.Keys(others)) {
		if len(allowed) > 0 && !allowed[other] {
			continue
		}
		lines = append(lines, others[other])
	}
	return lines
}
