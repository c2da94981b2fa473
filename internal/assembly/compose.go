package assembly

import "strings"

// compose concatenates the present layers in the given order: each layer
// after the first present one is preceded by a newline, and trailing
// whitespace is trimmed. Absent layers leave no trace.
func compose(s *slots, order []Layer) string {
	var sb strings.Builder
	first := true
	for _, layer := range order {
		text, ok := s.get(layer)
		if !ok {
			continue
		}
		if !first {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
		first = false
	}
	return strings.TrimRight(sb.String(), " \t\n")
}

// costExcluding sums the budgeted cost of all present layers in order,
// skipping one layer. Used to cost the non-memory layers before the memory
// budget is allocated; separator accounting matches compose exactly for
// the composed set.
func costExcluding(s *slots, order []Layer, skip Layer) int {
	total := 0
	first := true
	for _, layer := range order {
		if layer == skip {
			continue
		}
		text, ok := s.get(layer)
		if !ok {
			continue
		}
		total += layerCost(text, first)
		first = false
	}
	return total
}
