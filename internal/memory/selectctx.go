package memory

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
)

// SelectForContext picks at most max memories for prompt inclusion. The
// single highest-importance memory always makes the cut (the anchor), the
// next two slots go to the most recent untaken memories, and any remaining
// slots are filled by keyword overlap with the query, ties broken by
// importance.
func SelectForContext(mems []*Memory, query string, max int) []*Memory {
	if max <= 0 || len(mems) == 0 {
		return nil
	}

	pool := slices.Clone(mems)

	anchor := 0
	for i, m := range pool {
		if m.ImportanceScore > pool[anchor].ImportanceScore {
			anchor = i
		}
	}
	out := []*Memory{pool[anchor]}
	pool = slices.Delete(pool, anchor, anchor+1)

	slices.SortStableFunc(pool, func(a, b *Memory) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	for len(out) < max && len(out) < 3 && len(pool) > 0 {
		out = append(out, pool[0])
		pool = pool[1:]
	}

	if len(out) >= max || len(pool) == 0 {
		return out
	}

	tokens := queryTokens(query)
	slices.SortStableFunc(pool, func(a, b *Memory) int {
		oa, ob := keywordOverlap(a.Content, tokens), keywordOverlap(b.Content, tokens)
		if oa != ob {
			return ob - oa
		}
		return cmp.Compare(b.ImportanceScore, a.ImportanceScore)
	})
	for len(out) < max && len(pool) > 0 {
		out = append(out, pool[0])
		pool = pool[1:]
	}
	return out
}

// queryTokens splits a query into deduplicated lowercase word tokens,
// dropping punctuation.
func queryTokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// keywordOverlap counts how many query tokens appear in the content.
func keywordOverlap(content string, tokens []string) int {
	lower := strings.ToLower(content)
	n := 0
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}
