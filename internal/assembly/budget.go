package assembly

import "strings"

// tokensPerChar is the fixed token-estimate contract: one token per four
// characters, rounded up. No tokenizer is consulted; every consumer of the
// budget accepts this as the unit.
const tokensPerChar = 4

// EstimateTokens estimates the token cost of text as ceil(len/4).
func EstimateTokens(text string) int {
	return (len(text) + tokensPerChar - 1) / tokensPerChar
}

// layerCost is the budgeted cost of one composed layer: its text plus the
// leading newline separator every non-first layer carries. The separator
// is counted so the budget matches the composed prompt byte for byte.
func layerCost(text string, first bool) int {
	if first {
		return EstimateTokens(text)
	}
	return EstimateTokens("\n" + text)
}

// budgetMemories fits framed memory lines into the remaining token budget.
// Whole lines are kept while they fit; the first line that would overflow
// ends the fill. A budget of zero or less drops the memories entirely.
// Returns the fitted text and whether anything was cut.
func budgetMemories(framed string, budget int) (string, bool) {
	if framed == "" {
		return "", false
	}
	if budget <= 0 {
		return "", true
	}
	if EstimateTokens(framed) <= budget {
		return framed, false
	}

	var (
		kept []string
		used int
	)
	for line := range strings.Lines(framed) {
		line = strings.TrimSuffix(line, "\n")
		cost := EstimateTokens(line)
		if len(kept) > 0 {
			cost = EstimateTokens("\n" + line)
		}
		if used+cost > budget {
			break
		}
		kept = append(kept, line)
		used += cost
	}
	return strings.Join(kept, "\n"), true
}
