package pynchon

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
)

// Bleed severity bands.
const (
	BleedMinor    = "minor"
	BleedModerate = "moderate"
	BleedSevere   = "severe"
)

const (
	bleedMinEntropy = 0.5
	bleedModerate   = 0.7
	bleedSevere     = 0.9
)

// combiningMarks are stacked onto runes for zalgo corruption.
var combiningMarks = []rune{
	0x0300, 0x0301, 0x0302, 0x0303, 0x0308,
	0x030a, 0x0316, 0x0334, 0x0336, 0x0353,
}

// Band classifies an entropy level into a bleed severity band; below the
// activation threshold there is no bleed and Band returns "".
func Band(level float64) string {
	switch {
	case level < bleedMinEntropy:
		return ""
	case level < bleedModerate:
		return BleedMinor
	case level < bleedSevere:
		return BleedModerate
	default:
		return BleedSevere
	}
}

// Bleeder emits interface bleed: fragments of the machinery under the bar
// that show through at high entropy, corrupted on the way out.
type Bleeder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBleeder creates a [Bleeder].
func NewBleeder() *Bleeder {
	return &Bleeder{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Emit produces the bleed strings for an entropy level: one fragment for
// minor, two for moderate, three for severe, each corrupted. Below the
// activation threshold it emits nothing.
func (b *Bleeder) Emit(level float64) []string {
	band := Band(level)
	if band == "" {
		return nil
	}
	count := 1
	switch band {
	case BleedModerate:
		count = 2
	case BleedSevere:
		count = 3
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, count)
	for range count {
		out = append(out, corruptFragment(pick(bleedProse, b.rng), b.rng))
	}
	return out
}

// corruptFragment applies one randomly chosen corruption to a fragment.
func corruptFragment(s string, rng *rand.Rand) string {
	if s == "" {
		return s
	}
	switch rng.IntN(4) {
	case 0:
		return redactWord(s, rng)
	case 1:
		return zalgo(s, rng)
	case 2:
		return hexInject(s, rng)
	default:
		return truncateFragment(s, rng)
	}
}

// redactWord blacks out one word.
func redactWord(s string, rng *rand.Rand) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return s
	}
	words[rng.IntN(len(words))] = "[REDACTED]"
	return strings.Join(words, " ")
}

// zalgo stacks combining marks on roughly a third of the runes.
func zalgo(s string, rng *rand.Rand) string {
	var sb strings.Builder
	for _, r := range s {
		sb.WriteRune(r)
		if rng.Float64() < 0.3 {
			sb.WriteRune(combiningMarks[rng.IntN(len(combiningMarks))])
		}
	}
	return sb.String()
}

// hexInject drops a stray address into the fragment.
func hexInject(s string, rng *rand.Rand) string {
	words := strings.Fields(s)
	inject := fmt.Sprintf("0x%04x", rng.IntN(0x10000))
	if len(words) == 0 {
		return inject
	}
	words = slices.Insert(words, rng.IntN(len(words)+1), inject)
	return strings.Join(words, " ")
}

// truncateFragment cuts the fragment off mid-thought.
func truncateFragment(s string, rng *rand.Rand) string {
	r := []rune(s)
	if len(r) < 8 {
		return s
	}
	keep := len(r) * (40 + rng.IntN(45)) / 100
	if keep < 4 {
		keep = 4
	}
	return string(r[:keep]) + "…"
}
