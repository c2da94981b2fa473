package relationship

import (
	"strings"
	"testing"
)

func TestHints(t *testing.T) {
	t.Parallel()

	levels := []TrustLevel{TrustStranger, TrustAcquaintance, TrustFamiliar, TrustConfidant}
	seen := make(map[string]TrustLevel)
	for _, level := range levels {
		h := Hints(level)
		if h == "" {
			t.Errorf("Hints(%v) = empty", level)
		}
		if prev, dup := seen[h]; dup {
			t.Errorf("Hints(%v) duplicates Hints(%v)", level, prev)
		}
		seen[h] = level
	}

	if !strings.Contains(Hints(TrustStranger), "stranger") {
		t.Error("stranger hint should name the distance")
	}
}

func TestHints_UnknownLevelFallsBack(t *testing.T) {
	t.Parallel()

	if Hints(TrustLevel("demigod")) != Hints(TrustStranger) {
		t.Error("unknown trust level should fall back to stranger guidance")
	}
}
