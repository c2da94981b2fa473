package assembly

import "testing"

func TestCompose_Order(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerBleed, "bleed")
	s.set(LayerSetting, "setting")
	s.set(LayerMemories, "memories")

	want := "setting\nmemories\nbleed"
	if got := compose(s, composeOrder); got != want {
		t.Errorf("compose() = %q, want %q", got, want)
	}
}

func TestCompose_AbsentLayersLeaveNoTrace(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerZone, "the zone presses close")

	if got := compose(s, composeOrder); got != "the zone presses close" {
		t.Errorf("compose() = %q, want single layer without separators", got)
	}
}

func TestCompose_TrimsTrailingWhitespace(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerSetting, "setting")
	s.set(LayerBleed, "fragment\n")

	if got := compose(s, composeOrder); got != "setting\nfragment" {
		t.Errorf("compose() = %q, want trailing newline trimmed", got)
	}
}

func TestCompose_Empty(t *testing.T) {
	t.Parallel()

	if got := compose(newSlots(), composeOrder); got != "" {
		t.Errorf("compose(empty) = %q, want empty", got)
	}
}

func TestCostExcluding_MatchesComposedCost(t *testing.T) {
	t.Parallel()

	// Lengths chosen so each costed unit is a whole number of tokens;
	// per-layer rounding then matches the composed total exactly.
	s := newSlots()
	s.set(LayerSetting, "botequim")       // 8 chars
	s.set(LayerRelationship, "strange")   // separator + 7 chars
	s.set(LayerEntropy, "humidit")        // separator + 7 chars

	// With no memories present, excluding them costs the whole composition.
	want := EstimateTokens(compose(s, composeOrder))
	if got := costExcluding(s, composeOrder, LayerMemories); got != want {
		t.Errorf("costExcluding() = %d, want %d", got, want)
	}
}

func TestCostExcluding_SkipsLayer(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerSetting, "abcd")
	s.set(LayerMemories, "a very long framed memory block")

	// Only the setting should be counted, as the first layer.
	if got := costExcluding(s, composeOrder, LayerMemories); got != 1 {
		t.Errorf("costExcluding() = %d, want 1", got)
	}
}
