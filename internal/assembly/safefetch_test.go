package assembly

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestFetcherRun_JoinsAllOutcomes(t *testing.T) {
	t.Parallel()

	f := &fetcher{}
	id := fetchIdentity{SessionID: uuid.New()}

	sl := f.run(context.Background(), id, []task{
		{LayerSetting, func(ctx context.Context) (string, error) {
			return "the bar", nil
		}},
		{LayerEntropy, func(ctx context.Context) (string, error) {
			return "", errors.New("singleton unreachable")
		}},
		{LayerZone, func(ctx context.Context) (string, error) {
			panic("trigger table corrupted")
		}},
		{LayerTemporal, func(ctx context.Context) (string, error) {
			return "", nil
		}},
	})

	if got, ok := sl.get(LayerSetting); !ok || got != "the bar" {
		t.Errorf("setting slot = (%q, %v), want present", got, ok)
	}
	for _, layer := range []Layer{LayerEntropy, LayerZone, LayerTemporal} {
		if _, ok := sl.get(layer); ok {
			t.Errorf("layer %s present, want absent", layer)
		}
	}
}

func TestSlots_SetIgnoresEmpty(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerSetting, "")
	if _, ok := s.get(LayerSetting); ok {
		t.Error("empty set created a slot")
	}
}

func TestSlots_Replace(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerMemories, "full framing")

	s.replace(LayerMemories, "truncated framing")
	if got, _ := s.get(LayerMemories); got != "truncated framing" {
		t.Errorf("after replace: %q", got)
	}

	s.replace(LayerMemories, "")
	if _, ok := s.get(LayerMemories); ok {
		t.Error("replace with empty text left the slot present")
	}
}

func TestSlots_Snapshot(t *testing.T) {
	t.Parallel()

	s := newSlots()
	s.set(LayerSetting, "a")
	s.set(LayerBleed, "b")

	snap := s.snapshot()
	if len(snap) != 2 || snap[LayerSetting] != "a" || snap[LayerBleed] != "b" {
		t.Errorf("snapshot = %v", snap)
	}

	// Mutating the snapshot must not touch the slots.
	snap[LayerSetting] = "mutated"
	if got, _ := s.get(LayerSetting); got != "a" {
		t.Errorf("slots mutated through snapshot: %q", got)
	}
}
