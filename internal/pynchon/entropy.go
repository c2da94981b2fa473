package pynchon

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Entropy state names.
const (
	EntropyStable      = "stable"
	EntropyUnsettled   = "unsettled"
	EntropyDecaying    = "decaying"
	EntropyFragmenting = "fragmenting"
	EntropyDissolving  = "dissolving"
)

const (
	entropyDriftPerHour  = 0.001
	entropyVisibleFloor  = 0.2
	sessionEntropyStep   = 0.02
	incrementBaseChance  = 0.3
	incrementLevelWeight = 0.4
)

// ClassifyEntropy maps a level to its state name.
func ClassifyEntropy(level float64) string {
	switch {
	case level < 0.3:
		return EntropyStable
	case level < 0.5:
		return EntropyUnsettled
	case level < 0.7:
		return EntropyDecaying
	case level < 0.9:
		return EntropyFragmenting
	default:
		return EntropyDissolving
	}
}

// Entropy drives the global setting decay. There is no scheduler: the
// upward drift is applied lazily on read, and concurrent writers race
// benignly (last writer wins).
type Entropy struct {
	store *Store

	mu   sync.Mutex
	rng  *rand.Rand
	roll func() float64
	now  func() time.Time
}

// NewEntropy creates an [Entropy] over the given store.
func NewEntropy(store *Store) *Entropy {
	e := &Entropy{
		store: store,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:   time.Now,
	}
	e.roll = func() float64 {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.rng.Float64()
	}
	return e
}

// Read returns the current entropy after applying the upward drift for the
// wall time elapsed since the last write, persisting the drifted value.
func (e *Entropy) Read(ctx context.Context) (SettingState, error) {
	st, err := e.store.GetSetting(ctx)
	if err != nil {
		return SettingState{}, err
	}
	now := e.now()
	if hours := now.Sub(st.UpdatedAt).Hours(); hours > 0 {
		level := min(st.Level+hours*entropyDriftPerHour, 1)
		if level > st.Level {
			st.Level = level
			st.State = ClassifyEntropy(level)
			if err := e.store.UpdateSetting(ctx, st.Level, st.State); err != nil {
				return SettingState{}, err
			}
			st.UpdatedAt = now
		}
	}
	return st, nil
}

// SessionIncrement bumps entropy at session end. The bump lands with
// probability 0.3 + level·0.4, so a decayed setting decays faster.
func (e *Entropy) SessionIncrement(ctx context.Context) (SettingState, error) {
	st, err := e.Read(ctx)
	if err != nil {
		return SettingState{}, err
	}
	if e.roll() >= incrementBaseChance+st.Level*incrementLevelWeight {
		return st, nil
	}
	st.Level = min(st.Level+sessionEntropyStep, 1)
	st.State = ClassifyEntropy(st.Level)
	if err := e.store.UpdateSetting(ctx, st.Level, st.State); err != nil {
		return SettingState{}, err
	}
	return st, nil
}

// Reset is the maintenance hook: the glasses get washed, the chairs go
// back where they belong, and entropy returns to the given floor.
func (e *Entropy) Reset(ctx context.Context, floor float64) (SettingState, error) {
	floor = min(max(floor, 0), 1)
	st := SettingState{Level: floor, State: ClassifyEntropy(floor), UpdatedAt: e.now()}
	if err := e.store.UpdateSetting(ctx, st.Level, st.State); err != nil {
		return SettingState{}, err
	}
	return st, nil
}

// Describe renders the entropy layer prose for a state. Below the visible
// floor the decay stays out of sight and the layer stays silent. The
// level passed in may already carry the arc's entropy modifier.
func (e *Entropy) Describe(level float64) string {
	if level < entropyVisibleFloor {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return pick(entropyProse[ClassifyEntropy(level)], e.rng)
}
