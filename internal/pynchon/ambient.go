package pynchon

import (
	"hash/fnv"
	"io"
	"math/rand/v2"
	"strings"
	"time"
)

// microEventChance is the probability that an ambient scene carries a
// micro-event on top of time and weather.
const microEventChance = 0.6

// AmbientScene composes the ambient layer: time of night, weather, and
// maybe a micro-event. Selection is deterministic for a given persona and
// clock hour, so the weather cannot change between two invocations in the
// same hour. At elevated entropy the weather pool goes strange. An empty
// pool yields an empty scene.
func AmbientScene(slug string, at time.Time, entropyLevel float64) string {
	rng := ambientRNG(slug, at)

	var parts []string
	if line := pick(ambientProse.TimeOfNight[nightBucket(at.Hour())], rng); line != "" {
		parts = append(parts, line)
	}

	weather := ambientProse.Weather
	if entropyLevel >= 0.5 && len(ambientProse.WeatherEntropic) > 0 {
		weather = ambientProse.WeatherEntropic
	}
	if line := pick(weather, rng); line != "" {
		parts = append(parts, line)
	}

	if rng.Float64() < microEventChance {
		if line := pick(ambientProse.MicroEvents, rng); line != "" {
			parts = append(parts, line)
		}
	}

	return strings.Join(parts, " ")
}

// ambientRNG seeds a generator from the persona and the wall clock hour in
// the caller's time zone.
func ambientRNG(slug string, at time.Time) *rand.Rand {
	h := fnv.New64a()
	io.WriteString(h, slug)
	io.WriteString(h, at.Format("2006-01-02T15"))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed))
}

// nightBucket maps an hour of day to a time-of-night pool.
func nightBucket(hour int) string {
	switch {
	case hour >= 18 && hour < 22:
		return "dusk"
	case hour >= 22 || hour < 2:
		return "night"
	case hour < 5:
		return "deep_night"
	case hour < 8:
		return "predawn"
	default:
		return "daylight"
	}
}
