// Package pynchon implements the stylistic atmosphere layers: setting
// entropy, zone boundary detection, They-awareness, counterforce alignment,
// the narrative gravity arc, ambient scene generation, and interface bleed.
// The layers share a small amount of persisted state (internal/db schema)
// and a pool of prose baked into the binary from data/*.yaml.
package pynchon

import (
	_ "embed"
	"fmt"
	"math/rand/v2"

	"gopkg.in/yaml.v3"
)

//go:embed data/entropy.yaml
var entropyYAML []byte

//go:embed data/zone.yaml
var zoneYAML []byte

//go:embed data/paranoia.yaml
var paranoiaYAML []byte

//go:embed data/ambient.yaml
var ambientYAML []byte

//go:embed data/bleed.yaml
var bleedYAML []byte

var (
	entropyProse  = mustLoadBuckets("entropy.yaml", entropyYAML)
	zoneProse     = mustLoadBuckets("zone.yaml", zoneYAML)
	paranoiaProse = mustLoadBuckets("paranoia.yaml", paranoiaYAML)
	ambientProse  = mustLoadAmbient(ambientYAML)
	bleedProse    = mustLoadBleed(bleedYAML)
)

// mustLoadBuckets reads a document whose top-level key is either "states"
// or "buckets"; both map a name to a list of prose lines.
func mustLoadBuckets(name string, data []byte) map[string][]string {
	var doc struct {
		States  map[string][]string `yaml:"states"`
		Buckets map[string][]string `yaml:"buckets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("pynchon: parse %s: %v", name, err))
	}
	if doc.States != nil {
		return doc.States
	}
	return doc.Buckets
}

type ambientPool struct {
	TimeOfNight     map[string][]string `yaml:"time_of_night"`
	Weather         []string            `yaml:"weather"`
	WeatherEntropic []string            `yaml:"weather_entropic"`
	MicroEvents     []string            `yaml:"micro_events"`
}

func mustLoadAmbient(data []byte) ambientPool {
	var doc ambientPool
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("pynchon: parse ambient.yaml: %v", err))
	}
	return doc
}

func mustLoadBleed(data []byte) []string {
	var doc struct {
		Fragments []string `yaml:"fragments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("pynchon: parse bleed.yaml: %v", err))
	}
	return doc.Fragments
}

// pick returns a random element of lines. Empty pools yield the empty
// string.
func pick(lines []string, rng *rand.Rand) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[rng.IntN(len(lines))]
}
