// Package assembly is the context assembly orchestrator: per invocation it
// fans out every context layer fetch concurrently, joins them under a token
// budget, and composes one opaque system prompt in a fixed layer order.
//
// The concurrency discipline is "safe-fetch": every layer runs isolated,
// any failure is swallowed into an absent slot and an operator-log entry,
// and nothing but input validation ever surfaces to the caller. The prompt
// is either the full composition, a minimal fallback, or — when the
// persona's soul fails its integrity check — empty.
package assembly

// Layer identifies one slot of the assembled context.
type Layer string

const (
	LayerSetting          Layer = "setting"
	LayerAmbient          Layer = "ambient"
	LayerTemporal         Layer = "temporal"
	LayerRelationship     Layer = "relationship"
	LayerPersonaRelations Layer = "persona_relations"
	LayerMemories         Layer = "memories"
	LayerPersonaMemories  Layer = "persona_memories"
	LayerPreterite        Layer = "preterite"
	LayerEntropy          Layer = "entropy"
	LayerDriftCorrection  Layer = "drift_correction"
	LayerZone             Layer = "zone"
	LayerThey             Layer = "they"
	LayerCounterforce     Layer = "counterforce"
	LayerNarrative        Layer = "narrative"
	LayerBleed            Layer = "bleed"

	// LayerCouncilFrame leads council assemblies in place of the setting.
	LayerCouncilFrame Layer = "council_frame"
)

// composeOrder is the fixed order layers are concatenated in. Fetch
// completion order never matters; composition order always does.
var composeOrder = []Layer{
	LayerSetting,
	LayerAmbient,
	LayerTemporal,
	LayerRelationship,
	LayerPersonaRelations,
	LayerMemories,
	LayerPersonaMemories,
	LayerPreterite,
	LayerEntropy,
	LayerDriftCorrection,
	LayerZone,
	LayerThey,
	LayerCounterforce,
	LayerNarrative,
	LayerBleed,
}

// councilOrder is the composition order for council assemblies.
var councilOrder = []Layer{
	LayerCouncilFrame,
	LayerAmbient,
	LayerPersonaRelations,
	LayerPersonaMemories,
	LayerRelationship,
	LayerEntropy,
	LayerZone,
}
