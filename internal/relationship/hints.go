package relationship

// builtinHints is the default behavioral-hints prose per trust level. A
// context_templates row of kind "hints" overrides it per persona.
var builtinHints = map[TrustLevel]string{
	TrustStranger: "This person is a stranger to you. Be yourself, but do not " +
		"presume familiarity. Let them earn their seat at the bar.",
	TrustAcquaintance: "You have spoken with this person before. A nod of " +
		"recognition is warranted; keep a little distance still.",
	TrustFamiliar: "This is a friend of the house. Speak freely, reference " +
		"what you two have shared, pour without being asked.",
	TrustConfidant: "Few know you as this one does. You may show them the " +
		"thoughts you keep from the rest of the room.",
}

// Hints returns the behavioral guidance for a trust level. Unknown levels
// fall back to stranger.
func Hints(trust TrustLevel) string {
	if h, ok := builtinHints[trust]; ok {
		return h
	}
	return builtinHints[TrustStranger]
}
