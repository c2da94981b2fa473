package assembly

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ofim/contexto/internal/memory"
	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
	"github.com/ofim/contexto/internal/persona"
	"github.com/ofim/contexto/internal/pynchon"
	"github.com/ofim/contexto/internal/relationship"
	"github.com/ofim/contexto/internal/soul"
)

// councilFrames are the built-in opening frames, keyed by council type.
// {topic}, {others} and {phase} are the placeholders. Unknown types fall
// back to the plain "council" frame.
var councilFrames = map[string]string{
	"council":      `You are gathered at O Fim with {others} to discuss: "{topic}" Phase: {phase}.`,
	"debate":       `The table at O Fim has hardened into a debate with {others}. The question on the floor: "{topic}" Phase: {phase}. Hold your position, but hold your chopp tighter.`,
	"symposium":    `Tonight O Fim pretends to be a symposium. With {others} you turn over the matter of "{topic}" Phase: {phase}. Speak as if the humidity itself were taking notes.`,
	"tribunal":     `A tribunal has convened at the back table with {others}. The matter under judgment: "{topic}" Phase: {phase}. Verdicts here are never final, only adjourned.`,
	"vigil":        `You keep vigil at O Fim with {others}, the lights low, circling "{topic}" Phase: {phase}. Nobody says the word for what is being waited out.`,
	"toast":        `Glasses are raised at O Fim with {others}. The occasion, loosely: "{topic}" Phase: {phase}. Sentiment is permitted, briefly.`,
	"intervention": `This is, though nobody will call it that, an intervention. You and {others} have cornered the subject of "{topic}" Phase: {phase}. Gentleness first, then honesty.`,
}

// CouncilRequest identifies one council assembly: several personas around
// one table, one topic, and the perspective of one of them.
type CouncilRequest struct {
	// CouncilType selects the opening frame.
	CouncilType string
	Topic       string
	// Participants are the slugs seated at the table, the perspective
	// persona included or not; relations are filtered to them.
	Participants []string
	// PersonaSlug is the persona whose perspective this context takes.
	PersonaSlug string
	// UserID, when set, adds the user-relationship note.
	UserID    uuid.UUID
	SessionID uuid.UUID
	// CurrentPhase is free-form council-state prose, optional.
	CurrentPhase string
}

// AssembleCouncil builds the system prompt for one persona seated at a
// council. Same safe-fetch discipline as Assemble, fewer layers, and no
// token budgeting: councils stay small.
func (a *Assembler) AssembleCouncil(ctx context.Context, req CouncilRequest) (*Context, error) {
	if err := soul.ValidateSlug(req.PersonaSlug); err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("assembly: council topic must not be empty")
	}

	ctx, span := observe.StartSpan(ctx, "assembly.AssembleCouncil")
	defer span.End()

	start := a.now()
	if a.metrics != nil {
		a.metrics.ActiveAssemblies.Add(ctx, 1)
		defer a.metrics.ActiveAssemblies.Add(ctx, -1)
	}

	p, err := a.personas.GetBySlug(ctx, req.PersonaSlug)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("assembly: unknown persona %q", req.PersonaSlug)
	}

	out := a.assembleCouncil(ctx, req, p)
	out.Metadata.AssemblyDuration = a.now().Sub(start)
	if a.metrics != nil {
		a.metrics.AssemblyDuration.Record(ctx, out.Metadata.AssemblyDuration.Seconds(),
			metric.WithAttributes(observe.Attr("persona", p.Slug)))
	}
	return out, nil
}

func (a *Assembler) assembleCouncil(ctx context.Context, req CouncilRequest, p *persona.Persona) *Context {
	if res := a.validator.Validate(ctx, p); !res.Valid {
		return &Context{
			Components: map[Layer]string{},
			Metadata: Metadata{
				TrustLevel:           relationship.TrustStranger,
				SoulIntegrityFailure: true,
			},
		}
	}

	tasks := []task{
		{LayerCouncilFrame, func(ctx context.Context) (string, error) {
			return a.councilFrame(ctx, p, req), nil
		}},
		{LayerAmbient, func(ctx context.Context) (string, error) {
			st, err := a.entropy.Read(ctx)
			if err != nil {
				return "", err
			}
			return pynchon.AmbientScene(p.Slug, a.now(), st.Level), nil
		}},
		{LayerPersonaRelations, func(ctx context.Context) (string, error) {
			return relationLines(p.Slug, req.Participants), nil
		}},
		{LayerPersonaMemories, func(ctx context.Context) (string, error) {
			mems, err := a.memories.ListPersonaMemories(ctx, p.ID, personaMemoryLimit)
			if err != nil {
				return "", err
			}
			return memory.FramePersonaMemories(mems), nil
		}},
		{LayerEntropy, func(ctx context.Context) (string, error) {
			st, err := a.entropy.Read(ctx)
			if err != nil {
				return "", err
			}
			return a.entropy.Describe(st.Level), nil
		}},
		{LayerZone, func(ctx context.Context) (string, error) {
			return a.zone.Observe(ctx, req.SessionID, req.Topic).Prose, nil
		}},
	}

	if req.UserID != uuid.Nil {
		tasks = append(tasks, task{LayerRelationship, func(ctx context.Context) (string, error) {
			rel, err := a.relationships.GetOrCreate(ctx, req.UserID, p.ID)
			if err != nil {
				return "", err
			}
			return userNote(rel), nil
		}})
	}

	id := fetchIdentity{SessionID: req.SessionID, PersonaID: p.ID, UserID: req.UserID}
	sl := a.fetch.run(ctx, id, tasks)
	prompt := compose(sl, councilOrder)

	meta := Metadata{
		TotalTokens: EstimateTokens(prompt),
		TrustLevel:  relationship.TrustStranger,
	}
	a.logCouncil(ctx, req, id, sl, meta)
	return &Context{Prompt: prompt, Components: sl.snapshot(), Metadata: meta}
}

// councilFrame resolves the opening frame: operator template for this
// council type first, then the built-in frames, then the plain council
// fallback.
func (a *Assembler) councilFrame(ctx context.Context, p *persona.Persona, req CouncilRequest) string {
	tpl := councilFrames["council"]
	if t, ok := councilFrames[req.CouncilType]; ok {
		tpl = t
	}
	if over, err := a.personas.Template(ctx, p.ID, req.CouncilType, a.templatesRequireActive); err == nil && over != nil && over.Content != "" {
		tpl = over.Content
	}
	return renderFrame(tpl, req.Topic, othersPhrase(p.Slug, req.Participants), req.CurrentPhase)
}

// renderFrame fills a frame template. An absent phase removes the whole
// phase clause rather than leaving a dangling label.
func renderFrame(tpl, topic, others, phase string) string {
	out := strings.ReplaceAll(tpl, "{topic}", topic)
	out = strings.ReplaceAll(out, "{others}", others)
	if phase == "" {
		out = strings.ReplaceAll(out, " Phase: {phase}.", "")
		out = strings.ReplaceAll(out, "{phase}", "")
		return strings.TrimSpace(out)
	}
	return strings.ReplaceAll(out, "{phase}", phase)
}

// othersPhrase names the other participants, excluding the perspective
// persona, in a natural list.
func othersPhrase(self string, participants []string) string {
	var others []string
	for _, slug := range participants {
		if slug != self {
			others = append(others, slug)
		}
	}
	switch len(others) {
	case 0:
		return "the other regulars"
	case 1:
		return others[0]
	default:
		return strings.Join(others[:len(others)-1], ", ") + " and " + others[len(others)-1]
	}
}

// userNote renders the user-relationship layer of a council: a single
// line locating the user at the table, at the persona's trust distance.
func userNote(rel *relationship.Relationship) string {
	note := "Also at the table: " + memory.UserRef(rel.TrustLevel) + "."
	if rel.UserSummary != "" {
		note += " What you recall of them: " + rel.UserSummary
	}
	return note
}

func (a *Assembler) logCouncil(ctx context.Context, req CouncilRequest, id fetchIdentity, sl *slots, meta Metadata) {
	if a.fetch.oplog == nil {
		return
	}
	details := map[string]any{
		"council_type": req.CouncilType,
		"topic":        req.Topic,
		"participants": req.Participants,
		"total_tokens": meta.TotalTokens,
	}
	for _, layer := range councilOrder {
		_, ok := sl.get(layer)
		details["has_"+string(layer)] = ok
	}
	a.fetch.oplog.Log(ctx, oplog.Entry{
		Operation: oplog.OpCouncilAssembly,
		SessionID: id.SessionID,
		PersonaID: id.PersonaID,
		UserID:    id.UserID,
		Details:   details,
		Success:   true,
	})
}
