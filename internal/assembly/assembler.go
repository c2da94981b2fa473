package assembly

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ofim/contexto/internal/config"
	"github.com/ofim/contexto/internal/drift"
	"github.com/ofim/contexto/internal/memory"
	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
	"github.com/ofim/contexto/internal/persona"
	"github.com/ofim/contexto/internal/pynchon"
	"github.com/ofim/contexto/internal/relationship"
	"github.com/ofim/contexto/internal/soul"
	"github.com/ofim/contexto/internal/temporal"
)

// maxContextMemories caps how many retrieved memories enter the prompt
// before token budgeting.
const maxContextMemories = 5

// personaMemoryLimit caps the persona's own reflections per prompt.
const personaMemoryLimit = 5

// touchTimeout bounds the fire-and-forget accessed-count update.
const touchTimeout = 5 * time.Second

// Options tune one assembly invocation. Zero-valued booleans mean the layer
// groups are skipped, so callers normally start from [DefaultOptions].
type Options struct {
	// MaxTokens overrides the configured prompt budget; 0 keeps it.
	MaxTokens int
	// IncludeSetting controls the setting layer.
	IncludeSetting bool
	// IncludePynchon controls the atmospheric layers: ambient, entropy,
	// preterite, zone, they, counterforce, narrative and bleed.
	IncludePynchon bool
	// ExchangeCount is how many exchanges deep the session already is.
	// It is recorded on the assembly log entry.
	ExchangeCount int
}

// DefaultOptions returns the options every ordinary invocation wants: all
// layers on, configured budget.
func DefaultOptions() Options {
	return Options{IncludeSetting: true, IncludePynchon: true}
}

// Request identifies one context assembly invocation.
type Request struct {
	PersonaSlug  string
	UserID       uuid.UUID
	SessionID    uuid.UUID
	Query        string
	PrevResponse string
	Opts         Options
}

// Metadata describes what went into an assembled context.
type Metadata struct {
	TotalTokens          int
	Truncated            bool
	MemoriesIncluded     int
	DriftScore           float64
	TrustLevel           relationship.TrustLevel
	EntropyLevel         float64
	AssemblyDuration     time.Duration
	SoulIntegrityFailure bool
	FallbackUsed         bool
}

// Context is one assembled system prompt plus its per-layer components.
// Layer presence in Components doubles as the per-layer booleans.
type Context struct {
	Prompt     string
	Components map[Layer]string
	Metadata   Metadata
}

// Assembler owns the full layer stack and produces contexts from it.
type Assembler struct {
	personas      *persona.Store
	relationships *relationship.Store
	memories      *memory.Store
	retriever     *memory.Retriever
	surfacer      *memory.Surfacer
	markers       *soul.Loader
	validator     *soul.Validator
	drifts        *drift.Store
	atmosphere    *pynchon.Store
	entropy       *pynchon.Entropy
	zone          *pynchon.Zone
	they          *pynchon.They
	gravity       *pynchon.Gravity
	bleeder       *pynchon.Bleeder
	temporal      *temporal.Awareness
	metrics       *observe.Metrics
	fetch         fetcher

	maxTokens              int
	tokenBuffer            int
	driftThreshold         float64
	templatesRequireActive bool

	now func() time.Time
}

// Deps collects the assembler's collaborators. All fields are required
// except Metrics and Oplog, which degrade to no-ops when nil.
type Deps struct {
	Personas      *persona.Store
	Relationships *relationship.Store
	Memories      *memory.Store
	Retriever     *memory.Retriever
	Surfacer      *memory.Surfacer
	Markers       *soul.Loader
	Validator     *soul.Validator
	Drifts        *drift.Store
	Atmosphere    *pynchon.Store
	Entropy       *pynchon.Entropy
	Zone          *pynchon.Zone
	They          *pynchon.They
	Gravity       *pynchon.Gravity
	Bleeder       *pynchon.Bleeder
	Temporal      *temporal.Awareness
	Oplog         *oplog.Logger
	Metrics       *observe.Metrics
}

// New builds an Assembler from its collaborators and configuration.
func New(d Deps, cfg *config.Config) *Assembler {
	return &Assembler{
		personas:               d.Personas,
		relationships:          d.Relationships,
		memories:               d.Memories,
		retriever:              d.Retriever,
		surfacer:               d.Surfacer,
		markers:                d.Markers,
		validator:              d.Validator,
		drifts:                 d.Drifts,
		atmosphere:             d.Atmosphere,
		entropy:                d.Entropy,
		zone:                   d.Zone,
		they:                   d.They,
		gravity:                d.Gravity,
		bleeder:                d.Bleeder,
		temporal:               d.Temporal,
		metrics:                d.Metrics,
		fetch:                  fetcher{oplog: d.Oplog, metrics: d.Metrics},
		maxTokens:              cfg.Assembly.MaxTokens,
		tokenBuffer:            cfg.Assembly.TokenBuffer,
		driftThreshold:         cfg.Drift.DefaultThreshold,
		templatesRequireActive: cfg.Assembly.TemplatesRequireActive,
		now:                    time.Now,
	}
}

// Assemble builds the full system prompt for one invocation. The only
// errors it returns are input validation failures; everything downstream
// degrades per the safe-fetch discipline, down to a minimal fallback
// prompt if assembly itself panics.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Context, error) {
	if err := soul.ValidateSlug(req.PersonaSlug); err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}

	ctx, span := observe.StartSpan(ctx, "assembly.Assemble")
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

	out := a.assembleSafe(ctx, req, p)
	out.Metadata.AssemblyDuration = a.now().Sub(start)
	if a.metrics != nil {
		a.metrics.AssemblyDuration.Record(ctx, out.Metadata.AssemblyDuration.Seconds(),
			metric.WithAttributes(observe.Attr("persona", p.Slug)))
	}
	return out, nil
}

// assembleSafe guards the orchestrator itself: a panic anywhere outside
// the per-layer safe-fetch still yields a usable minimal prompt.
func (a *Assembler) assembleSafe(ctx context.Context, req Request, p *persona.Persona) (out *Context) {
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("assembly collapsed to fallback",
				"persona", p.Slug, "panic", r)
			if a.metrics != nil {
				a.metrics.Fallbacks.Add(ctx, 1,
					metric.WithAttributes(observe.Attr("persona", p.Slug)))
			}
			out = &Context{
				Prompt:     DefaultSetting,
				Components: map[Layer]string{LayerSetting: DefaultSetting},
				Metadata: Metadata{
					TotalTokens:  EstimateTokens(DefaultSetting),
					TrustLevel:   relationship.TrustStranger,
					FallbackUsed: true,
				},
			}
		}
	}()
	return a.assemble(ctx, req, p)
}

func (a *Assembler) assemble(ctx context.Context, req Request, p *persona.Persona) *Context {
	if res := a.validator.Validate(ctx, p); !res.Valid {
		return &Context{
			Components: map[Layer]string{},
			Metadata: Metadata{
				TrustLevel:           relationship.TrustStranger,
				SoulIntegrityFailure: true,
			},
		}
	}

	// Cross-layer observations land here; each writing task takes the lock.
	var (
		statsMu          sync.Mutex
		trust            = relationship.TrustStranger
		driftScore       float64
		entropyLevel     float64
		memoriesIncluded int
	)

	tasks := []task{
		{LayerRelationship, func(ctx context.Context) (string, error) {
			rel, err := a.relationships.GetOrCreate(ctx, req.UserID, p.ID)
			if err != nil {
				return "", err
			}
			statsMu.Lock()
			trust = rel.TrustLevel
			statsMu.Unlock()
			return a.relationshipProse(ctx, p, rel), nil
		}},
		{LayerMemories, func(ctx context.Context) (string, error) {
			// The relationship upsert is idempotent, so racing the
			// relationship task is harmless.
			rel, err := a.relationships.GetOrCreate(ctx, req.UserID, p.ID)
			if err != nil {
				return "", err
			}
			ret, err := a.retriever.Retrieve(ctx, p.ID, req.UserID, req.Query)
			if err != nil {
				return "", err
			}
			sel := memory.SelectForContext(ret.Memories, req.Query, maxContextMemories)
			if len(sel) == 0 {
				return "", nil
			}
			a.touchAccessed(sel)
			statsMu.Lock()
			memoriesIncluded = len(sel)
			statsMu.Unlock()
			return memory.Frame(sel, rel.TrustLevel), nil
		}},
		{LayerPersonaRelations, func(ctx context.Context) (string, error) {
			return relationLines(p.Slug, nil), nil
		}},
		{LayerPersonaMemories, func(ctx context.Context) (string, error) {
			mems, err := a.memories.ListPersonaMemories(ctx, p.ID, personaMemoryLimit)
			if err != nil {
				return "", err
			}
			return memory.FramePersonaMemories(mems), nil
		}},
		{LayerTemporal, func(ctx context.Context) (string, error) {
			return a.temporal.Reflect(ctx, p.ID)
		}},
	}

	if req.Opts.IncludeSetting {
		tasks = append(tasks, task{LayerSetting, func(ctx context.Context) (string, error) {
			return a.settingFor(ctx, p), nil
		}})
	}

	if req.PrevResponse != "" && p.DriftCheckEnabled {
		tasks = append(tasks, task{LayerDriftCorrection, func(ctx context.Context) (string, error) {
			threshold := p.DriftThreshold
			if threshold == 0 {
				threshold = a.driftThreshold
			}
			m := a.markers.Load(p.Slug)
			an := drift.Analyze(req.PrevResponse, m, threshold)
			statsMu.Lock()
			driftScore = an.Score
			statsMu.Unlock()
			if an.ShouldAlert() {
				a.recordAlert(ctx, p, req.SessionID, an)
			}
			return drift.GenerateCorrection(an, p.Name, m), nil
		}})
	}

	if req.Opts.IncludePynchon {
		tasks = append(tasks,
			task{LayerAmbient, func(ctx context.Context) (string, error) {
				st, err := a.entropy.Read(ctx)
				if err != nil {
					return "", err
				}
				return pynchon.AmbientScene(p.Slug, a.now(), st.Level), nil
			}},
			task{LayerEntropy, func(ctx context.Context) (string, error) {
				st, err := a.entropy.Read(ctx)
				if err != nil {
					return "", err
				}
				statsMu.Lock()
				entropyLevel = st.Level
				statsMu.Unlock()
				arc, err := a.atmosphere.GetArc(ctx, req.SessionID)
				if err != nil {
					return "", err
				}
				level := min(st.Level*pynchon.Effects(arc).EntropyModifier, 1)
				return a.entropy.Describe(level), nil
			}},
			task{LayerPreterite, func(ctx context.Context) (string, error) {
				arc, err := a.atmosphere.GetArc(ctx, req.SessionID)
				if err != nil {
					return "", err
				}
				mult := pynchon.Effects(arc).PreteriteChanceMultiplier
				return a.surfacer.Surface(ctx, p.ID, req.UserID, mult)
			}},
			task{LayerZone, func(ctx context.Context) (string, error) {
				return a.zone.Observe(ctx, req.SessionID, req.Query).Prose, nil
			}},
			task{LayerThey, func(ctx context.Context) (string, error) {
				st, err := a.they.Observe(ctx, req.SessionID, req.Query)
				if err != nil {
					return "", err
				}
				return a.they.Describe(st), nil
			}},
			task{LayerCounterforce, func(ctx context.Context) (string, error) {
				return pynchon.Align(p.Slug, p.LearnedTraits.CounterforceDelta).Describe(), nil
			}},
			task{LayerNarrative, func(ctx context.Context) (string, error) {
				arc, err := a.gravity.Observe(ctx, req.SessionID, req.Query)
				if err != nil {
					return "", err
				}
				if arc == nil {
					return "", nil
				}
				return arc.Describe(), nil
			}},
			task{LayerBleed, func(ctx context.Context) (string, error) {
				st, err := a.entropy.Read(ctx)
				if err != nil {
					return "", err
				}
				return strings.Join(a.bleeder.Emit(st.Level), "\n"), nil
			}},
		)
	}

	id := fetchIdentity{SessionID: req.SessionID, PersonaID: p.ID, UserID: req.UserID}
	sl := a.fetch.run(ctx, id, tasks)

	maxTokens := req.Opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	truncated := false
	if framed, ok := sl.get(LayerMemories); ok {
		budget := maxTokens - costExcluding(sl, composeOrder, LayerMemories) - a.tokenBuffer
		fitted, cut := budgetMemories(framed, budget)
		if cut {
			truncated = true
			sl.replace(LayerMemories, fitted)
			statsMu.Lock()
			memoriesIncluded = framedLineCount(fitted)
			statsMu.Unlock()
			if a.metrics != nil {
				a.metrics.MemoryTruncations.Add(ctx, 1,
					metric.WithAttributes(observe.Attr("persona", p.Slug)))
			}
		}
	}

	prompt := compose(sl, composeOrder)

	statsMu.Lock()
	meta := Metadata{
		TotalTokens:      EstimateTokens(prompt),
		Truncated:        truncated,
		MemoriesIncluded: memoriesIncluded,
		DriftScore:       driftScore,
		TrustLevel:       trust,
		EntropyLevel:     entropyLevel,
	}
	statsMu.Unlock()

	a.logAssembly(ctx, req, id, sl, meta, maxTokens)
	return &Context{Prompt: prompt, Components: sl.snapshot(), Metadata: meta}
}

// relationshipProse renders the behavioral-hints layer: trust-level hints
// (operator template override first), then whatever the persona holds about
// this particular user.
func (a *Assembler) relationshipProse(ctx context.Context, p *persona.Persona, rel *relationship.Relationship) string {
	hints := relationship.Hints(rel.TrustLevel)
	if tpl, err := a.personas.Template(ctx, p.ID, templateHints, a.templatesRequireActive); err == nil && tpl != nil && tpl.Content != "" {
		hints = tpl.Content
	}

	var sb strings.Builder
	sb.WriteString(hints)
	if rel.UserSummary != "" {
		sb.WriteString("\nWhat you recall of them: ")
		sb.WriteString(rel.UserSummary)
	}
	if n := len(rel.MemorableExchanges); n > 0 {
		sb.WriteString("\nAn exchange that stuck with you: ")
		sb.WriteString(rel.MemorableExchanges[n-1])
	}
	return sb.String()
}

// relationLines renders the persona-relations layer, optionally filtered
// to the given participants.
func relationLines(slug string, participants []string) string {
	lines := persona.RelationsAmong(slug, participants)
	if len(lines) == 0 {
		return ""
	}
	return "The regulars you know:\n" + strings.Join(lines, "\n")
}

// touchAccessed bumps access counters off the request path. The prompt
// never waits on bookkeeping.
func (a *Assembler) touchAccessed(sel []*memory.Memory) {
	ids := make([]uuid.UUID, len(sel))
	for i, m := range sel {
		ids[i] = m.ID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := a.memories.TouchAccessed(ctx, ids); err != nil {
			observe.Logger(ctx).Warn("memory access touch lost", "error", err)
		}
	}()
}

func (a *Assembler) recordAlert(ctx context.Context, p *persona.Persona, sessionID uuid.UUID, an drift.Analysis) {
	if a.metrics != nil {
		a.metrics.RecordDriftAlert(ctx, string(an.Severity))
	}
	if err := a.drifts.InsertAlert(ctx, drift.Alert{
		PersonaID: p.ID,
		SessionID: sessionID,
		Score:     an.Score,
		Severity:  an.Severity,
		Signals:   an.Signals(),
	}); err != nil {
		observe.Logger(ctx).Warn("drift alert lost", "persona", p.Slug, "error", err)
	}
}

// logAssembly emits the fire-and-forget context_assembly log entry.
func (a *Assembler) logAssembly(ctx context.Context, req Request, id fetchIdentity, sl *slots, meta Metadata, maxTokens int) {
	if a.fetch.oplog == nil {
		return
	}
	details := map[string]any{
		"total_tokens":     meta.TotalTokens,
		"budget_remaining": maxTokens - meta.TotalTokens,
		"truncated":        meta.Truncated,
		"trust_level":      string(meta.TrustLevel),
		"exchange_count":   req.Opts.ExchangeCount,
	}
	for _, layer := range composeOrder {
		_, ok := sl.get(layer)
		details["has_"+string(layer)] = ok
	}
	a.fetch.oplog.Log(ctx, oplog.Entry{
		Operation: oplog.OpContextAssembly,
		SessionID: id.SessionID,
		PersonaID: id.PersonaID,
		UserID:    id.UserID,
		Details:   details,
		Success:   true,
	})
}

// framedLineCount counts memories in budgeted framing output, one per line.
func framedLineCount(framed string) int {
	if framed == "" {
		return 0
	}
	return strings.Count(framed, "\n") + 1
}
