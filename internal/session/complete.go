// Package session closes the loop on a finished conversation: one
// transactional pass that settles what the night actually changed — the
// relationship, the memories worth keeping, the persona's opinions, the
// bar's entropy and the session's narrative arc — followed by best-effort
// bookkeeping that is allowed to fail.
//
// Completion is idempotent per session: a successful run leaves a
// session_complete marker in the operator log, and any replay for the same
// session returns early with Skipped set.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ofim/contexto/internal/db"
	"github.com/ofim/contexto/internal/memory"
	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
	"github.com/ofim/contexto/internal/persona"
	"github.com/ofim/contexto/internal/pynchon"
	"github.com/ofim/contexto/internal/relationship"
	"github.com/ofim/contexto/internal/temporal"
	"github.com/ofim/contexto/pkg/provider/embeddings"
	"github.com/ofim/contexto/pkg/provider/extract"
	"github.com/ofim/contexto/pkg/types"
)

// minPreferenceConfidence is the floor below which extracted preferences
// are treated as conversational noise.
const minPreferenceConfidence = 0.5

// memorableImportance marks a candidate worth keeping as a relationship
// exchange on top of being stored as a memory.
const memorableImportance = 0.8

// topicExcerptLimit bounds the hanging-topic excerpt recorded for the next
// session's temporal reflection.
const topicExcerptLimit = 80

// traitAdjustRate scales the session's engagement score into the
// counterforce nudge left on the persona. Engagement runs 0.5–2.0 around a
// baseline of 1.0, so a single session moves the delta by at most ±0.02.
const traitAdjustRate = 0.02

// DB is the narrow database surface completion needs inside and outside
// the transaction. Satisfied by pgxpool.Pool and pgx.Tx.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Request describes one finished session.
type Request struct {
	SessionID   uuid.UUID
	UserID      uuid.UUID
	PersonaID   uuid.UUID
	PersonaName string
	Messages    []types.Message
	StartedAt   time.Time
	EndedAt     time.Time
}

// Result is what a completed session settled into.
type Result struct {
	Relationship                 *relationship.Relationship
	MemoriesStored               int
	MemoriesConsignedToPreterite int
	SettingsExtracted            int
	SessionQuality               float64
	EntropyState                 string
	ArcPhase                     string

	// Skipped is set when the session was already completed and nothing
	// was done.
	Skipped string
}

// Completer runs session completion. All fields except the extractor,
// embedder and metrics are required; those three degrade to doing less.
type Completer struct {
	db        DB
	runTx     func(ctx context.Context, fn func(tx DB) error) error
	oplog     *oplog.Logger
	metrics   *observe.Metrics
	temporal  *temporal.Awareness
	embedder  embeddings.Provider
	extractor extract.Provider
	now       func() time.Time
}

// NewCompleter builds a Completer over a connection pool. The extractor and
// embedder may be nil; completion then stores memories without vectors and
// extracts no preferences.
func NewCompleter(pool *pgxpool.Pool, logger *oplog.Logger, metrics *observe.Metrics,
	tmp *temporal.Awareness, embedder embeddings.Provider, extractor extract.Provider) *Completer {
	return &Completer{
		db: pool,
		runTx: func(ctx context.Context, fn func(tx DB) error) error {
			return db.WithTransaction(ctx, pool, func(tx pgx.Tx) error { return fn(tx) })
		},
		oplog:     logger,
		metrics:   metrics,
		temporal:  tmp,
		embedder:  embedder,
		extractor: extractor,
		now:       time.Now,
	}
}

// Complete settles one finished session. The transactional core either
// lands whole or rolls back with an error; the surrounding best-effort work
// (preference extraction, embeddings, preterite election, temporal touch,
// logging) degrades without failing the call.
func (c *Completer) Complete(ctx context.Context, req Request) (Result, error) {
	if req.SessionID == uuid.Nil || req.UserID == uuid.Nil || req.PersonaID == uuid.Nil {
		return Result{}, fmt.Errorf("session: complete: session, user and persona IDs are required")
	}

	ctx, span := observe.StartSpan(ctx, "session.Complete")
	defer span.End()

	done, err := c.oplog.HasSucceeded(ctx, oplog.OpSessionComplete, req.SessionID)
	if err != nil {
		// An unreadable log cannot confirm a replay; completing twice is
		// recoverable, refusing to complete is not.
		observe.Logger(ctx).Warn("idempotency check failed, completing anyway",
			"session_id", req.SessionID, "error", err)
	}
	if done {
		return Result{Skipped: "already_completed"}, nil
	}

	duration := req.EndedAt.Sub(req.StartedAt)
	if duration < 0 {
		duration = 0
	}
	quality := relationship.Analyze(req.Messages, duration)
	prefs := c.extractPreferences(ctx, req.Messages)
	mems := c.buildMemories(ctx, req)

	var (
		res Result
		rel *relationship.Relationship
	)
	txStart := c.now()
	err = c.runTx(ctx, func(tx DB) error {
		rels := relationship.NewStore(tx)
		memStore := memory.NewStore(tx)
		atmosphere := pynchon.NewStore(tx)

		r, err := rels.GetOrCreate(ctx, req.UserID, req.PersonaID)
		if err != nil {
			return err
		}
		outcome := relationship.Apply(r, quality)
		for _, p := range prefs {
			r.SetPreference(p.Topic, p.Stance)
		}
		if ex := memorableExchange(mems); ex != "" {
			r.RememberExchange(ex)
		}
		if err := rels.Update(ctx, r); err != nil {
			return err
		}

		stored, err := memStore.InsertBatch(ctx, mems)
		if err != nil {
			return err
		}
		res.MemoriesStored = stored

		for _, p := range prefs {
			o := &memory.Opinion{
				PersonaID:  req.PersonaID,
				Topic:      p.Topic,
				Stance:     p.Stance,
				Confidence: p.Confidence,
			}
			if err := memStore.UpsertOpinion(ctx, o); err != nil {
				return err
			}
			res.SettingsExtracted++
		}

		st, err := pynchon.NewEntropy(atmosphere).SessionIncrement(ctx)
		if err != nil {
			return err
		}
		res.EntropyState = st.State

		arc, err := pynchon.NewGravity(atmosphere).Conclude(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if arc != nil {
			res.ArcPhase = string(arc.Phase)
		}

		// Sessions leave a residue on the persona itself: an engaged
		// night pulls it toward the counterforce, a dead one lets Them
		// reclaim a little.
		if delta := traitAdjustRate * (quality.Engagement - 1.0); delta != 0 {
			personas := persona.NewStore(tx)
			pers, err := personas.GetByID(ctx, req.PersonaID)
			if err != nil {
				return err
			}
			if pers != nil {
				if applied := pers.LearnedTraits.Adjust(delta, "session_quality", c.now()); applied != 0 {
					if err := personas.UpdateLearnedTraits(ctx, pers.ID, pers.LearnedTraits); err != nil {
						return err
					}
				}
			}
		}

		if outcome.TrustChanged {
			if err := c.oplog.LogTx(ctx, tx, oplog.Entry{
				Operation: oplog.OpTrustChange,
				SessionID: req.SessionID,
				PersonaID: req.PersonaID,
				UserID:    req.UserID,
				Details: map[string]any{
					"from":  string(outcome.PreviousTrust),
					"to":    string(outcome.NewTrust),
					"delta": outcome.Delta,
				},
				Success: true,
			}); err != nil {
				return err
			}
		}

		rel = r
		return nil
	})
	if c.metrics != nil {
		c.metrics.CompletionDuration.Record(ctx, c.now().Sub(txStart).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordSessionCompletion(ctx, "failed")
		}
		return Result{}, fmt.Errorf("session: complete %s: %w", req.SessionID, err)
	}

	res.Relationship = rel
	res.SessionQuality = quality.Engagement
	res.MemoriesConsignedToPreterite = c.consignPreterite(ctx, req, mems[:res.MemoriesStored])

	if err := c.temporal.Touch(ctx, req.PersonaID, req.UserID, hangingTopic(req.Messages)); err != nil {
		observe.Logger(ctx).Warn("temporal touch failed", "persona_id", req.PersonaID, "error", err)
	}
	if c.metrics != nil {
		c.metrics.RecordSessionCompletion(ctx, "completed")
	}

	// The idempotency marker. A lost write means a future replay, which the
	// upserts above absorb; it never fails the completed session.
	if err := c.oplog.LogSync(ctx, oplog.Entry{
		Operation: oplog.OpSessionComplete,
		SessionID: req.SessionID,
		PersonaID: req.PersonaID,
		UserID:    req.UserID,
		Duration:  duration,
		Details: map[string]any{
			"memories_stored":    res.MemoriesStored,
			"memories_consigned": res.MemoriesConsignedToPreterite,
			"settings_extracted": res.SettingsExtracted,
			"session_quality":    res.SessionQuality,
			"entropy_state":      res.EntropyState,
			"arc_phase":          res.ArcPhase,
			"message_count":      len(req.Messages),
		},
		Success: true,
	}); err != nil {
		observe.Logger(ctx).Warn("session_complete marker lost",
			"session_id", req.SessionID, "error", err)
	}

	return res, nil
}

// extractPreferences asks the extractor for setting preferences,
// best-effort, and drops the low-confidence ones.
func (c *Completer) extractPreferences(ctx context.Context, messages []types.Message) []extract.Preference {
	if c.extractor == nil || len(messages) == 0 {
		return nil
	}
	prefs, err := c.extractor.Extract(ctx, messages)
	if err != nil {
		observe.Logger(ctx).Warn("preference extraction failed",
			"model", c.extractor.ModelID(), "error", err)
		return nil
	}
	kept := prefs[:0]
	for _, p := range prefs {
		if p.Confidence >= minPreferenceConfidence && p.Topic != "" {
			kept = append(kept, p)
		}
	}
	return kept
}

// buildMemories turns transcript candidates into storable memories,
// embedding each one when a provider is available.
func (c *Completer) buildMemories(ctx context.Context, req Request) []*memory.Memory {
	duration := req.EndedAt.Sub(req.StartedAt)
	cands := memory.ExtractCandidates(req.Messages, duration)
	mems := make([]*memory.Memory, 0, len(cands))
	for _, cand := range cands {
		m := &memory.Memory{
			PersonaID:       req.PersonaID,
			UserID:          req.UserID,
			Content:         cand.Summary,
			MemoryType:      cand.MemoryType,
			ImportanceScore: cand.Importance,
		}
		if vec, err := memory.EmbedText(ctx, c.embedder, c.metrics, cand.Summary); err != nil {
			observe.Logger(ctx).Warn("memory embedding failed", "error", err)
		} else {
			m.Embedding = vec
		}
		mems = append(mems, m)
	}
	return mems
}

// consignPreterite runs the election over the memories that were stored and
// consigns the passed-over ones. Each consignment is independent; a failed
// one is logged and skipped.
func (c *Completer) consignPreterite(ctx context.Context, req Request, stored []*memory.Memory) int {
	if len(stored) == 0 {
		return 0
	}
	memStore := memory.NewStore(c.db)
	now := c.now()
	consigned := 0
	for _, m := range stored {
		e := memory.Elect(m, now)
		if e.Status != memory.StatusPreterite {
			continue
		}
		p := &memory.PreteriteMemory{
			OriginalMemoryID: m.ID,
			PersonaID:        m.PersonaID,
			UserID:           m.UserID,
			Reason:           e.Reason,
			OriginalScore:    e.Score,
		}
		if err := memStore.ConsignPreterite(ctx, p); err != nil {
			observe.Logger(ctx).Warn("preterite consignment failed",
				"memory_id", m.ID, "error", err)
			continue
		}
		consigned++
		c.oplog.Log(ctx, oplog.Entry{
			Operation: oplog.OpMemoryConsigned,
			SessionID: req.SessionID,
			PersonaID: req.PersonaID,
			UserID:    req.UserID,
			Details:   map[string]any{"reason": e.Reason, "score": e.Score},
			Success:   true,
		})
	}
	return consigned
}

// memorableExchange picks the one stored moment worth carrying on the
// relationship row itself, if any candidate crossed the bar.
func memorableExchange(mems []*memory.Memory) string {
	best := ""
	bestScore := memorableImportance
	for _, m := range mems {
		if m.ImportanceScore >= bestScore {
			best = m.Content
			bestScore = m.ImportanceScore
		}
	}
	return best
}

// hangingTopic is the last thing the user said, excerpted, recorded so the
// persona can pick the thread back up next time.
func hangingTopic(messages []types.Message) string {
	users := types.UserContents(messages)
	if len(users) == 0 {
		return ""
	}
	last := users[len(users)-1]
	r := []rune(last)
	if len(r) <= topicExcerptLimit {
		return last
	}
	return string(r[:topicExcerptLimit-1]) + "…"
}
