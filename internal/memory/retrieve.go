package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/pkg/provider/embeddings"
)

// Embedding input limits. Text below the minimum is not worth a vector;
// text above the maximum is truncated before the provider call.
const (
	minEmbedChars = 10
	maxEmbedChars = 8000
)

// Retrieval strategies, recorded per run.
const (
	StrategyHybrid         = "hybrid"
	StrategyHybridFallback = "hybrid_fallback_to_importance"
	StrategyImportance     = "importance_and_recency"
)

// Retrieval is the outcome of one retrieval run: the ranked memories and
// the strategy that actually served them.
type Retrieval struct {
	Memories []*Memory
	Strategy string
}

// Retriever fetches the memories most relevant to a query, preferring
// vector similarity when an embeddings provider is configured and degrading
// to importance ordering when it is not.
type Retriever struct {
	store    *Store
	embedder embeddings.Provider
	metrics  *observe.Metrics
}

// NewRetriever creates a [Retriever]. embedder may be nil, in which case
// every retrieval uses the importance strategy. metrics may be nil.
func NewRetriever(store *Store, embedder embeddings.Provider, metrics *observe.Metrics) *Retriever {
	return &Retriever{store: store, embedder: embedder, metrics: metrics}
}

// Retrieve returns up to ten memories for the persona/user pair, ranked for
// relevance to query.
//
// The hybrid strategy runs when the query embeds successfully; an empty
// hybrid result means no stored memory carries an embedding yet, so the run
// falls back to importance ordering. Embedding failures are not errors:
// they demote the run to the importance strategy.
func (r *Retriever) Retrieve(ctx context.Context, personaID, userID uuid.UUID, query string) (Retrieval, error) {
	vec, err := EmbedText(ctx, r.embedder, r.metrics, query)
	if err != nil {
		observe.Logger(ctx).Warn("query embedding failed, using importance strategy", "error", err)
		vec = nil
	}

	if vec == nil {
		mems, err := r.store.ListByImportance(ctx, personaID, userID)
		if err != nil {
			return Retrieval{}, err
		}
		return r.record(ctx, Retrieval{Memories: mems, Strategy: StrategyImportance}), nil
	}

	mems, err := r.store.SearchHybrid(ctx, personaID, userID, vec)
	if err != nil {
		return Retrieval{}, err
	}
	if len(mems) > 0 {
		return r.record(ctx, Retrieval{Memories: mems, Strategy: StrategyHybrid}), nil
	}

	mems, err = r.store.ListByImportance(ctx, personaID, userID)
	if err != nil {
		return Retrieval{}, err
	}
	return r.record(ctx, Retrieval{Memories: mems, Strategy: StrategyHybridFallback}), nil
}

func (r *Retriever) record(ctx context.Context, ret Retrieval) Retrieval {
	if r.metrics != nil {
		r.metrics.RecordRetrieval(ctx, ret.Strategy)
	}
	return ret
}

// EmbedText generates an embedding for text, truncating oversized input.
// Returns (nil, nil) when e is nil or text is too short to bother: a missing
// vector is an expected condition, not an error. Records request count and
// latency when metrics is non-nil.
func EmbedText(ctx context.Context, e embeddings.Provider, metrics *observe.Metrics, text string) ([]float32, error) {
	if e == nil || len(text) < minEmbedChars {
		return nil, nil
	}
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}

	start := time.Now()
	vec, err := e.Embed(ctx, text)
	if metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordEmbeddingRequest(ctx, e.ModelID(), status)
		metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", e.ModelID())),
		)
	}
	if err != nil {
		return nil, err
	}
	return vec, nil
}
