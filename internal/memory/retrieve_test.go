package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// stubEmbedder implements embeddings.Provider with canned responses.
type stubEmbedder struct {
	vec      []float32
	err      error
	calls    int
	lastText string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	s.lastText = text
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vec) }
func (s *stubEmbedder) ModelID() string { return "stub-embedder" }

func TestRetriever_HybridServed(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vec: []float32{0.5, 0.5}}
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "embedding <=>") {
				t.Errorf("expected hybrid query, got:\n%s", sql)
			}
			return &mockRows{data: [][]any{
				memoryRow(uuid.New(), uuid.New(), uuid.New(), "remembered thing", 0.7),
			}}, nil
		},
	}

	ret, err := NewRetriever(NewStore(db), emb, nil).
		Retrieve(context.Background(), uuid.New(), uuid.New(), "what do you remember")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ret.Strategy != StrategyHybrid {
		t.Errorf("strategy = %q, want %q", ret.Strategy, StrategyHybrid)
	}
	if len(ret.Memories) != 1 {
		t.Errorf("got %d memories, want 1", len(ret.Memories))
	}
	if emb.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", emb.calls)
	}
}

func TestRetriever_FallbackWhenHybridEmpty(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vec: []float32{1}}
	call := 0
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			call++
			switch call {
			case 1:
				if !strings.Contains(sql, "embedding <=>") {
					t.Errorf("first query should be hybrid:\n%s", sql)
				}
				return &mockRows{}, nil
			case 2:
				if !strings.Contains(sql, "ORDER BY importance_score DESC") {
					t.Errorf("second query should be importance fallback:\n%s", sql)
				}
				return &mockRows{data: [][]any{
					memoryRow(uuid.New(), uuid.New(), uuid.New(), "fallback memory", 0.4),
				}}, nil
			default:
				t.Fatalf("unexpected query #%d", call)
				return nil, nil
			}
		},
	}

	ret, err := NewRetriever(NewStore(db), emb, nil).
		Retrieve(context.Background(), uuid.New(), uuid.New(), "anything at all")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ret.Strategy != StrategyHybridFallback {
		t.Errorf("strategy = %q, want %q", ret.Strategy, StrategyHybridFallback)
	}
	if len(ret.Memories) != 1 || ret.Memories[0].Content != "fallback memory" {
		t.Errorf("unexpected memories: %+v", ret.Memories)
	}
}

func TestRetriever_ImportanceWhenNoEmbedder(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			if strings.Contains(sql, "embedding <=>") {
				t.Errorf("hybrid query must not run without an embedder:\n%s", sql)
			}
			return &mockRows{}, nil
		},
	}

	ret, err := NewRetriever(NewStore(db), nil, nil).
		Retrieve(context.Background(), uuid.New(), uuid.New(), "a query of some length")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ret.Strategy != StrategyImportance {
		t.Errorf("strategy = %q, want %q", ret.Strategy, StrategyImportance)
	}
}

func TestRetriever_ImportanceWhenEmbedFails(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{err: errors.New("model offline")}
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			if strings.Contains(sql, "embedding <=>") {
				t.Errorf("hybrid query must not run after embed failure:\n%s", sql)
			}
			return &mockRows{}, nil
		},
	}

	ret, err := NewRetriever(NewStore(db), emb, nil).
		Retrieve(context.Background(), uuid.New(), uuid.New(), "a query of some length")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ret.Strategy != StrategyImportance {
		t.Errorf("strategy = %q, want %q", ret.Strategy, StrategyImportance)
	}
	if emb.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", emb.calls)
	}
}

func TestRetriever_DBErrorPropagates(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return nil, errors.New("down")
		},
	}

	_, err := NewRetriever(NewStore(db), nil, nil).
		Retrieve(context.Background(), uuid.New(), uuid.New(), "a query of some length")
	if err == nil || !strings.Contains(err.Error(), "memory: list by importance") {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
}

func TestEmbedText(t *testing.T) {
	t.Parallel()

	t.Run("nil provider", func(t *testing.T) {
		t.Parallel()
		vec, err := EmbedText(context.Background(), nil, nil, "long enough text")
		if vec != nil || err != nil {
			t.Errorf("EmbedText = (%v, %v), want (nil, nil)", vec, err)
		}
	})

	t.Run("short text skipped", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{vec: []float32{1}}
		vec, err := EmbedText(context.Background(), emb, nil, "too short")
		if vec != nil || err != nil {
			t.Errorf("EmbedText = (%v, %v), want (nil, nil)", vec, err)
		}
		if emb.calls != 0 {
			t.Errorf("embedder called %d times for short text", emb.calls)
		}
	})

	t.Run("oversized input truncated", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{vec: []float32{1}}
		_, err := EmbedText(context.Background(), emb, nil, strings.Repeat("x", maxEmbedChars+500))
		if err != nil {
			t.Fatalf("EmbedText: %v", err)
		}
		if len(emb.lastText) != maxEmbedChars {
			t.Errorf("embed input length = %d, want %d", len(emb.lastText), maxEmbedChars)
		}
	})

	t.Run("provider error returned", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{err: errors.New("quota")}
		_, err := EmbedText(context.Background(), emb, nil, "long enough text")
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
