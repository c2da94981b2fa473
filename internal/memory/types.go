// Package memory implements the hybrid memory subsystem: storage and
// retrieval of per-user memories, extraction of memory candidates from
// session transcripts, the election that decides which memories are kept,
// and the preterite — the passed-over memories that occasionally surface
// again in corrupted form.
//
// Retrieval is hybrid: when an embeddings provider is available, memories
// are ranked by a weighted blend of vector similarity and importance;
// otherwise ranking falls back to importance and recency. Every retrieval
// records which strategy actually served it.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Memory types stored in the memories table.
const (
	TypeInteraction = "interaction"
	TypeLearning    = "learning"
	TypeInsight     = "insight"
)

// Election statuses. Elected memories stay in active storage, borderline
// memories stay but are flagged low-value, preterite memories are consigned.
const (
	StatusElect      = "elect"
	StatusBorderline = "borderline"
	StatusPreterite  = "preterite"
)

// Preterite reasons, in precedence order. The first reason whose condition
// holds is the one recorded.
const (
	ReasonTooOrdinary         = "too_ordinary"
	ReasonNoWitness           = "no_witness"
	ReasonDeemedInsignificant = "deemed_insignificant"
	ReasonEntropyClaimed      = "entropy_claimed"
	ReasonOvershadowed        = "overshadowed"
	ReasonPatternMismatch     = "pattern_mismatch"
)

// Memory is one row of the memories table: something a persona retained
// about a user.
type Memory struct {
	ID              uuid.UUID
	PersonaID       uuid.UUID
	UserID          uuid.UUID
	Content         string
	MemoryType      string
	ImportanceScore float64

	// Embedding is nil when no vector was generated for this memory
	// (provider unavailable, or content too short to embed).
	Embedding []float32

	AccessCount  int
	LastAccessed *time.Time
	CreatedAt    time.Time
}

// PreteriteMemory is a passed-over memory: it lost the election and was
// consigned, but remains joined to its original row so it can surface.
type PreteriteMemory struct {
	ID               uuid.UUID
	OriginalMemoryID uuid.UUID
	PersonaID        uuid.UUID
	UserID           uuid.UUID
	Reason           string
	OriginalScore    float64
	SurfaceCount     int
	LastSurfaced     *time.Time
	CreatedAt        time.Time

	// Content is the original memory's text, populated on joined reads.
	Content string
}

// PersonaMemory is a persona's own reflection, independent of any user.
// These feed council assemblies and the persona_memories context layer.
type PersonaMemory struct {
	ID            uuid.UUID
	PersonaID     uuid.UUID
	Content       string
	MemoryType    string
	SourcePersona string
	Importance    float64
	CreatedAt     time.Time
}

// Opinion is a persona's learned stance on a topic, reinforced each time
// the persona expresses it.
type Opinion struct {
	ID              uuid.UUID
	PersonaID       uuid.UUID
	Topic           string
	Stance          string
	Confidence      float64
	ExpressionCount int
	LastExpressed   *time.Time
	CreatedAt       time.Time
}
