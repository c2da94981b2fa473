package soul

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
	"github.com/ofim/contexto/internal/persona"
)

// minSoulBytes is the smallest plausible soul file. Anything shorter is a
// stub or a truncated write, not a persona.
const minSoulBytes = 100

// cacheTTL bounds how long a validation verdict is trusted before the file is
// re-read. Souls change rarely; 60 seconds keeps tampering detectable without
// hashing on every assembly.
const cacheTTL = 60 * time.Second

// Result is the outcome of a soul integrity check.
type Result struct {
	Valid           bool
	HashMatch       bool
	MissingSections []string
	Reason          string
}

// Validator checks soul files against their registered hashes and structure.
// Verdicts are cached per slug for [cacheTTL].
type Validator struct {
	root    string
	oplog   *oplog.Logger
	metrics *observe.Metrics

	// now is replaceable in tests to step the cache clock.
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cachedResult
}

type cachedResult struct {
	result Result
	at     time.Time
}

// NewValidator creates a Validator over the given personas root. The oplog
// logger may be nil, in which case failures are only counted and logged.
func NewValidator(root string, logger *oplog.Logger, metrics *observe.Metrics) *Validator {
	return &Validator{
		root:    root,
		oplog:   logger,
		metrics: metrics,
		now:     time.Now,
		cache:   make(map[string]cachedResult),
	}
}

// Validate checks the persona's soul file on disk: it must exist, be at least
// [minSoulBytes] long, hash to the registered soul_hash, and carry the
// required sections. An invalid soul is recorded as a critical operator-log
// entry; the caller decides whether the persona speaks.
func (v *Validator) Validate(ctx context.Context, p *persona.Persona) Result {
	v.mu.Lock()
	if c, ok := v.cache[p.Slug]; ok && v.now().Sub(c.at) < cacheTTL {
		v.mu.Unlock()
		return c.result
	}
	v.mu.Unlock()

	r := v.check(p)

	v.mu.Lock()
	v.cache[p.Slug] = cachedResult{result: r, at: v.now()}
	v.mu.Unlock()

	if !r.Valid {
		v.recordFailure(ctx, p, r)
	}
	return r
}

func (v *Validator) check(p *persona.Persona) Result {
	path, err := Find(v.root, p.Slug)
	if err != nil {
		return Result{Reason: "file_missing"}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{Reason: "file_unreadable"}
	}
	if len(content) < minSoulBytes {
		return Result{Reason: "file_too_short"}
	}

	sum := sha256.Sum256(content)
	hashMatch := hex.EncodeToString(sum[:]) == p.SoulHash
	if !hashMatch {
		return Result{HashMatch: false, Reason: "hash_mismatch"}
	}

	missing := MissingSections(Parse(string(content)))
	if len(missing) > 0 {
		return Result{HashMatch: true, MissingSections: missing, Reason: "missing_sections"}
	}

	return Result{Valid: true, HashMatch: true}
}

func (v *Validator) recordFailure(ctx context.Context, p *persona.Persona, r Result) {
	observe.Logger(ctx).Error("soul integrity check failed",
		"persona", p.Slug,
		"reason", r.Reason,
	)
	if v.metrics != nil {
		v.metrics.RecordSoulFailure(ctx, p.Slug)
	}
	if v.oplog != nil {
		details := map[string]any{
			"persona":    p.Slug,
			"reason":     r.Reason,
			"hash_match": r.HashMatch,
			"severity":   "critical",
		}
		if len(r.MissingSections) > 0 {
			details["missing_sections"] = r.MissingSections
		}
		v.oplog.Log(ctx, oplog.Entry{
			Operation: oplog.OpSoulFailure,
			PersonaID: p.ID,
			Details:   details,
			Success:   false,
		})
	}
}

// Invalidate drops the cached verdict for a slug. Used after `souls sync`
// updates the registered hash.
func (v *Validator) Invalidate(slug string) {
	v.mu.Lock()
	delete(v.cache, slug)
	v.mu.Unlock()
}
