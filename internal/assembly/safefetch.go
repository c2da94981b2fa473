package assembly

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ofim/contexto/internal/observe"
	"github.com/ofim/contexto/internal/oplog"
)

// producer fetches the text of one context layer. An empty string with a
// nil error means the layer has nothing to say this invocation.
type producer func(ctx context.Context) (string, error)

// task pairs a layer with its producer for one assembly run.
type task struct {
	layer Layer
	fn    producer
}

// slots collects layer results across concurrent fetches. Absent layers
// are simply missing from the map.
type slots struct {
	mu sync.Mutex
	m  map[Layer]string
}

func newSlots() *slots {
	return &slots{m: make(map[Layer]string)}
}

func (s *slots) set(layer Layer, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.m[layer] = text
	s.mu.Unlock()
}

// replace overwrites a layer unconditionally; empty text removes it.
// Used after token budgeting rewrites the memories layer.
func (s *slots) replace(layer Layer, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.m, layer)
		return
	}
	s.m[layer] = text
}

// snapshot copies the present layers out for the caller-facing component
// map.
func (s *slots) snapshot() map[Layer]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Layer]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *slots) get(layer Layer) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.m[layer]
	return text, ok
}

// fetchIdentity carries the IDs stamped onto error_graceful log entries.
type fetchIdentity struct {
	SessionID uuid.UUID
	PersonaID uuid.UUID
	UserID    uuid.UUID
}

// fetcher runs producers under the safe-fetch discipline: a failing or
// panicking layer yields an absent slot, an error_graceful operator-log
// entry, and a metric — never an error to the orchestrator.
type fetcher struct {
	oplog   *oplog.Logger
	metrics *observe.Metrics
}

// run executes all tasks concurrently and joins them. The returned slots
// hold every layer that produced text; everything else failed or was
// silent. run itself never fails.
func (f *fetcher) run(ctx context.Context, id fetchIdentity, tasks []task) *slots {
	out := newSlots()
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			out.set(t.layer, f.safeFetch(gctx, id, t.layer, t.fn))
			return nil
		})
	}
	// Tasks only ever return nil; the group is a join point, not an error
	// channel.
	_ = g.Wait()
	return out
}

// safeFetch runs one producer, converting every failure mode — error or
// panic — into an empty result plus structured operator logging.
func (f *fetcher) safeFetch(ctx context.Context, id fetchIdentity, layer Layer, fn producer) (text string) {
	defer func() {
		if r := recover(); r != nil {
			f.recordFailure(ctx, id, layer, fmt.Errorf("panic: %v", r))
			text = ""
		}
	}()

	text, err := fn(ctx)
	if err != nil {
		f.recordFailure(ctx, id, layer, err)
		return ""
	}
	return text
}

func (f *fetcher) recordFailure(ctx context.Context, id fetchIdentity, layer Layer, err error) {
	observe.Logger(ctx).Warn("layer fetch failed",
		"layer", string(layer),
		"error", err,
	)
	if f.metrics != nil {
		f.metrics.RecordLayerFailure(ctx, string(layer))
	}
	if f.oplog != nil {
		f.oplog.Log(ctx, oplog.Entry{
			Operation: oplog.OpErrorGraceful,
			SessionID: id.SessionID,
			PersonaID: id.PersonaID,
			UserID:    id.UserID,
			Details: map[string]any{
				"error_type":    string(layer),
				"error_message": err.Error(),
				"fallback_used": "null_component",
			},
			Success: true,
		})
	}
}
