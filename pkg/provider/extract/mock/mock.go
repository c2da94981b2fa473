// Package mock provides a test double for the extract.Provider interface.
//
// Use Provider to return pre-canned preferences without a live model and to
// verify which conversation was submitted for extraction.
//
// Example:
//
//	p := &mock.Provider{
//	    ExtractResult: []extract.Preference{{Topic: "music", Stance: "loud", Confidence: 0.8}},
//	    ModelIDValue:  "test-extract-v1",
//	}
//	prefs, _ := p.Extract(ctx, messages)
package mock

import (
	"context"
	"sync"

	"github.com/ofim/contexto/pkg/provider/extract"
	"github.com/ofim/contexto/pkg/types"
)

// ExtractCall records a single invocation of Extract.
type ExtractCall struct {
	// Ctx is the context passed to Extract.
	Ctx context.Context
	// Messages is a copy of the conversation passed to Extract.
	Messages []types.Message
}

// Provider is a mock implementation of extract.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ExtractResult is returned by Extract. If nil, an empty slice is returned.
	ExtractResult []extract.Preference

	// ExtractErr, if non-nil, is returned as the error from Extract.
	ExtractErr error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// ExtractCalls records every call to Extract in order.
	ExtractCalls []ExtractCall

	// ModelIDCallCount is the number of times ModelID was called.
	ModelIDCallCount int
}

// Extract records the call and returns ExtractResult, ExtractErr.
func (p *Provider) Extract(ctx context.Context, messages []types.Message) ([]extract.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]types.Message, len(messages))
	copy(cp, messages)
	p.ExtractCalls = append(p.ExtractCalls, ExtractCall{Ctx: ctx, Messages: cp})
	if p.ExtractErr != nil {
		return nil, p.ExtractErr
	}
	return p.ExtractResult, nil
}

// ModelID records the call and returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelIDCallCount++
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExtractCalls = nil
	p.ModelIDCallCount = 0
}

// Ensure Provider implements extract.Provider at compile time.
var _ extract.Provider = (*Provider)(nil)
