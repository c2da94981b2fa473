// Package extract defines the Provider interface for setting-preference
// extraction backends.
//
// An extractor reads a finished conversation transcript and distills the
// user's preferences about the setting: recurring topics, the stance the user
// took on them, and how confident the extraction is. Session completion
// persists the result as persona opinions and relationship preferences.
//
// Implementations must be safe for concurrent use.
package extract

import (
	"context"

	"github.com/ofim/contexto/pkg/types"
)

// Preference is one distilled setting preference.
type Preference struct {
	// Topic is a short label for the aspect of the setting or the recurring
	// subject the preference is about (e.g., "music", "chopp", "entropy").
	Topic string `json:"topic"`
	// Stance is a one-line description of the user's position on the topic.
	Stance string `json:"stance"`
	// Confidence is the extractor's confidence in [0,1] that the preference
	// is real and not conversational noise.
	Confidence float64 `json:"confidence"`
}

// Provider is the abstraction over any preference-extraction backend.
//
// Extract is best-effort by contract: callers treat a failure as "no
// preferences this session" and never abort session completion over it.
type Provider interface {
	// Extract distills setting preferences from a conversation. An empty slice
	// means the conversation revealed none; that is not an error. Returns an
	// error if the backend request fails or ctx is cancelled.
	Extract(ctx context.Context, messages []types.Message) ([]Preference, error)

	// ModelID returns the provider-specific model identifier used for
	// extraction (e.g., "gpt-4o-mini"). Useful for logging.
	ModelID() string
}
