// Package anyllm provides a preference extractor backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	prefs, err := p.Extract(ctx, messages)
package anyllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/ofim/contexto/pkg/provider/extract"
	"github.com/ofim/contexto/pkg/types"
)

// Extraction is an analysis task, not a chat continuation: low temperature,
// short output.
const (
	extractionTemperature = 0.2
	extractionMaxTokens   = 600
)

const systemPrompt = `You distill a user's setting preferences from a finished bar conversation.

Reply with a JSON array only, no prose. Each element:

  {"topic": "...", "stance": "...", "confidence": 0.0}

A preference is a clear or repeatedly expressed position on an aspect of the
setting (music, drinks, atmosphere, seating) or on a subject the user keeps
returning to. "topic" is a short lowercase label. "stance" is one line in the
third person. "confidence" is your certainty in [0,1]. Reply with [] when the
conversation reveals no preferences.`

// Provider implements extract.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the provider falls
// back to the relevant environment variable (e.g., OPENAI_API_KEY).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Extract implements extract.Provider.
func (p *Provider) Extract(ctx context.Context, messages []types.Message) ([]extract.Preference, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	temperature := extractionTemperature
	maxTokens := extractionMaxTokens
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: "user", Content: renderTranscript(messages)},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	return parsePreferences(resp.Choices[0].Message.ContentString())
}

// ModelID implements extract.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// renderTranscript flattens the conversation into "role: content" lines.
func renderTranscript(messages []types.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// parsePreferences extracts the JSON array from the model output and decodes
// it. Models wrap arrays in markdown fences or prose; everything outside the
// outermost brackets is ignored.
func parsePreferences(content string) ([]extract.Preference, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("anyllm: no JSON array in extraction response")
	}

	var raw []extract.Preference
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("anyllm: decode extraction response: %w", err)
	}

	prefs := make([]extract.Preference, 0, len(raw))
	for _, p := range raw {
		p.Topic = strings.TrimSpace(p.Topic)
		p.Stance = strings.TrimSpace(p.Stance)
		if p.Topic == "" {
			continue
		}
		p.Confidence = min(max(p.Confidence, 0), 1)
		prefs = append(prefs, p)
	}
	return prefs, nil
}

// Ensure Provider implements extract.Provider at compile time.
var _ extract.Provider = (*Provider)(nil)
