package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ofim/contexto/pkg/types"
)

// ── parsePreferences ──────────────────────────────────────────────────────────

// TestParsePreferences_PlainArray checks that a bare JSON array decodes.
func TestParsePreferences_PlainArray(t *testing.T) {
	content := `[{"topic":"music","stance":"prefers the jukebox loud","confidence":0.8}]`

	prefs, err := parsePreferences(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 1 {
		t.Fatalf("expected 1 preference, got %d", len(prefs))
	}
	if prefs[0].Topic != "music" {
		t.Errorf("expected topic music, got %q", prefs[0].Topic)
	}
	if prefs[0].Stance != "prefers the jukebox loud" {
		t.Errorf("unexpected stance %q", prefs[0].Stance)
	}
	if prefs[0].Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", prefs[0].Confidence)
	}
}

// TestParsePreferences_MarkdownFence checks that fenced output is tolerated.
func TestParsePreferences_MarkdownFence(t *testing.T) {
	content := "```json\n[{\"topic\":\"chopp\",\"stance\":\"always orders it cold\",\"confidence\":0.9}]\n```"

	prefs, err := parsePreferences(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 1 || prefs[0].Topic != "chopp" {
		t.Fatalf("expected single chopp preference, got %+v", prefs)
	}
}

// TestParsePreferences_ProseWrapped checks that surrounding prose is ignored.
func TestParsePreferences_ProseWrapped(t *testing.T) {
	content := `Here are the extracted preferences:

[{"topic":"seating","stance":"sits near the door","confidence":0.5}]

Let me know if you need anything else.`

	prefs, err := parsePreferences(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 1 || prefs[0].Topic != "seating" {
		t.Fatalf("expected single seating preference, got %+v", prefs)
	}
}

// TestParsePreferences_EmptyArray checks that [] means no preferences, not an error.
func TestParsePreferences_EmptyArray(t *testing.T) {
	prefs, err := parsePreferences("[]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 0 {
		t.Fatalf("expected no preferences, got %+v", prefs)
	}
}

// TestParsePreferences_NoArray checks that output without brackets is an error.
func TestParsePreferences_NoArray(t *testing.T) {
	_, err := parsePreferences("The user showed no preferences.")
	if err == nil {
		t.Fatal("expected error for missing JSON array")
	}
}

// TestParsePreferences_InvalidJSON checks that malformed JSON is an error.
func TestParsePreferences_InvalidJSON(t *testing.T) {
	_, err := parsePreferences(`[{"topic": "music", "stance": }]`)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// TestParsePreferences_DropsEmptyTopics checks that entries without a topic are skipped.
func TestParsePreferences_DropsEmptyTopics(t *testing.T) {
	content := `[
		{"topic":"  ","stance":"noise","confidence":0.9},
		{"topic":"entropy","stance":"finds the decay comforting","confidence":0.7}
	]`

	prefs, err := parsePreferences(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 1 {
		t.Fatalf("expected 1 preference after filtering, got %d", len(prefs))
	}
	if prefs[0].Topic != "entropy" {
		t.Errorf("expected topic entropy, got %q", prefs[0].Topic)
	}
}

// TestParsePreferences_ClampsConfidence checks that confidence is clamped to [0,1].
func TestParsePreferences_ClampsConfidence(t *testing.T) {
	content := `[
		{"topic":"music","stance":"a","confidence":1.7},
		{"topic":"drinks","stance":"b","confidence":-0.3}
	]`

	prefs, err := parsePreferences(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 2 {
		t.Fatalf("expected 2 preferences, got %d", len(prefs))
	}
	if prefs[0].Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %v", prefs[0].Confidence)
	}
	if prefs[1].Confidence != 0.0 {
		t.Errorf("expected confidence clamped to 0.0, got %v", prefs[1].Confidence)
	}
}

// TestParsePreferences_TrimsWhitespace checks that topic and stance are trimmed.
func TestParsePreferences_TrimsWhitespace(t *testing.T) {
	content := `[{"topic":" music ","stance":" loud ","confidence":0.5}]`

	prefs, err := parsePreferences(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefs[0].Topic != "music" || prefs[0].Stance != "loud" {
		t.Errorf("expected trimmed fields, got %+v", prefs[0])
	}
}

// ── renderTranscript ──────────────────────────────────────────────────────────

// TestRenderTranscript checks the role-prefixed line format.
func TestRenderTranscript(t *testing.T) {
	messages := []types.Message{
		{Role: "user", Content: "Does the jukebox take requests?"},
		{Role: "assistant", Content: "It takes suggestions. It honors none."},
	}

	got := renderTranscript(messages)
	want := "user: Does the jukebox take requests?\nassistant: It takes suggestions. It honors none."
	if got != want {
		t.Errorf("unexpected transcript:\ngot  %q\nwant %q", got, want)
	}
}

// TestRenderTranscript_Single checks that a single message has no trailing newline.
func TestRenderTranscript_Single(t *testing.T) {
	got := renderTranscript([]types.Message{{Role: "user", Content: "hi"}})
	if got != "user: hi" {
		t.Errorf("expected %q, got %q", "user: hi", got)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "fakecloud") {
		t.Errorf("expected provider name in error, got %v", err)
	}
}

// TestNew_OpenAI_WithAPIKey checks that OpenAI constructs successfully with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.ModelID() != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", p.ModelID())
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}
