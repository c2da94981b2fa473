package memory

import (
	"strings"
	"testing"

	"github.com/ofim/contexto/internal/relationship"
)

func TestUserRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		trust relationship.TrustLevel
		want  string
	}{
		{relationship.TrustStranger, "a visitor"},
		{relationship.TrustAcquaintance, "your acquaintance"},
		{relationship.TrustFamiliar, "your friend"},
		{relationship.TrustConfidant, "your trusted companion"},
		{relationship.TrustLevel("garbage"), "a visitor"},
	}
	for _, tt := range tests {
		if got := UserRef(tt.trust); got != tt.want {
			t.Errorf("UserRef(%q) = %q, want %q", tt.trust, got, tt.want)
		}
	}
}

func TestFrame_TemplatesByType(t *testing.T) {
	t.Parallel()

	mems := []*Memory{
		{Content: "the rain talk", MemoryType: "interaction"},
		{Content: "a shared silence", MemoryType: "relationship"},
		{Content: "grief is patient", MemoryType: "insight"},
		{Content: "she maps dead cities", MemoryType: "learning"},
		{Content: "odds and ends", MemoryType: "something_else"},
	}

	out := Frame(mems, relationship.TrustFamiliar)
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}

	wants := []string{
		"You remember your friend telling you: the rain talk",
		"Between you and your friend there is this: a shared silence",
		"An insight that came to you about your friend: grief is patient",
		"Something you learned from your friend: she maps dead cities",
		"You recall, about your friend: odds and ends",
	}
	for i, want := range wants {
		if lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}

func TestFrame_TruncatesLongContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", maxFramedContent+100)
	out := Frame([]*Memory{{Content: long, MemoryType: "interaction"}}, relationship.TrustStranger)

	if strings.Contains(out, strings.Repeat("a", maxFramedContent)) {
		t.Error("content not truncated")
	}
	if !strings.Contains(out, strings.Repeat("a", maxFramedContent-1)+"…") {
		t.Error("truncation must end with an ellipsis")
	}
}

func TestFrame_Empty(t *testing.T) {
	t.Parallel()

	if out := Frame(nil, relationship.TrustStranger); out != "" {
		t.Errorf("Frame(nil) = %q, want empty", out)
	}
}

func TestFramePersonaMemories(t *testing.T) {
	t.Parallel()

	out := FramePersonaMemories([]*PersonaMemory{
		{Content: "closing time is a synthesis"},
		{Content: "clarice hears the silence first"},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "Your own mind keeps circling:" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "- closing time is a synthesis" {
		t.Errorf("line 1 = %q", lines[1])
	}

	if out := FramePersonaMemories(nil); out != "" {
		t.Errorf("FramePersonaMemories(nil) = %q, want empty", out)
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("truncateRunes(short) = %q", got)
	}
	got := truncateRunes("ababababab", 5)
	if got != "abab…" {
		t.Errorf("truncateRunes = %q, want abab…", got)
	}
	if n := len([]rune(got)); n != 5 {
		t.Errorf("rune length = %d, want 5", n)
	}

	// Multibyte input must not be cut mid-rune.
	got = truncateRunes("ééééééé", 4)
	if got != "ééé…" {
		t.Errorf("truncateRunes multibyte = %q", got)
	}
}
