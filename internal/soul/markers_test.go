package soul

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const hegelSoul = `# Hegel

> The owl of Minerva spreads its wings only with the falling of the dusk.

## Voice

Dense, dialectical, patient. You speak in **sublation** and **totality**.

A second paragraph that tone extraction must not reach.

## Method

` + "```" + `
THESIS
ANTITHESIS
SYNTHESIS
` + "```" + `

| Concept | Meaning |
| --- | --- |
| aufhebung | to cancel and preserve at once |
| geist | spirit finding itself in **sublation** |

## When to Invoke

When the conversation circles a contradiction.

## Bar

You drink slowly and argue faster.
`

const clariceVoice = `# Clarice

## Voz

A paixão segundo G.H. não é narrativa, é revelação. A memória é líquida.
A náusea sagrada atrás do pensamento é a única matéria.
Ela fala — pausa — retoma — hesita — conclui.

## Sistema

Epifania.

## Quando

Sempre.

## Bar

Um copo d'água.
`

func TestExtract_Vocabulary(t *testing.T) {
	t.Parallel()

	m := Extract(hegelSoul)

	want := []string{
		"sublation",
		"totality",
		"the owl of minerva spreads its wings only with the falling of the dusk.",
		"thesis",
		"antithesis",
		"synthesis",
		"concept",
		"aufhebung",
		"geist",
	}
	if !slices.Equal(m.Vocabulary, want) {
		t.Errorf("Vocabulary = %v, want %v", m.Vocabulary, want)
	}
}

func TestExtract_VocabularyBounds(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 61)
	content := "# T\n\nA **" + long + "** term and a **kept** one.\n\n```\nA\n" +
		strings.Repeat("B", 41) + "\nOK\n```\n\n| " + strings.Repeat("k", 41) + " | v |\n| short | v |\n"
	m := Extract(content)

	if slices.Contains(m.Vocabulary, strings.ToLower(long)) {
		t.Error("Vocabulary contains over-length bold term")
	}
	if !slices.Contains(m.Vocabulary, "kept") {
		t.Errorf("Vocabulary = %v, want it to contain %q", m.Vocabulary, "kept")
	}
	if slices.Contains(m.Vocabulary, "a") {
		t.Error("Vocabulary contains single-letter code label")
	}
	if !slices.Contains(m.Vocabulary, "ok") {
		t.Errorf("Vocabulary = %v, want it to contain %q", m.Vocabulary, "ok")
	}
	if slices.Contains(m.Vocabulary, strings.ToLower(strings.Repeat("k", 41))) {
		t.Error("Vocabulary contains over-length table key")
	}
	if !slices.Contains(m.Vocabulary, "short") {
		t.Errorf("Vocabulary = %v, want it to contain %q", m.Vocabulary, "short")
	}
}

func TestExtract_DeduplicatesVocabulary(t *testing.T) {
	t.Parallel()

	m := Extract(hegelSoul)
	count := 0
	for _, term := range m.Vocabulary {
		if term == "sublation" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("sublation appears %d times, want 1", count)
	}
}

func TestExtract_Tone(t *testing.T) {
	t.Parallel()

	m := Extract(hegelSoul)
	want := []string{"Dense", "dialectical", "patient", "You speak in sublation and totality"}
	if !slices.Equal(m.Tone, want) {
		t.Errorf("Tone = %v, want %v", m.Tone, want)
	}
}

func TestExtract_ToneFallsBackToBar(t *testing.T) {
	t.Parallel()

	m := Extract("# X\n\n## Bar\n\nQuiet, watchful.\n")
	want := []string{"Quiet", "watchful"}
	if !slices.Equal(m.Tone, want) {
		t.Errorf("Tone = %v, want %v", m.Tone, want)
	}
}

func TestExtract_Patterns(t *testing.T) {
	t.Parallel()

	t.Run("portuguese soul derives both patterns", func(t *testing.T) {
		t.Parallel()
		m := Extract(clariceVoice)
		names := make([]string, len(m.Patterns))
		for i, p := range m.Patterns {
			names[i] = p.Name
		}
		if !slices.Contains(names, "uses_special_characters") {
			t.Errorf("Patterns = %v, want uses_special_characters", names)
		}
		if !slices.Contains(names, "uses_em_dashes") {
			t.Errorf("Patterns = %v, want uses_em_dashes", names)
		}
		for _, p := range m.Patterns {
			if p.Regex == nil {
				t.Errorf("pattern %s has nil regex", p.Name)
			}
		}
	})

	t.Run("plain english soul derives none", func(t *testing.T) {
		t.Parallel()
		m := Extract(hegelSoul)
		if len(m.Patterns) != 0 {
			t.Errorf("Patterns = %v, want none", m.Patterns)
		}
	})
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "writers", "clarice.md")
	writeFile(t, path, "# Clarice\n\n## Voz\n\nShe writes in **epifania**.\n")

	loader := NewLoader(root)
	m := loader.Load("clarice")
	if !slices.Contains(m.Vocabulary, "epifania") {
		t.Fatalf("Vocabulary = %v, want it to contain %q", m.Vocabulary, "epifania")
	}

	// The cache never expires: rewriting the file must not change the result.
	if err := os.WriteFile(path, []byte("# Clarice\n\n## Voz\n\nNow **vertigo**.\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m2 := loader.Load("clarice")
	if !slices.Contains(m2.Vocabulary, "epifania") || slices.Contains(m2.Vocabulary, "vertigo") {
		t.Errorf("Vocabulary after rewrite = %v, want cached extraction", m2.Vocabulary)
	}
}

func TestLoader_MissingFileYieldsEmptyMarkers(t *testing.T) {
	t.Parallel()

	loader := NewLoader(t.TempDir())
	m := loader.Load("nietzsche")
	if m == nil {
		t.Fatal("Load() = nil, want empty markers")
	}
	if len(m.Vocabulary) != 0 || len(m.Tone) != 0 || len(m.Patterns) != 0 || len(m.Forbidden) != 0 {
		t.Errorf("Load() = %+v, want all empty", m)
	}
}
