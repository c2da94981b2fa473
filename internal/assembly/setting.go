package assembly

import (
	"context"

	"github.com/ofim/contexto/internal/persona"
)

// DefaultSetting is the minimal setting prose: the prompt every invocation
// can fall back to when nothing richer is available.
const DefaultSetting = "It is 2 AM at O Fim. The humidity is eternal. Chopp flows cold."

// Template kinds looked up in context_templates.
const (
	templateSetting = "setting"
	templateHints   = "hints"
)

// settingFor resolves the setting layer for a persona: an operator-provided
// context template when one exists, the default prose otherwise. Template
// lookup failures degrade to the default rather than losing the layer.
func (a *Assembler) settingFor(ctx context.Context, p *persona.Persona) string {
	tpl, err := a.personas.Template(ctx, p.ID, templateSetting, a.templatesRequireActive)
	if err == nil && tpl != nil && tpl.Content != "" {
		return tpl.Content
	}
	return DefaultSetting
}
