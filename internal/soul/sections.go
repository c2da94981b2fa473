package soul

import "strings"

// Document is the parsed structure of a soul file: one H1 title and the H2
// sections in file order. Heading text is lowercased; bodies keep their
// original lines.
type Document struct {
	Title    string
	Sections []Section
}

// Section is one H2 block of a soul file.
type Section struct {
	Heading string
	Body    string
}

// requiredSections are the structural groups every valid soul must carry.
// Souls are written in English or Portuguese; a group is satisfied when any
// H2 heading contains any of its tokens.
var requiredSections = []struct {
	Label  string
	Tokens []string
}{
	{"voice", []string{"voice", "voz"}},
	{"method", []string{"method", "método", "sistema"}},
	{"invocation", []string{"invocation", "when", "invoke", "quando"}},
	{"bar", []string{"bar"}},
}

// Parse splits markdown content into the H1 title and H2 sections. Later H1
// lines are treated as body text; only the first one names the soul.
func Parse(content string) Document {
	var doc Document
	var current *Section

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			doc.Sections = append(doc.Sections, Section{
				Heading: strings.ToLower(strings.TrimSpace(line[3:])),
			})
			current = &doc.Sections[len(doc.Sections)-1]
		case strings.HasPrefix(line, "# ") && doc.Title == "" && current == nil:
			doc.Title = strings.TrimSpace(line[2:])
		case current != nil:
			if current.Body != "" {
				current.Body += "\n"
			}
			current.Body += line
		}
	}
	return doc
}

// Section returns the first section whose heading contains any of the given
// tokens.
func (d Document) Section(tokens ...string) (Section, bool) {
	for _, s := range d.Sections {
		for _, tok := range tokens {
			if strings.Contains(s.Heading, tok) {
				return s, true
			}
		}
	}
	return Section{}, false
}

// MissingSections lists the structural requirements the document fails:
// "title" when there is no H1, plus the label of every unsatisfied group
// from [requiredSections].
func MissingSections(d Document) []string {
	var missing []string
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	for _, req := range requiredSections {
		if _, ok := d.Section(req.Tokens...); !ok {
			missing = append(missing, req.Label)
		}
	}
	return missing
}
