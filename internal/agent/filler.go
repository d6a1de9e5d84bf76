package agent

import (
	"strings"

	"golang.org/x/text/cases"
)

// fillers recognizes stalling replies such as "just a moment". Matching is
// a case-folded substring test, so "Let me check the calendar" is a
// filler too.
type fillers struct {
	phrases []string
}

func newFillers(phrases []string) *fillers {
	fold := cases.Fold()
	f := &fillers{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			f.phrases = append(f.phrases, fold.String(p))
		}
	}
	return f
}

func (f *fillers) match(content string) bool {
	if len(f.phrases) == 0 {
		return false
	}
	folded := cases.Fold().String(content)
	for _, p := range f.phrases {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}
