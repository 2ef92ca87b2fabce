package prompt

import (
	"strings"

	"github.com/Conceptual-Machines/variation-explorer/pkg/embedded"
)

type Loader struct {
	override string
}

func NewPromptLoader() *Loader {
	return &Loader{}
}

// NewPromptLoaderWithOverride returns a loader whose rewrite system prompt is
// replaced by text, when text is not blank.
func NewPromptLoaderWithOverride(text string) *Loader {
	return &Loader{override: strings.TrimSpace(text)}
}

// GetRewriteSystemPrompt loads the instruction sent with every prompt rewrite
func (l *Loader) GetRewriteSystemPrompt() (string, error) {
	if l.override != "" {
		return l.override, nil
	}
	return strings.TrimSpace(string(embedded.RewriteSystemPromptTxt)), nil
}
