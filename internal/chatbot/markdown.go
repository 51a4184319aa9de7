package chatbot

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// WordWrap is the column at which rendered answers wrap
const WordWrap = 80

// RenderMarkdown renders a markdown answer for the terminal. If rendering
// fails the text is returned unchanged.
func RenderMarkdown(text string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(WordWrap),
	)
	if err != nil {
		return text
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}
