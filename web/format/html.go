package format

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// AnswerHTML renders an assistant answer as HTML. Inline citations of ids in
// known become links to their chunk previews; pass nil to link every id.
func AnswerHTML(answer string, known map[string]bool) string {
	text := normalizeMarkdownLists(PreprocessAssistantText(answer))
	if strings.TrimSpace(text) == "" {
		return ""
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	out := string(markdown.ToHTML([]byte(text), p, renderer))

	return LinkCitations(out, known)
}
