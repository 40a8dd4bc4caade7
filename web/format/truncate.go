package format

import (
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// TruncationMarker is appended to text cut by TruncateAtSentence.
const TruncationMarker = " [...]"

// TruncateAtSentence shortens text to at most maxChars runes, cutting after
// the last complete sentence that fits. When not even the first sentence
// fits, or sentence detection fails, it cuts at the last word boundary.
func TruncateAtSentence(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false))
	if err == nil {
		var b strings.Builder
		for _, sent := range doc.Sentences() {
			candidate := sent.Text
			if b.Len() > 0 {
				candidate = b.String() + " " + sent.Text
			}
			if utf8.RuneCountInString(candidate) > maxChars {
				break
			}
			b.Reset()
			b.WriteString(candidate)
		}
		if b.Len() > 0 {
			return b.String() + TruncationMarker
		}
	}

	return truncateAtWord(text, maxChars) + TruncationMarker
}

func truncateAtWord(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	cut := string(runes[:maxChars])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
