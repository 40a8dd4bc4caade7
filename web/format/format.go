package format

import (
	"fmt"
	"regexp"
	"strings"
)

// Citation markers the model may leave in answers, e.g. "[CHUNK_ID: chunk_2_4711]"
// or a bare "[chunk_2_4711]".
var citationPattern = regexp.MustCompile(`\[(?:CHUNK_ID:\s*)?(chunk_\d+_\d+)\]`)

// ChunkLinkPrefix is the route chunk previews are served from.
const ChunkLinkPrefix = "/api/chunks/"

// ExtractCitations returns the chunk ids cited inline in text, in order of
// first appearance.
func ExtractCitations(text string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// StripCitations removes inline citation markers from text.
func StripCitations(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// LinkCitations turns citation markers in rendered HTML into links to the
// chunk preview route. Ids not listed in known are left as plain text.
func LinkCitations(html string, known map[string]bool) string {
	return citationPattern.ReplaceAllStringFunc(html, func(m string) string {
		id := citationPattern.FindStringSubmatch(m)[1]
		if known != nil && !known[id] {
			return m
		}
		return fmt.Sprintf(`<a class="citation" href="%s%s" data-chunk-id="%s">[%s]</a>`, ChunkLinkPrefix, id, id, id)
	})
}
