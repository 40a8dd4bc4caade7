// Package views renders the HTML fragments returned to the chat page.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"multimodal-rag/document"
	"multimodal-rag/web/format"
	"multimodal-rag/web/types"

	"github.com/a-h/templ"
)

// UserMessage renders a user chat bubble.
func UserMessage(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="message message-user"><p>%s</p></div>`, templ.EscapeString(content))
		return err
	})
}

// AssistantMessage renders an assistant chat bubble from pre-rendered answer
// HTML, followed by the cited sources and pictures.
func AssistantMessage(answerHTML string, chunkIDs []string, pictures []document.Picture) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="message message-assistant"><div class="answer">`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, answerHTML); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</div>`); err != nil {
			return err
		}
		if err := Sources(chunkIDs).Render(ctx, w); err != nil {
			return err
		}
		if err := Pictures(pictures).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// Sources renders links to the chunk previews of the given ids.
func Sources(chunkIDs []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(chunkIDs) == 0 {
			return nil
		}
		var b strings.Builder
		b.WriteString(`<details class="sources"><summary>Sources</summary><ul>`)
		for _, id := range chunkIDs {
			escaped := templ.EscapeString(id)
			fmt.Fprintf(&b, `<li><a href="%s%s" data-chunk-id="%s">%s</a></li>`,
				format.ChunkLinkPrefix, escaped, escaped, escaped)
		}
		b.WriteString(`</ul></details>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Pictures renders embedded pictures with their captions. Only inline image
// data URIs are rendered.
func Pictures(pictures []document.Picture) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		for _, p := range pictures {
			if p.Image == nil || !strings.HasPrefix(p.Image.URI, "data:image/") {
				continue
			}
			caption := strings.Join(p.Captions, " ")
			fmt.Fprintf(&b, `<figure class="picture" data-picture-id="%s"><img src="%s" alt="%s">`,
				templ.EscapeString(p.PictureID), templ.EscapeString(p.Image.URI), templ.EscapeString(caption))
			if caption != "" {
				fmt.Fprintf(&b, `<figcaption>%s</figcaption>`, templ.EscapeString(caption))
			}
			b.WriteString(`</figure>`)
		}
		if b.Len() == 0 {
			return nil
		}
		_, err := io.WriteString(w, `<div class="pictures">`+b.String()+`</div>`)
		return err
	})
}

// Exchange renders a user message and the assistant reply to it.
func Exchange(userMessage, answerHTML string, chunkIDs []string, pictures []document.Picture) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := UserMessage(userMessage).Render(ctx, w); err != nil {
			return err
		}
		return AssistantMessage(answerHTML, chunkIDs, pictures).Render(ctx, w)
	})
}

// History renders recorded messages. Citations in past answers are not
// linked since their chunks may no longer be held.
func History(messages []types.ChatMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, m := range messages {
			var c templ.Component
			switch m.Role {
			case types.RoleUser:
				c = UserMessage(m.Content)
			case types.RoleAssistant:
				c = AssistantMessage(format.AnswerHTML(m.Content, map[string]bool{}), nil, nil)
			default:
				continue
			}
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrorMessage renders an inline error notice.
func ErrorMessage(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="message message-error" role="alert">%s</div>`, templ.EscapeString(message))
		return err
	})
}
