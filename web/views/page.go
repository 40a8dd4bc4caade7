package views

import (
	"context"
	"io"

	"multimodal-rag/web/types"

	"github.com/a-h/templ"
)

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Document Assistant</title>
<link rel="stylesheet" href="/static/chat.css">
</head>
<body>
<main class="chat">
<div id="messages" class="messages">`

const pageTail = `</div>
<form id="chat-form" class="chat-form" method="post" action="/chat">
<textarea name="message" rows="2" placeholder="Ask about your documents" required></textarea>
<button type="submit">Send</button>
</form>
</main>
<script src="/static/chat.js" defer></script>
</body>
</html>`

// Page renders the full chat page with the session's history.
func Page(history []types.ChatMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if err := History(history).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, pageTail)
		return err
	})
}
