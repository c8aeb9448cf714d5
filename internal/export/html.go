// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone page with embedded CSS.
type HTMLExporter struct {
	renderer render.Renderer
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter() *HTMLExporter {
	return &HTMLExporter{renderer: render.NewHTMLRenderer()}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(t Transcript) ([]byte, error) {
	if err := check(t); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(t.Title()))
	sb.WriteString("<meta name=\"generator\" content=\"taskmaster\">\n")
	fmt.Fprintf(&sb, "<meta name=\"date\" content=\"%s\">\n", t.Meta.CreatedAt.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n<body>\n<main class=\"chat\">\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", html.EscapeString(t.Title()))

	for _, m := range t.Messages {
		class := "bot"
		switch {
		case m.IsError:
			class = "error"
		case m.IsUser():
			class = "user"
		}

		var body string
		if m.IsUser() {
			body = strings.ReplaceAll(html.EscapeString(m.Text), "\n", "<br>")
		} else {
			body = render.Format(e.renderer, m.Text)
		}

		fmt.Fprintf(&sb, "<div class=\"message %s\">\n", class)
		fmt.Fprintf(&sb, "<div class=\"meta\">%s · <time datetime=\"%s\">%s</time></div>\n",
			html.EscapeString(roleLabel(m)),
			m.Timestamp.Format(time.RFC3339),
			m.Timestamp.Local().Format("15:04"))
		fmt.Fprintf(&sb, "<div class=\"content\">%s</div>\n</div>\n", body)
	}

	sb.WriteString("</main>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

func (e *HTMLExporter) FileExtension() string { return ".html" }
func (e *HTMLExporter) MimeType() string      { return "text/html" }

const css = `<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f5f5f7; margin: 0; }
.chat { max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
h1 { font-size: 1.25rem; color: #333; }
.message { margin: 0.75rem 0; padding: 0.6rem 0.9rem; border-radius: 12px; max-width: 80%; }
.message.user { background: #0b7285; color: #fff; margin-left: auto; }
.message.bot { background: #fff; color: #222; border: 1px solid #e0e0e0; }
.message.error { background: #fff5f5; color: #c92a2a; border: 1px solid #ffc9c9; }
.meta { font-size: 0.75rem; opacity: 0.7; margin-bottom: 0.25rem; }
.content pre { background: #272822; color: #f8f8f2; padding: 0.5rem; border-radius: 6px; overflow-x: auto; }
.content a { color: inherit; }
</style>
`
