// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"html"
	"strings"
)

// Renderer turns a Document into display markup. Render must be a pure
// function of the document.
type Renderer interface {
	Render(doc *Document) string
}

// Format parses text and renders it in one step. This is the instant path
// used for history and user messages.
func Format(r Renderer, text string) string {
	return r.Render(Parse(text))
}

// =============================================================================
// HTML RENDERER
// =============================================================================

// HTMLRenderer renders the widget's message HTML. All text is escaped;
// the only tags emitted are the ones produced from formatting syntax.
type HTMLRenderer struct {
	// CodeStyle is the chroma style for fenced code. Defaults to "github".
	CodeStyle string
}

// NewHTMLRenderer returns an HTML renderer with default settings.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{CodeStyle: "github"}
}

// Render implements Renderer.
func (r *HTMLRenderer) Render(doc *Document) string {
	var b strings.Builder
	open := BlockParagraph
	inList := false

	closeList := func() {
		if !inList {
			return
		}
		if open == BlockBullet {
			b.WriteString("</ul>")
		} else {
			b.WriteString("</ol>")
		}
		inList = false
	}

	for _, blk := range doc.Blocks {
		if inList && blk.Kind != open {
			closeList()
		}

		switch blk.Kind {
		case BlockParagraph:
			b.WriteString("<p>")
			r.inlines(&b, blk.Inlines)
			b.WriteString("</p>")

		case BlockBullet, BlockNumbered:
			if !inList {
				switch {
				case blk.Kind == BlockBullet:
					b.WriteString("<ul>")
				case blk.Number > 1:
					fmt.Fprintf(&b, `<ol start="%d">`, blk.Number)
				default:
					b.WriteString("<ol>")
				}
				open, inList = blk.Kind, true
			}
			b.WriteString("<li>")
			r.inlines(&b, blk.Inlines)
			b.WriteString("</li>")

		case BlockCode:
			r.code(&b, blk)
		}
	}
	closeList()
	return b.String()
}

func (r *HTMLRenderer) inlines(b *strings.Builder, runs []Inline) {
	for _, in := range runs {
		text := html.EscapeString(in.Text)
		switch in.Kind {
		case InlineText:
			b.WriteString(text)
		case InlineBold:
			b.WriteString("<strong>" + text + "</strong>")
		case InlineItalic:
			b.WriteString("<em>" + text + "</em>")
		case InlineCode:
			b.WriteString("<code>" + text + "</code>")
		case InlineBreak:
			b.WriteString("<br>")
		case InlineLink:
			fmt.Fprintf(b, `<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`, html.EscapeString(in.URL), text)
		}
	}
}

func (r *HTMLRenderer) code(b *strings.Builder, blk Block) {
	lang := html.EscapeString(blk.Lang)
	if !blk.Partial {
		if out, ok := highlightHTML(blk.Code, blk.Lang, r.CodeStyle); ok {
			fmt.Fprintf(b, `<div class="code-block" data-lang="%s">%s</div>`, lang, out)
			return
		}
	}
	fmt.Fprintf(b, `<div class="code-block" data-lang="%s"><pre><code>%s</code></pre></div>`, lang, html.EscapeString(blk.Code))
}
