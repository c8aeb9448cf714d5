// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// ANSI RENDERER
// =============================================================================

// ANSIStyles are the lipgloss styles applied to inline runs.
type ANSIStyles struct {
	Bold   lipgloss.Style
	Italic lipgloss.Style
	Code   lipgloss.Style
	Link   lipgloss.Style
	Bullet lipgloss.Style
	Muted  lipgloss.Style
}

// DefaultANSIStyles returns colour-neutral styles.
func DefaultANSIStyles() ANSIStyles {
	return ANSIStyles{
		Bold:   lipgloss.NewStyle().Bold(true),
		Italic: lipgloss.NewStyle().Italic(true),
		Code:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00D7D7")),
		Link:   lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("#5FAFFF")),
		Bullet: lipgloss.NewStyle().Foreground(lipgloss.Color("#AF87FF")),
		Muted:  lipgloss.NewStyle().Faint(true),
	}
}

// ANSIRenderer renders styled text for terminal hosts.
type ANSIRenderer struct {
	Styles ANSIStyles
	// CodeStyle is the chroma style for fenced code. Defaults to "monokai".
	CodeStyle string
}

// NewANSIRenderer returns a terminal renderer with the given styles.
func NewANSIRenderer(styles ANSIStyles) *ANSIRenderer {
	return &ANSIRenderer{Styles: styles, CodeStyle: "monokai"}
}

// Render implements Renderer. Blocks are separated by newlines; a blank
// line separates a paragraph from whatever follows it.
func (r *ANSIRenderer) Render(doc *Document) string {
	var b strings.Builder
	for i, blk := range doc.Blocks {
		if i > 0 {
			b.WriteByte('\n')
			if blk.Kind == BlockParagraph || doc.Blocks[i-1].Kind == BlockParagraph ||
				blk.Kind == BlockCode || doc.Blocks[i-1].Kind == BlockCode {
				b.WriteByte('\n')
			}
		}

		switch blk.Kind {
		case BlockParagraph:
			r.inlines(&b, blk.Inlines)
		case BlockBullet:
			b.WriteString(r.Styles.Bullet.Render("  •") + " ")
			r.inlines(&b, blk.Inlines)
		case BlockNumbered:
			b.WriteString(r.Styles.Bullet.Render(fmt.Sprintf("  %d.", blk.Number)) + " ")
			r.inlines(&b, blk.Inlines)
		case BlockCode:
			r.code(&b, blk)
		}
	}
	return b.String()
}

func (r *ANSIRenderer) inlines(b *strings.Builder, runs []Inline) {
	for _, in := range runs {
		switch in.Kind {
		case InlineText:
			b.WriteString(in.Text)
		case InlineBold:
			b.WriteString(r.Styles.Bold.Render(in.Text))
		case InlineItalic:
			b.WriteString(r.Styles.Italic.Render(in.Text))
		case InlineCode:
			b.WriteString(r.Styles.Code.Render(in.Text))
		case InlineBreak:
			b.WriteByte('\n')
		case InlineLink:
			b.WriteString(r.Styles.Link.Render(in.Text))
			if !in.Partial && in.Text != in.URL {
				b.WriteString(r.Styles.Muted.Render(" (" + in.URL + ")"))
			}
		}
	}
}

func (r *ANSIRenderer) code(b *strings.Builder, blk Block) {
	body := blk.Code
	if !blk.Partial {
		if out, ok := highlightTerminal(blk.Code, blk.Lang, r.CodeStyle); ok {
			body = out
		}
	}
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("    " + l)
	}
}
