// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// PARSER
// =============================================================================

func TestParse_Inline(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		kinds []InlineKind
		texts []string
	}{
		{"plain", "hello", []InlineKind{InlineText}, []string{"hello"}},
		{"bold", "a **b** c", []InlineKind{InlineText, InlineBold, InlineText}, []string{"a ", "b", " c"}},
		{"bold underscore", "__b__", []InlineKind{InlineBold}, []string{"b"}},
		{"italic", "*i*", []InlineKind{InlineItalic}, []string{"i"}},
		{"italic underscore", "an _i_ x", []InlineKind{InlineText, InlineItalic, InlineText}, []string{"an ", "i", " x"}},
		{"snake case stays plain", "snake_case_name", []InlineKind{InlineText}, []string{"snake_case_name"}},
		{"arithmetic stays plain", "2 * 3 * 4", []InlineKind{InlineText}, []string{"2 * 3 * 4"}},
		{"code", "run `go test`", []InlineKind{InlineText, InlineCode}, []string{"run ", "go test"}},
		{"unclosed code", "a `b", []InlineKind{InlineText}, []string{"a `b"}},
		{"autolink", "see https://example.com/docs.", []InlineKind{InlineText, InlineLink, InlineText}, []string{"see ", "https://example.com/docs", "."}},
		{"md link", "[docs](https://example.com)", []InlineKind{InlineLink}, []string{"docs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.in)
			require.Len(t, doc.Blocks, 1)
			runs := doc.Blocks[0].Inlines
			require.Len(t, runs, len(tt.kinds), "runs: %+v", runs)
			for i := range runs {
				assert.Equal(t, tt.kinds[i], runs[i].Kind, "run %d", i)
				assert.Equal(t, tt.texts[i], runs[i].Text, "run %d", i)
			}
		})
	}
}

func TestParse_Blocks(t *testing.T) {
	doc := Parse("Intro line\nsecond line\n\n- one\n* two\n• three\n1. first\n2) second\n```go\nfmt.Println(1)\n```\nOutro")

	kinds := make([]BlockKind, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []BlockKind{
		BlockParagraph,
		BlockBullet, BlockBullet, BlockBullet,
		BlockNumbered, BlockNumbered,
		BlockCode,
		BlockParagraph,
	}, kinds)

	intro := doc.Blocks[0].Inlines
	require.Len(t, intro, 3)
	assert.Equal(t, InlineBreak, intro[1].Kind)

	assert.Equal(t, 2, doc.Blocks[5].Number)
	assert.Equal(t, "go", doc.Blocks[6].Lang)
	assert.Equal(t, "fmt.Println(1)", doc.Blocks[6].Code)
}

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "\n\n", "   "} {
		doc := Parse(in)
		assert.Empty(t, doc.Blocks)
		assert.Equal(t, 0, doc.Len())
		assert.Equal(t, "", NewHTMLRenderer().Render(doc))
	}
}

func TestParse_LenCountsVisibleCharacters(t *testing.T) {
	doc := Parse("**ab** c\nd")
	// "ab" + " c" + break + "d"
	assert.Equal(t, 6, doc.Len())
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLRenderer_Format(t *testing.T) {
	r := NewHTMLRenderer()
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "<p>hello</p>"},
		{"**bold** and *it*", "<p><strong>bold</strong> and <em>it</em></p>"},
		{"line1\nline2", "<p>line1<br>line2</p>"},
		{"use `x < y`", "<p>use <code>x &lt; y</code></p>"},
		{"<b>raw</b>", "<p>&lt;b&gt;raw&lt;/b&gt;</p>"},
		{"- a\n- b", "<ul><li>a</li><li>b</li></ul>"},
		{"3. c\n4. d", `<ol start="3"><li>c</li><li>d</li></ol>`},
		{"- a\n1. b", "<ul><li>a</li></ul><ol><li>b</li></ol>"},
		{"go https://x.io", `<p>go <a href="https://x.io" target="_blank" rel="noopener noreferrer">https://x.io</a></p>`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(r, tt.in))
		})
	}
}

func TestHTMLRenderer_CodeFence(t *testing.T) {
	out := Format(NewHTMLRenderer(), "```go\nfunc main() {}\n```")
	assert.True(t, strings.HasPrefix(out, `<div class="code-block" data-lang="go">`))
	assert.Contains(t, out, "<pre")
	assert.Contains(t, out, "main")
}

// =============================================================================
// REVEAL DETERMINISM
// =============================================================================

var revealSamples = []string{
	"",
	"Hi",
	"We are open **9 to 5**, Monday to *Friday*.",
	"Steps:\n1. Open `settings`\n2. Click **Save**\n\nDone. See https://help.example.com/faq.",
	"- alpha\n- **beta** gamma\n• delta",
	"Code:\n```python\nprint('hi')\n```\nthat's it",
	"日本語の**テキスト**と_強調_",
	"unclosed **bold and `code",
	"[Pricing](https://example.com/pricing) details\nline two\nline three",
}

// Rendering the full prefix must be identical to the instant format, for
// every renderer, and every intermediate frame must be balanced.
func TestPrefix_FinalFrameEqualsFormat(t *testing.T) {
	renderers := map[string]Renderer{
		"html": NewHTMLRenderer(),
		"ansi": NewANSIRenderer(DefaultANSIStyles()),
	}
	for name, r := range renderers {
		for _, text := range revealSamples {
			doc := Parse(text)
			assert.Equal(t, Format(r, text), r.Render(doc.Prefix(doc.Len())), "%s: %q", name, text)
		}
	}
}

func TestPrefix_FramesAreBalanced(t *testing.T) {
	r := NewHTMLRenderer()
	pairs := [][2]string{
		{"<strong>", "</strong>"},
		{"<em>", "</em>"},
		{"<code>", "</code>"},
		{"<ul>", "</ul>"},
		{"<li>", "</li>"},
		{"<p>", "</p>"},
		{"<a ", "</a>"},
	}
	for _, text := range revealSamples {
		doc := Parse(text)
		for n := 0; n <= doc.Len(); n++ {
			frame := r.Render(doc.Prefix(n))
			for _, p := range pairs {
				assert.Equal(t, strings.Count(frame, p[0]), strings.Count(frame, p[1]),
					"unbalanced %s in frame %d of %q: %s", p[0], n, text, frame)
			}
		}
	}
}

func TestPrefix_Monotonic(t *testing.T) {
	doc := Parse("**Hello** world\n- item")
	prev := -1
	for n := 0; n <= doc.Len(); n++ {
		p := doc.Prefix(n)
		got := 0
		for _, b := range p.Blocks {
			got += b.Len()
		}
		assert.Equal(t, n, got)
		assert.Greater(t, got, prev)
		prev = got
	}
}

func TestPrefix_PartialCodeFenceIsPlain(t *testing.T) {
	doc := Parse("```go\nfunc main() {}\n```")
	frame := NewHTMLRenderer().Render(doc.Prefix(4))
	assert.Contains(t, frame, "<pre><code>func</code></pre>")
}

func TestANSIRenderer_Structure(t *testing.T) {
	r := NewANSIRenderer(DefaultANSIStyles())
	out := Format(r, "Para\n\n- a\n- b")
	assert.Contains(t, out, "Para")
	assert.Contains(t, out, "•")
	assert.Equal(t, 3, strings.Count(out, "\n"), "blank line after paragraph, newline between items: %q", out)
}
