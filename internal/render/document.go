// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// DOCUMENT MODEL
// =============================================================================

// InlineKind identifies an inline run.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineBold
	InlineItalic
	InlineCode
	InlineLink
	InlineBreak
)

// Inline is a styled run of text inside a block. For links Text is the
// visible label and URL the target.
type Inline struct {
	Kind InlineKind
	Text string
	URL  string
	// Partial is set on the run cut short by Prefix.
	Partial bool
}

// Len returns the number of visible characters in the run. A line break
// counts as one.
func (in Inline) Len() int {
	if in.Kind == InlineBreak {
		return 1
	}
	return utf8.RuneCountInString(in.Text)
}

// BlockKind identifies a block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockBullet
	BlockNumbered
	BlockCode
)

// Block is a paragraph, a list item or a fenced code block.
type Block struct {
	Kind    BlockKind
	Inlines []Inline
	// Number is the item number for BlockNumbered.
	Number int
	// Code and Lang are set for BlockCode.
	Code string
	Lang string
	// Partial is set on the block cut short by Prefix.
	Partial bool
}

// Len returns the number of visible characters in the block.
func (b Block) Len() int {
	if b.Kind == BlockCode {
		return utf8.RuneCountInString(b.Code)
	}
	n := 0
	for _, in := range b.Inlines {
		n += in.Len()
	}
	return n
}

// Document is parsed message text.
type Document struct {
	Blocks []Block
	length int
}

// Len returns the number of visible characters, the reveal length.
func (d *Document) Len() int {
	return d.length
}

// Prefix returns a document holding only the first n visible characters.
// Blocks and inline runs keep their kind, so rendered markup stays
// balanced. Prefix(d.Len()) returns d itself.
func (d *Document) Prefix(n int) *Document {
	if n >= d.length {
		return d
	}
	out := &Document{length: max(n, 0)}
	remaining := n
	for _, blk := range d.Blocks {
		l := blk.Len()
		if l <= remaining {
			out.Blocks = append(out.Blocks, blk)
			remaining -= l
			continue
		}
		if remaining <= 0 {
			break
		}
		out.Blocks = append(out.Blocks, truncateBlock(blk, remaining))
		break
	}
	return out
}

func truncateBlock(blk Block, n int) Block {
	cut := blk
	cut.Partial = true
	if blk.Kind == BlockCode {
		cut.Code = takeRunes(blk.Code, n)
		return cut
	}

	cut.Inlines = nil
	for _, in := range blk.Inlines {
		l := in.Len()
		if l <= n {
			cut.Inlines = append(cut.Inlines, in)
			n -= l
			continue
		}
		if n > 0 {
			in.Text = takeRunes(in.Text, n)
			in.Partial = true
			cut.Inlines = append(cut.Inlines, in)
		}
		break
	}
	return cut
}

func takeRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// =============================================================================
// PARSER
// =============================================================================

var (
	bulletRe   = regexp.MustCompile(`^\s*[-*•]\s+(.*)$`)
	numberedRe = regexp.MustCompile(`^\s*(\d{1,3})[.)]\s+(.*)$`)
	fenceRe    = regexp.MustCompile("^\\s*```\\s*([\\w+#.-]*)\\s*$")
	mdLinkRe   = regexp.MustCompile(`^\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	autoLinkRe = regexp.MustCompile(`^https?://[^\s<>"]+`)
)

// Parse converts message text into a Document.
//
// Recognised syntax: **bold** / __bold__, *italic* / _italic_, `code`,
// [label](url), bare http(s) URLs, "-", "*" or "•" bullets, "1." or "1)"
// numbered items, ``` fenced code, and line breaks. A blank line ends a
// paragraph.
func Parse(text string) *Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Trim(text, "\n")

	doc := &Document{}
	if strings.TrimSpace(text) == "" {
		return doc
	}

	var para *Block
	endPara := func() {
		if para != nil {
			doc.Blocks = append(doc.Blocks, *para)
			para = nil
		}
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := fenceRe.FindStringSubmatch(line); m != nil {
			endPara()
			var code []string
			j := i + 1
			for ; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == "```" {
					break
				}
				code = append(code, lines[j])
			}
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockCode, Lang: m[1], Code: strings.Join(code, "\n")})
			i = j
			continue
		}

		if m := bulletRe.FindStringSubmatch(line); m != nil {
			endPara()
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockBullet, Inlines: parseInline(strings.TrimSpace(m[1]))})
			continue
		}

		if m := numberedRe.FindStringSubmatch(line); m != nil {
			endPara()
			num, _ := strconv.Atoi(m[1])
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockNumbered, Number: num, Inlines: parseInline(strings.TrimSpace(m[2]))})
			continue
		}

		if strings.TrimSpace(line) == "" {
			endPara()
			continue
		}

		if para == nil {
			para = &Block{Kind: BlockParagraph}
		} else {
			para.Inlines = append(para.Inlines, Inline{Kind: InlineBreak})
		}
		para.Inlines = append(para.Inlines, parseInline(strings.TrimRight(line, " \t"))...)
	}
	endPara()

	for _, b := range doc.Blocks {
		doc.length += b.Len()
	}
	return doc
}

// parseInline splits one line into inline runs. Emphasis does not nest.
func parseInline(s string) []Inline {
	var (
		out   []Inline
		plain strings.Builder
		prev  rune
	)
	flush := func() {
		if plain.Len() > 0 {
			out = append(out, Inline{Kind: InlineText, Text: plain.String()})
			plain.Reset()
		}
	}
	emit := func(in Inline) {
		flush()
		out = append(out, in)
	}

	for i := 0; i < len(s); {
		rest := s[i:]

		switch {
		case rest[0] == '`':
			if end := strings.IndexByte(rest[1:], '`'); end > 0 {
				emit(Inline{Kind: InlineCode, Text: rest[1 : 1+end]})
				i += end + 2
				prev = '`'
				continue
			}

		case strings.HasPrefix(rest, "**") || strings.HasPrefix(rest, "__"):
			delim := rest[:2]
			if end := strings.Index(rest[2:], delim); end > 0 && emphasisBody(rest[2:2+end]) &&
				(delim == "**" || !isWordRune(prev)) {
				emit(Inline{Kind: InlineBold, Text: rest[2 : 2+end]})
				i += end + 4
				prev = rune(delim[0])
				continue
			}

		case rest[0] == '*' || rest[0] == '_':
			delim := rest[0]
			if end := strings.IndexByte(rest[1:], delim); end > 0 && emphasisBody(rest[1:1+end]) &&
				(delim == '*' || !isWordRune(prev)) {
				emit(Inline{Kind: InlineItalic, Text: rest[1 : 1+end]})
				i += end + 2
				prev = rune(delim)
				continue
			}

		case rest[0] == '[':
			if m := mdLinkRe.FindStringSubmatch(rest); m != nil {
				emit(Inline{Kind: InlineLink, Text: m[1], URL: m[2]})
				i += len(m[0])
				prev = ')'
				continue
			}

		case rest[0] == 'h' && !isWordRune(prev):
			if m := autoLinkRe.FindString(rest); m != "" {
				url := trimURLTail(m)
				emit(Inline{Kind: InlineLink, Text: url, URL: url})
				i += len(url)
				prev = 'x'
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(rest)
		plain.WriteRune(r)
		prev = r
		i += size
	}
	flush()
	return out
}

// emphasisBody rejects spans that start or end with a space, so "2 * 3 * 4"
// stays plain.
func emphasisBody(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return !unicode.IsSpace(first) && !unicode.IsSpace(last)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// trimURLTail drops sentence punctuation and an unbalanced closing paren.
func trimURLTail(u string) string {
	for len(u) > 0 {
		c := u[len(u)-1]
		switch {
		case strings.IndexByte(".,;:!?'", c) >= 0:
			u = u[:len(u)-1]
		case c == ')' && strings.Count(u, "(") < strings.Count(u, ")"):
			u = u[:len(u)-1]
		default:
			return u
		}
	}
	return u
}
