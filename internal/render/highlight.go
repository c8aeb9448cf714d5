// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// lexerFor picks a lexer by language name, then by content analysis.
func lexerFor(lang, code string) chroma.Lexer {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func styleFor(name string) *chroma.Style {
	style := chromaStyles.Get(name)
	if style == nil {
		style = chromaStyles.Fallback
	}
	return style
}

// highlightHTML returns code as a chroma <pre> block with inline styles.
// ok is false when highlighting failed and the caller should fall back.
func highlightHTML(code, lang, styleName string) (string, bool) {
	iterator, err := lexerFor(lang, code).Tokenise(nil, code)
	if err != nil {
		return "", false
	}
	formatter := chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))

	var buf strings.Builder
	if err := formatter.Format(&buf, styleFor(styleName), iterator); err != nil {
		return "", false
	}
	return buf.String(), true
}

// highlightTerminal returns code coloured for a 256-colour terminal.
func highlightTerminal(code, lang, styleName string) (string, bool) {
	iterator, err := lexerFor(lang, code).Tokenise(nil, code)
	if err != nil {
		return "", false
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, styleFor(styleName), iterator); err != nil {
		return "", false
	}
	return strings.TrimRight(buf.String(), "\n"), true
}
