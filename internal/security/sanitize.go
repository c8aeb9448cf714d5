// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Frankambaa/TaskMaster/internal/util"
)

// DefaultInputFieldCap is the truncation length for sanitized user fields.
const DefaultInputFieldCap = 100

// sanitizePasses bounds the fixpoint loop. Real input settles in one or two.
const sanitizePasses = 4

var (
	// scriptBlockRe matches <script ...>...</script> blocks, case-insensitive
	// and across lines.
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

	// markupBreakers are removed from user-supplied fields.
	markupBreakers = "<>\"'/\\&"
)

// Sanitize cleans input with the default field cap. See SanitizeCap.
func Sanitize(input string, isUserInput bool) string {
	return SanitizeCap(input, isUserInput, DefaultInputFieldCap)
}

// SanitizeCap cleans input.
//
// User input is NFKC-normalized, stripped of characters that could break
// out of markup, trimmed and truncated to maxRunes characters. Bot text only
// loses <script> blocks and surrounding whitespace and is never truncated.
//
// The result is a fixpoint: SanitizeCap(SanitizeCap(x)) == SanitizeCap(x).
func SanitizeCap(input string, isUserInput bool, maxRunes int) string {
	if input == "" {
		return ""
	}
	if maxRunes <= 0 {
		maxRunes = DefaultInputFieldCap
	}

	pass := sanitizeBot
	if isUserInput {
		pass = func(s string) string { return sanitizeUser(s, maxRunes) }
	}

	s := input
	for i := 0; i < sanitizePasses; i++ {
		next := pass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func sanitizeUser(s string, maxRunes int) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(markupBreakers, r) {
			return -1
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	s = util.TruncateRunesNoEllipsis(s, maxRunes)
	return strings.TrimSpace(s)
}

func sanitizeBot(s string) string {
	return strings.TrimSpace(StripScripts(s))
}

// StripScripts removes <script> blocks until none remain.
func StripScripts(s string) string {
	for scriptBlockRe.MatchString(s) {
		s = scriptBlockRe.ReplaceAllString(s, "")
	}
	return s
}
