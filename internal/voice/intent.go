// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"strings"
	"unicode"
)

// fillerWords are dropped from both ends of a transcript before matching.
var fillerWords = map[string]bool{
	"please": true,
	"ok":     true,
	"okay":   true,
	"now":    true,
	"hey":    true,
	"thanks": true,
	"thank":  true,
	"you":    true,
	"just":   true,
}

// stopObjects may follow a stop phrase ("stop listening", "end chat").
var stopObjects = map[string]bool{
	"talking":      true,
	"listening":    true,
	"it":           true,
	"that":         true,
	"voice":        true,
	"chat":         true,
	"conversation": true,
}

// IsStopIntent reports whether a final transcript asks to end the voice
// conversation. Matching ignores case, punctuation and filler words, so
// "Okay, stop please." matches "stop" but "stop the timer at five" does not.
func IsStopIntent(text string, phrases []string) bool {
	words := normalizeWords(text)
	if len(words) == 0 {
		return false
	}

	for _, phrase := range phrases {
		pw := normalizeWords(phrase)
		if len(pw) == 0 || len(words) < len(pw) {
			continue
		}
		if !equalWords(words[:len(pw)], pw) {
			continue
		}
		switch rest := words[len(pw):]; len(rest) {
		case 0:
			return true
		case 1:
			if stopObjects[rest[0]] {
				return true
			}
		}
	}
	return false
}

func normalizeWords(s string) []string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		if r == '\'' || r == '’' {
			return -1
		}
		return ' '
	}, s)
	words := strings.Fields(s)

	for len(words) > 0 && fillerWords[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && fillerWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return words
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
