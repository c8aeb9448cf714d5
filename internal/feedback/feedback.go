// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package feedback decides when to ask the visitor to rate an answer.
//
// Decide is a pure function of the exchange and a running count of
// qualifying exchanges. Gate holds that count for a live conversation.
package feedback

import (
	"strings"
	"sync"
	"unicode"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/model"
)

// Exchange is one user turn and the answer it received.
type Exchange struct {
	UserText     string
	BotText      string
	ResponseType string
}

// Reasons reported in a Decision.
const (
	ReasonClosing      = "closing intent"
	ReasonNotGrounded  = "not a knowledge-base answer"
	ReasonGreeting     = "short greeting"
	ReasonError        = "error answer"
	ReasonInterval     = "interval"
	ReasonSkipInterval = "between intervals"
	ReasonDisabled     = "disabled"
)

// Decision is the outcome for one exchange.
type Decision struct {
	Offer bool
	// Qualifying marks exchanges that advance the running count.
	Qualifying bool
	Reason     string
}

// Policy tunes Decide.
type Policy struct {
	Enabled bool
	// Interval offers feedback on the first qualifying exchange and then
	// every Interval-th one. Values below 1 mean every time.
	Interval int
	// MaxGreetingWords bounds what counts as a short greeting.
	MaxGreetingWords int
	Greetings        []string
	ClosingPhrases   []string
}

// DefaultPolicy offers feedback on every knowledge-base answer.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:          true,
		Interval:         1,
		MaxGreetingWords: 4,
		Greetings: []string{
			"hi", "hello", "hey", "hiya", "yo", "greetings", "howdy",
			"good morning", "good afternoon", "good evening",
		},
		ClosingPhrases: []string{
			"thanks", "thank you", "thank u", "thx", "ty", "cheers",
			"bye", "goodbye", "good bye", "bye bye", "see you", "see ya",
			"that's all", "thats all", "that is all", "have a nice day", "have a good day",
		},
	}
}

// PolicyFrom applies the widget's feedback settings to DefaultPolicy.
func PolicyFrom(cfg config.FeedbackConfig) Policy {
	p := DefaultPolicy()
	p.Enabled = cfg.Enabled
	p.Interval = cfg.Interval
	return p
}

// Decide reports whether to offer feedback for ex, given how many
// qualifying exchanges came before it.
//
// Closing intent always offers. Otherwise only knowledge-base answers
// qualify, and short greetings are suppressed even then.
func Decide(ex Exchange, qualifyingSoFar int, p Policy) Decision {
	if !p.Enabled {
		return Decision{Reason: ReasonDisabled}
	}
	if strings.TrimSpace(ex.BotText) == "" {
		return Decision{Reason: ReasonError}
	}

	words := normalize(ex.UserText)
	if IsClosing(words, p.ClosingPhrases) {
		return Decision{Offer: true, Reason: ReasonClosing}
	}
	if ex.ResponseType != model.ResponseKnowledgeBase {
		return Decision{Reason: ReasonNotGrounded}
	}
	if isGreeting(words, p) {
		return Decision{Reason: ReasonGreeting}
	}

	interval := p.Interval
	if interval < 1 {
		interval = 1
	}
	if qualifyingSoFar%interval == 0 {
		return Decision{Offer: true, Qualifying: true, Reason: ReasonInterval}
	}
	return Decision{Qualifying: true, Reason: ReasonSkipInterval}
}

// IsClosing reports whether words contain a closing phrase and do not form
// a question.
func IsClosing(words []string, phrases []string) bool {
	if len(words) == 0 {
		return false
	}
	if words[len(words)-1] == "?" {
		return false
	}
	for _, phrase := range phrases {
		if containsSeq(words, normalize(phrase)) {
			return true
		}
	}
	return false
}

func isGreeting(words []string, p Policy) bool {
	n := len(words)
	if n > 0 && words[n-1] == "?" {
		n--
	}
	if n == 0 || n > p.MaxGreetingWords {
		return false
	}
	for _, g := range p.Greetings {
		gw := normalize(g)
		if len(gw) <= n && equalSeq(words[:len(gw)], gw) {
			return true
		}
	}
	return false
}

// normalize lowercases s and splits it into words. A trailing question mark
// survives as its own token.
func normalize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	question := strings.HasSuffix(s, "?")
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case r == '\'' || r == '’':
			return '\''
		}
		return ' '
	}, s)
	words := strings.Fields(s)
	if question {
		words = append(words, "?")
	}
	return words
}

func containsSeq(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		if equalSeq(words[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

func equalSeq(a, b []string) bool {
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

// =============================================================================
// GATE
// =============================================================================

// Gate applies Decide with a running counter. It is safe for concurrent
// use.
type Gate struct {
	mu     sync.Mutex
	policy Policy
	count  int
}

// NewGate creates a gate with policy p.
func NewGate(p Policy) *Gate {
	return &Gate{policy: p}
}

// Offer decides for ex and advances the counter when ex qualifies.
func (g *Gate) Offer(ex Exchange) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := Decide(ex, g.count, g.policy)
	if d.Qualifying {
		g.count++
	}
	return d
}

// Count returns the number of qualifying exchanges so far.
func (g *Gate) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

// SetPolicy replaces the policy, keeping the counter.
func (g *Gate) SetPolicy(p Policy) {
	g.mu.Lock()
	g.policy = p
	g.mu.Unlock()
}

// Reset zeroes the counter.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.count = 0
	g.mu.Unlock()
}
