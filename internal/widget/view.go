// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// View is the display surface the widget drives. The terminal UI, the line
// REPL and tests each provide one. Methods may be called from any goroutine;
// implementations serialize as they need to.
type View interface {
	// ShowMessage displays msg with its formatted markup in one step.
	ShowMessage(msg model.Message, markup string)
	// BeginReveal creates an empty bubble for msg and returns the target
	// the reveal writes into.
	BeginReveal(msg model.Message) render.Target
	// ClearMessages removes every bubble.
	ClearMessages()

	SetTyping(on bool)
	SetInputEnabled(on bool)
	SetOpen(open bool)
	SetSessionLine(line string)
	SetVoiceState(s voice.State)

	// OfferFeedback shows the rating affordance under a bot message.
	OfferFeedback(messageID string)
	ScrollToLatest()
}

// NopView discards everything. It is the default for headless use.
type NopView struct{}

var _ View = NopView{}

func (NopView) ShowMessage(model.Message, string) {}
func (NopView) BeginReveal(msg model.Message) render.Target {
	return nopTarget(msg.ID)
}
func (NopView) ClearMessages() {}
func (NopView) SetTyping(bool) {}
func (NopView) SetInputEnabled(bool) {}
func (NopView) SetOpen(bool) {}
func (NopView) SetSessionLine(string) {}
func (NopView) SetVoiceState(voice.State) {}
func (NopView) OfferFeedback(string) {}
func (NopView) ScrollToLatest() {}

type nopTarget string

func (t nopTarget) TargetID() string { return string(t) }
func (nopTarget) Frame(string) {}
func (nopTarget) Complete(string) {}
