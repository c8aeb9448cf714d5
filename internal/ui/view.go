// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/voice"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// =============================================================================
// VIEW MESSAGES
// =============================================================================

// Each widget.View call becomes one of these and is handled in Update, so
// the model is only ever touched from the Bubble Tea loop.
type (
	messageShownMsg struct {
		msg    model.Message
		markup string
	}
	revealBeganMsg struct{ msg model.Message }
	revealFrameMsg struct {
		id     string
		markup string
		final  bool
	}
	messagesClearedMsg struct{}
	typingMsg          bool
	inputEnabledMsg    bool
	openMsg            bool
	sessionLineMsg     string
	voiceStateMsg      voice.State
	feedbackOfferedMsg string
	scrollMsg          struct{}
)

// ProgramView implements widget.View by forwarding every call to a Bubble
// Tea program.
type ProgramView struct {
	send func(tea.Msg)
}

var _ widget.View = (*ProgramView)(nil)

// NewProgramView creates a view that delivers updates through send,
// usually (*tea.Program).Send.
func NewProgramView(send func(tea.Msg)) *ProgramView {
	return &ProgramView{send: send}
}

func (v *ProgramView) ShowMessage(msg model.Message, markup string) {
	v.send(messageShownMsg{msg: msg, markup: markup})
}

func (v *ProgramView) BeginReveal(msg model.Message) render.Target {
	v.send(revealBeganMsg{msg: msg})
	return &bubbleTarget{id: msg.ID, send: v.send}
}

func (v *ProgramView) ClearMessages() { v.send(messagesClearedMsg{}) }
func (v *ProgramView) SetTyping(on bool) { v.send(typingMsg(on)) }
func (v *ProgramView) SetInputEnabled(on bool) { v.send(inputEnabledMsg(on)) }
func (v *ProgramView) SetOpen(open bool) { v.send(openMsg(open)) }
func (v *ProgramView) SetSessionLine(line string) { v.send(sessionLineMsg(line)) }
func (v *ProgramView) SetVoiceState(s voice.State) { v.send(voiceStateMsg(s)) }
func (v *ProgramView) OfferFeedback(id string) { v.send(feedbackOfferedMsg(id)) }
func (v *ProgramView) ScrollToLatest() { v.send(scrollMsg{}) }

// bubbleTarget is the reveal target for one bot bubble.
type bubbleTarget struct {
	id   string
	send func(tea.Msg)
}

func (b *bubbleTarget) TargetID() string { return b.id }

func (b *bubbleTarget) Frame(markup string) {
	b.send(revealFrameMsg{id: b.id, markup: markup})
}

func (b *bubbleTarget) Complete(markup string) {
	b.send(revealFrameMsg{id: b.id, markup: markup, final: true})
}
