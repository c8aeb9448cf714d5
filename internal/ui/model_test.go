// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/ui/styles"
	"github.com/Frankambaa/TaskMaster/internal/voice"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	m := New(context.Background(), styles.NewTheme(styles.ModeDark), "Support", nil)
	return update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
}

// attach gives the model a headless widget backed by a server that
// refuses everything.
func attach(t *testing.T, m Model) Model {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.URL = srv.URL
	cfg.API.RequestTimeoutSecs = 2
	cfg.Display.TypingDelayMS = 0

	w, err := widget.Init(context.Background(), cfg, widget.WithView(widget.NopView{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Destroy() })
	return update(t, m, attachedMsg{w: w})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_ShowsMessagesBeforeAttach(t *testing.T) {
	m := newTestModel(t)
	welcome := model.NewBotMessage("Hello! How can I help?", "s", "")

	m = update(t, m, messageShownMsg{msg: welcome, markup: "Hello! How can I help?"})
	require.Len(t, m.entries, 1)
	assert.Contains(t, m.viewport.View(), "How can I help?")
	assert.Equal(t, "Connecting...", stripStyles(m.View()))
}

func TestModel_RevealFrames(t *testing.T) {
	m := newTestModel(t)
	bot := model.NewBotMessage("We open at nine", "s", "")

	m = update(t, m, revealBeganMsg{msg: bot})
	require.Len(t, m.entries, 1)
	assert.False(t, m.entries[0].revealed)

	m = update(t, m, revealFrameMsg{id: bot.ID, markup: "We open"})
	assert.Equal(t, "We open", m.entries[0].markup)
	assert.False(t, m.entries[0].revealed)

	m = update(t, m, revealFrameMsg{id: bot.ID, markup: "We open at nine", final: true})
	assert.True(t, m.entries[0].revealed)
	assert.Contains(t, m.viewport.View(), "We open at nine")

	// Frames for unknown bubbles are dropped.
	m = update(t, m, revealFrameMsg{id: "gone", markup: "x"})
	assert.Len(t, m.entries, 1)
}

func TestModel_ClearedAndFlags(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, messageShownMsg{msg: model.NewUserMessage("hi", "s"), markup: "hi"})
	m = update(t, m, messagesClearedMsg{})
	assert.Empty(t, m.entries)
	assert.Empty(t, m.index)

	m = update(t, m, typingMsg(true))
	m = update(t, m, inputEnabledMsg(false))
	m = update(t, m, openMsg(true))
	m = update(t, m, sessionLineMsg("Guest • 2 messages"))
	m = update(t, m, voiceStateMsg(voice.StateListening))
	assert.True(t, m.typing)
	assert.False(t, m.inputEnabled)
	assert.True(t, m.open)
	assert.Equal(t, "Guest • 2 messages", m.sessionLine)
	assert.Equal(t, voice.StateListening, m.voiceState)
}

func TestModel_FeedbackOffer(t *testing.T) {
	m := newTestModel(t)
	first := model.NewBotMessage("one", "s", "")
	second := model.NewBotMessage("two", "s", "")
	m = update(t, m, messageShownMsg{msg: first, markup: "one"})
	m = update(t, m, messageShownMsg{msg: second, markup: "two"})
	assert.Empty(t, m.latestOffer())

	m = update(t, m, feedbackOfferedMsg(first.ID))
	assert.Equal(t, first.ID, m.latestOffer())
	assert.Contains(t, m.viewport.View(), "Was this helpful?")

	m = update(t, m, opDoneMsg{intent: widget.IntentFeedbackUp, messageID: first.ID})
	assert.Equal(t, "up", m.entries[0].feedback)
	assert.Empty(t, m.latestOffer())
}

func TestModel_ClosedShowsLauncher(t *testing.T) {
	m := attach(t, newTestModel(t))
	m = update(t, m, openMsg(false))
	assert.Contains(t, stripStyles(m.View()), "Enter to open")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
}

func TestModel_ClearNeedsConfirmation(t *testing.T) {
	m := attach(t, newTestModel(t))
	m = update(t, m, openMsg(true))

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.True(t, m.confirming)
	assert.Contains(t, m.status, widget.ConfirmClear)

	m = update(t, m, keyRunes("n"))
	assert.False(t, m.confirming)
	assert.Empty(t, m.status)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	next, cmd := m.Update(keyRunes("y"))
	assert.False(t, next.(Model).confirming)
	assert.NotNil(t, cmd)
}

func TestModel_SubmitResetsInput(t *testing.T) {
	m := attach(t, newTestModel(t))
	m = update(t, m, openMsg(true))

	// Blank input sends nothing.
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	m = update(t, m, keyRunes("hours?"))
	assert.Equal(t, "hours?", m.input.Value())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
	assert.Empty(t, next.(Model).input.Value())

	// Input is ignored while a turn is running.
	m = update(t, next.(Model), inputEnabledMsg(false))
	m = update(t, m, keyRunes("more"))
	assert.Empty(t, m.input.Value())
}

func TestModel_OpDoneStatus(t *testing.T) {
	m := newTestModel(t)

	m = update(t, m, opDoneMsg{intent: widget.IntentSubmit, err: errors.New("boom")})
	assert.Empty(t, m.status)

	m = update(t, m, opDoneMsg{intent: widget.IntentVoiceToggle, err: widget.ErrVoiceUnavailable})
	assert.Contains(t, m.status, "Voice is not available")

	m = update(t, m, opDoneMsg{intent: widget.IntentClear, err: errors.New("refused")})
	assert.Contains(t, m.status, "refused")
}

func TestModel_AttachFailureQuits(t *testing.T) {
	m := newTestModel(t)
	next, cmd := m.Update(attachedMsg{err: errors.New("bad config")})
	require.NotNil(t, cmd)
	assert.EqualError(t, next.(Model).Err(), "bad config")
}

func stripStyles(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
