// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui hosts the widget in a full-screen Bubble Tea program.
//
// The widget drives a ProgramView, which turns every display call into a
// tea.Msg. Key presses become widget.Events run by a widget.Dispatcher on a
// command goroutine, so a slow turn never blocks the event loop.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/ui/styles"
	"github.com/Frankambaa/TaskMaster/internal/voice"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// =============================================================================
// CONTROL MESSAGES
// =============================================================================

type (
	// attachedMsg carries the widget once Init has finished.
	attachedMsg struct {
		w   *widget.Widget
		err error
	}
	// opDoneMsg reports a dispatched event.
	opDoneMsg struct {
		intent    widget.Intent
		messageID string
		err       error
	}
)

// =============================================================================
// ENTRY
// =============================================================================

type entry struct {
	msg      model.Message
	markup   string
	revealed bool
	// feedback is "", "offered", "up" or "down".
	feedback string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the terminal widget.
type Model struct {
	ctx   context.Context
	theme *styles.Theme
	keys  KeyMap
	start func() tea.Msg

	w        *widget.Widget
	dispatch *widget.Dispatcher
	title    string

	width, height int
	viewport      viewport.Model
	input         textinput.Model
	spinner       spinner.Model
	help          help.Model

	entries []entry
	index   map[string]int

	open         bool
	typing       bool
	inputEnabled bool
	sessionLine  string
	voiceState   voice.State
	voiceShown   bool
	confirming   bool
	status       string
	fatal        error
}

// New creates the model. start runs as the first command and must return
// an attachedMsg; Run supplies one that initializes the widget.
func New(ctx context.Context, theme *styles.Theme, title string, start func() tea.Msg) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type your message..."
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
		FPS:    spinner.Dot.FPS,
	}
	sp.Style = theme.Typing

	vp := viewport.New(80, 20)

	return Model{
		ctx:          ctx,
		theme:        theme,
		keys:         DefaultKeyMap(),
		start:        start,
		title:        title,
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		help:         help.New(),
		index:        make(map[string]int),
		inputEnabled: true,
		voiceState:   voice.StateDisconnected,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.start != nil {
		cmds = append(cmds, m.start)
	}
	return tea.Batch(cmds...)
}

// Err returns the error that ended the program, if any.
func (m Model) Err() error {
	return m.fatal
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case attachedMsg:
		if msg.err != nil {
			m.fatal = msg.err
			return m, tea.Quit
		}
		m.w = msg.w
		m.dispatch = widget.NewDispatcher(msg.w, nil)
		if t := msg.w.Config().Display.Title; t != "" {
			m.title = t
		}
		return m, nil

	case opDoneMsg:
		return m.handleOpDone(msg), nil

	case messageShownMsg:
		m.add(entry{msg: msg.msg, markup: msg.markup, revealed: true})
		m.refresh(true)
	case revealBeganMsg:
		m.add(entry{msg: msg.msg})
		m.refresh(true)
	case revealFrameMsg:
		if i, ok := m.index[msg.id]; ok {
			m.entries[i].markup = msg.markup
			m.entries[i].revealed = msg.final
			m.refresh(true)
		}
	case messagesClearedMsg:
		m.entries = nil
		m.index = make(map[string]int)
		m.refresh(false)
	case typingMsg:
		m.typing = bool(msg)
		m.layout()
	case inputEnabledMsg:
		m.inputEnabled = bool(msg)
		if m.inputEnabled {
			m.input.Focus()
		} else {
			m.input.Blur()
		}
	case openMsg:
		m.open = bool(msg)
	case sessionLineMsg:
		m.sessionLine = string(msg)
	case voiceStateMsg:
		m.voiceState = voice.State(msg)
		m.voiceShown = true
	case feedbackOfferedMsg:
		if i, ok := m.index[string(msg)]; ok {
			m.entries[i].feedback = "offered"
			m.refresh(true)
		}
	case scrollMsg:
		m.viewport.GotoBottom()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.w == nil {
		return m, nil
	}

	if m.confirming {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirming = false
			m.status = ""
			return m, m.run(widget.Event{Intent: widget.IntentClear})
		case key.Matches(msg, m.keys.Deny):
			m.confirming = false
			m.status = ""
		}
		return m, nil
	}

	if !m.open {
		if key.Matches(msg, m.keys.Toggle, m.keys.Submit) {
			return m, m.run(widget.Event{Intent: widget.IntentOpen})
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Toggle):
		return m, m.run(widget.Event{Intent: widget.IntentClose})
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil
	case key.Matches(msg, m.keys.Voice):
		return m, m.run(widget.Event{Intent: widget.IntentVoiceToggle})
	case key.Matches(msg, m.keys.Clear):
		m.confirming = true
		m.status = widget.ConfirmClear + " (y/n)"
		return m, nil
	case key.Matches(msg, m.keys.FeedbackUp, m.keys.FeedbackDown):
		id := m.latestOffer()
		if id == "" {
			return m, nil
		}
		intent := widget.IntentFeedbackDown
		if key.Matches(msg, m.keys.FeedbackUp) {
			intent = widget.IntentFeedbackUp
		}
		return m, m.run(widget.Event{Intent: intent, MessageID: id})
	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if !m.inputEnabled || strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		return m, m.run(widget.Event{Intent: widget.IntentSubmit, Text: text})
	}

	if !m.inputEnabled {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleOpDone(msg opDoneMsg) Model {
	switch {
	case msg.err == nil:
		if msg.intent == widget.IntentFeedbackUp || msg.intent == widget.IntentFeedbackDown {
			if i, ok := m.index[msg.messageID]; ok {
				m.entries[i].feedback = "down"
				if msg.intent == widget.IntentFeedbackUp {
					m.entries[i].feedback = "up"
				}
				m.refresh(false)
			}
		}
	case msg.intent == widget.IntentSubmit:
		// Turn failures are already in the conversation.
	case errors.Is(msg.err, widget.ErrVoiceUnavailable):
		m.status = "Voice is not available in this session."
	default:
		m.status = fmt.Sprintf("%s failed: %v", msg.intent, msg.err)
	}
	return m
}

// run dispatches ev off the event loop.
func (m Model) run(ev widget.Event) tea.Cmd {
	d, ctx := m.dispatch, m.ctx
	return func() tea.Msg {
		err := d.Dispatch(ctx, ev)
		return opDoneMsg{intent: ev.Intent, messageID: ev.MessageID, err: err}
	}
}

func (m *Model) add(e entry) {
	if i, ok := m.index[e.msg.ID]; ok {
		m.entries[i] = e
		return
	}
	m.index[e.msg.ID] = len(m.entries)
	m.entries = append(m.entries, e)
}

func (m Model) latestOffer() string {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].feedback == "offered" {
			return m.entries[i].msg.ID
		}
	}
	return ""
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	header := lipgloss.Height(m.theme.HeaderLine(m.title, m.sessionLine, m.width))
	inputH := 3
	footer := lipgloss.Height(m.help.View(m.keys)) + 1
	typing := 0
	if m.typing {
		typing = 1
	}
	h := m.height - header - inputH - footer - typing
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - 6
	m.help.Width = m.width
}

// refresh re-renders the conversation into the viewport.
func (m *Model) refresh(follow bool) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderEntries())
	if follow && atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderEntries() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	bubbleW := width * 3 / 4
	if bubbleW < 20 {
		bubbleW = width
	}

	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		style := m.theme.BubbleFor(e.msg)
		body := e.markup
		if body == "" && !e.revealed {
			body = " "
		}
		bubble := style.MaxWidth(bubbleW).Render(body)
		stamp := m.theme.Timestamp.Render(e.msg.Sender.DisplayName() + " · " + e.msg.Timestamp.Format("15:04"))

		pos := lipgloss.Left
		if e.msg.IsUser() {
			pos = lipgloss.Right
		}
		b.WriteString(lipgloss.PlaceHorizontal(width, pos, stamp))
		b.WriteString("\n")
		b.WriteString(lipgloss.PlaceHorizontal(width, pos, bubble))

		switch e.feedback {
		case "offered":
			b.WriteString("\n" + m.theme.FeedbackHint.Render("Was this helpful?  C-y yes · C-n no"))
		case "up", "down":
			b.WriteString("\n" + m.theme.FeedbackHint.Render("Thanks for your feedback!"))
		}
	}
	return b.String()
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Starting..."
	}
	if m.w == nil {
		return m.theme.Footer.Render("Connecting...")
	}

	if !m.open {
		launcher := m.theme.Launcher.Render("💬 " + m.title + "  (Enter to open)")
		pad := m.height - lipgloss.Height(launcher)
		if pad < 0 {
			pad = 0
		}
		return strings.Repeat("\n", pad) + m.theme.AlignLauncher(launcher, m.width)
	}

	var sections []string
	header := m.sessionLine
	if m.voiceShown {
		header = m.theme.VoiceLabel(m.voiceState) + " " + header
	}
	sections = append(sections, m.theme.HeaderLine(m.title, header, m.width))
	sections = append(sections, m.viewport.View())
	if m.typing {
		sections = append(sections, m.theme.Typing.Render("Typing ")+m.spinner.View())
	}

	box := m.theme.InputBox
	if !m.inputEnabled {
		box = m.theme.InputDisabled
	}
	sections = append(sections, box.Width(m.width-2).Render(m.input.View()))

	footer := m.help.View(m.keys)
	if m.status != "" {
		footer = m.theme.Footer.Render(m.status) + "\n" + footer
	}
	sections = append(sections, footer)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
