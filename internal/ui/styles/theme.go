// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// Theme modes accepted from the widget configuration.
const (
	ModeLight = "light"
	ModeDark  = "dark"
	ModeAuto  = "auto"
)

// Theme holds all the styled components of the terminal host.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Position is "bottom-right" or "bottom-left"; the launcher line is
	// aligned to it.
	Position string

	// ==========================================================================
	// FRAME
	// ==========================================================================

	Header      lipgloss.Style
	Title       lipgloss.Style
	SessionLine lipgloss.Style
	Footer      lipgloss.Style
	Launcher    lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLES
	// ==========================================================================

	UserBubble    lipgloss.Style
	BotBubble     lipgloss.Style
	ErrorBubble   lipgloss.Style
	HistoryBubble lipgloss.Style
	Timestamp     lipgloss.Style
	Typing        lipgloss.Style
	FeedbackHint  lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	InputBox      lipgloss.Style
	InputDisabled lipgloss.Style

	// VoiceBadge styles the voice state indicator.
	VoiceBadge map[voice.State]lipgloss.Style
}

// NewTheme creates a theme for mode. Unknown modes behave like "auto",
// which asks the terminal for its background.
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeLight:
		isDark = false
	case ModeDark:
		isDark = true
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
		Position:     "bottom-right",
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Accent).
		Padding(0, 1)

	t.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Brand)

	t.SessionLine = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.Footer = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Launcher = lipgloss.NewStyle().
		Bold(true).
		Foreground(Brand).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Accent).
		Padding(0, 2)

	bubble := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1)

	t.UserBubble = bubble.
		Foreground(UserBubbleFg).
		BorderForeground(UserBubbleBorder)

	t.BotBubble = bubble.
		Foreground(BotBubbleFg).
		BorderForeground(BotBubbleBorder)

	t.ErrorBubble = bubble.
		Foreground(ErrorBubbleFg).
		BorderForeground(ErrorBubbleBorder)

	t.HistoryBubble = bubble.
		Foreground(HistoryFg).
		BorderForeground(Overlay)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted).
		Faint(true)

	t.Typing = lipgloss.NewStyle().
		Foreground(Accent).
		Italic(true)

	t.FeedbackHint = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.InputBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Accent).
		Padding(0, 1)

	t.InputDisabled = t.InputBox.
		BorderForeground(Overlay).
		Foreground(TextMuted)

	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	t.VoiceBadge = map[voice.State]lipgloss.Style{
		voice.StateIdle:         badge.Foreground(TextSecondary),
		voice.StateListening:    badge.Foreground(Success),
		voice.StateSynthesizing: badge.Foreground(Warning),
		voice.StateDisconnected: badge.Foreground(TextMuted),
	}
}

// ANSI returns renderer styles matching the theme.
func (t *Theme) ANSI() render.ANSIStyles {
	s := render.DefaultANSIStyles()
	s.Code = lipgloss.NewStyle().Foreground(CodeFg)
	s.Link = lipgloss.NewStyle().Underline(true).Foreground(LinkFg)
	s.Bullet = lipgloss.NewStyle().Foreground(Accent)
	return s
}

// BubbleFor returns the bubble style for msg.
func (t *Theme) BubbleFor(msg model.Message) lipgloss.Style {
	switch {
	case msg.IsError:
		return t.ErrorBubble
	case msg.Historical:
		return t.HistoryBubble
	case msg.IsUser():
		return t.UserBubble
	default:
		return t.BotBubble
	}
}

// VoiceLabel renders the voice indicator for s.
func (t *Theme) VoiceLabel(s voice.State) string {
	style, ok := t.VoiceBadge[s]
	if !ok {
		style = t.VoiceBadge[voice.StateIdle]
	}
	var label string
	switch s {
	case voice.StateListening:
		label = "● listening"
	case voice.StateSynthesizing:
		label = "♪ speaking"
	case voice.StateDisconnected:
		label = "○ voice off"
	default:
		label = "◌ voice idle"
	}
	return style.Render(label)
}

// HeaderLine lays out the title on the left and the session line on the
// right within width columns. The title is truncated first.
func (t *Theme) HeaderLine(title, session string, width int) string {
	inner := width - t.Header.GetHorizontalFrameSize()
	if inner < 1 {
		inner = 1
	}
	sessionW := runewidth.StringWidth(session)
	if sessionW > inner/2 {
		session = runewidth.Truncate(session, inner/2, "…")
		sessionW = runewidth.StringWidth(session)
	}
	titleMax := inner - sessionW - 1
	if titleMax < 1 {
		titleMax = 1
	}
	title = runewidth.Truncate(title, titleMax, "…")
	gap := inner - runewidth.StringWidth(title) - sessionW
	if gap < 1 {
		gap = 1
	}
	line := t.Title.Render(title) + strings.Repeat(" ", gap) + t.SessionLine.Render(session)
	return t.Header.Width(inner + t.Header.GetHorizontalPadding()).Render(line)
}

// AlignLauncher places the closed-widget launcher at the configured corner.
func (t *Theme) AlignLauncher(launcher string, width int) string {
	pos := lipgloss.Right
	if t.Position == "bottom-left" {
		pos = lipgloss.Left
	}
	return lipgloss.PlaceHorizontal(width, pos, launcher)
}
