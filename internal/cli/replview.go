// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/voice"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// replView prints the conversation as a scrolling transcript. A line
// terminal cannot redraw a bubble, so reveals print only their final frame.
type replView struct {
	out io.Writer
	tty bool

	bot, user, errc, dim, accent *color.Color

	mu          sync.Mutex
	open        bool
	typing      bool
	sessionLine string
	voiceState  voice.State
	offered     string
}

var _ widget.View = (*replView)(nil)

func newReplView(out io.Writer, tty bool) *replView {
	v := &replView{
		out:        out,
		tty:        tty,
		bot:        color.New(color.FgCyan, color.Bold),
		user:       color.New(color.FgGreen, color.Bold),
		errc:       color.New(color.FgRed),
		dim:        color.New(color.Faint),
		accent:     color.New(color.FgMagenta),
		voiceState: voice.StateDisconnected,
	}
	if !tty {
		for _, c := range []*color.Color{v.bot, v.user, v.errc, v.dim, v.accent} {
			c.DisableColor()
		}
	}
	return v
}

func (v *replView) prompt() string {
	if v.tty {
		return "you> "
	}
	return ""
}

// =============================================================================
// widget.View
// =============================================================================

func (v *replView) ShowMessage(msg model.Message, markup string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printLocked(msg, markup)
}

func (v *replView) BeginReveal(msg model.Message) render.Target {
	return &replTarget{view: v, msg: msg}
}

func (v *replView) ClearMessages() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offered = ""
	v.dim.Fprintln(v.out, "-- conversation cleared --")
}

func (v *replView) SetTyping(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if on == v.typing {
		return
	}
	v.typing = on
	if !v.tty {
		return
	}
	if on {
		v.dim.Fprint(v.out, "typing…")
	} else {
		fmt.Fprint(v.out, "\r"+strings.Repeat(" ", len("typing…"))+"\r")
	}
}

func (v *replView) SetInputEnabled(bool) {}

func (v *replView) SetOpen(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if open == v.open {
		return
	}
	v.open = open
	if open {
		v.dim.Fprintln(v.out, "-- widget open --")
	} else {
		v.dim.Fprintln(v.out, "-- widget closed --")
	}
}

func (v *replView) SetSessionLine(line string) {
	v.mu.Lock()
	v.sessionLine = line
	v.mu.Unlock()
}

func (v *replView) SetVoiceState(s voice.State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s == v.voiceState {
		return
	}
	v.voiceState = s
	v.accent.Fprintf(v.out, "[voice %s]\n", s)
}

func (v *replView) OfferFeedback(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offered = id
	v.dim.Fprintln(v.out, "Was this helpful? /good or /bad")
}

func (v *replView) ScrollToLatest() {}

// =============================================================================
// REPL OUTPUT
// =============================================================================

func (v *replView) printLocked(msg model.Message, markup string) {
	label := v.bot
	switch {
	case msg.IsError:
		label = v.errc
	case msg.IsUser():
		// The line editor already echoed what the user typed.
		if !msg.Historical {
			return
		}
		label = v.user
	}
	prefix := msg.Sender.DisplayName()
	if msg.Historical {
		prefix += " (earlier)"
	}
	label.Fprintf(v.out, "%s: ", prefix)
	fmt.Fprintln(v.out, markup)
}

func (v *replView) lastOffer() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offered
}

func (v *replView) feedbackSent() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offered = ""
	v.dim.Fprintln(v.out, "Thanks for your feedback!")
}

func (v *replView) printSession(sessionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "Session: %s\n", sessionID)
	if v.sessionLine != "" {
		fmt.Fprintf(v.out, "Status:  %s\n", v.sessionLine)
	}
	fmt.Fprintf(v.out, "Voice:   %s\n", v.voiceState)
}

func (v *replView) notice(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dim.Fprintln(v.out, text)
}

func (v *replView) failure(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errc.Fprintf(v.out, "Error: %v\n", err)
}

// replTarget prints a revealed bot message once it is complete.
type replTarget struct {
	view *replView
	msg  model.Message
	once sync.Once
}

func (t *replTarget) TargetID() string { return t.msg.ID }

func (t *replTarget) Frame(string) {}

func (t *replTarget) Complete(markup string) {
	t.once.Do(func() {
		t.view.mu.Lock()
		defer t.view.mu.Unlock()
		t.view.printLocked(t.msg, markup)
	})
}
