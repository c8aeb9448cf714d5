// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// =============================================================================
// COMMAND
// =============================================================================

type chatOptions struct {
	in  io.Reader
	out io.Writer
	// yes answers every confirmation with yes.
	yes bool
	// prompter overrides the line editor; tests script input with it.
	prompter prompter
	// extra options appended after the app's own.
	widgetOpts []widget.Option
}

func newChatCommand(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a line-oriented chat",
		Long: `Chat with the support assistant one line at a time. Type /help for the
in-chat commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), flags, chatOptions{
				in:  cmd.InOrStdin(),
				out: cmd.OutOrStdout(),
				yes: yes,
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompts")
	return cmd
}

// =============================================================================
// LINE INPUT
// =============================================================================

// prompter reads one line of input.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// lineEditor wraps liner with a persistent history file.
type lineEditor struct {
	*liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{State: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(e.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return e
}

// Close saves the history and restores the terminal.
func (e *lineEditor) Close() error {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = e.WriteHistory(f)
			f.Close()
		}
	}
	return e.State.Close()
}

// =============================================================================
// REPL
// =============================================================================

const chatHelp = `Commands:
  /help           Show this help
  /clear          Clear the conversation
  /voice          Turn voice on or off
  /good, /bad     Rate the last answer
  /toggle         Open or close the widget
  /session        Show session details
  /quit           Leave the chat`

// chatSession is one running line chat.
type chatSession struct {
	w        *widget.Widget
	dispatch *widget.Dispatcher
	view     *replView
	input    prompter
	out      io.Writer
}

func runChat(ctx context.Context, flags *globalFlags, opts chatOptions) error {
	a, err := newApp(flags, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := opts.out
	if out == nil {
		out = os.Stdout
	}
	input := opts.prompter
	if input == nil {
		editor := newLineEditor()
		defer editor.Close()
		input = editor
	}

	view := newReplView(out, IsStdoutTTY())
	all := append(a.widgetOptions(ctx),
		widget.WithView(view),
		widget.WithRenderer(render.NewANSIRenderer(render.DefaultANSIStyles())),
	)
	w, err := widget.Init(ctx, a.cfg, append(all, opts.widgetOpts...)...)
	if err != nil {
		return err
	}
	defer w.Destroy()
	a.watch(ctx, w)

	confirm := func(prompt string) bool {
		if opts.yes {
			return true
		}
		if !IsTTY() {
			fmt.Fprintln(out, "Run with --yes to confirm in non-interactive sessions.")
			return false
		}
		ok := false
		if err := survey.AskOne(&survey.Confirm{Message: prompt}, &ok); err != nil {
			return false
		}
		return ok
	}

	s := &chatSession{
		w:        w,
		dispatch: widget.NewDispatcher(w, confirm),
		view:     view,
		input:    input,
		out:      out,
	}
	return s.loop(ctx)
}

func (s *chatSession) loop(ctx context.Context) error {
	if !s.w.IsOpen() {
		_ = s.w.Open()
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.input.Prompt(s.view.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D and end of input all end the chat.
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.input.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		// Failed turns are already shown in the conversation.
		_ = s.dispatch.Dispatch(ctx, widget.Event{Intent: widget.IntentSubmit, Text: line})
	}
}

// command runs a slash command and reports whether the chat should end.
func (s *chatSession) command(ctx context.Context, line string) bool {
	name := strings.ToLower(strings.Fields(line)[0])

	var ev widget.Event
	switch name {
	case "/quit", "/q", "/exit":
		return true
	case "/help", "/h", "/?":
		fmt.Fprintln(s.out, chatHelp)
		return false
	case "/session":
		s.view.printSession(s.w.SessionID())
		return false
	case "/clear", "/c":
		ev = widget.Event{Intent: widget.IntentClear}
	case "/voice", "/v":
		ev = widget.Event{Intent: widget.IntentVoiceToggle}
	case "/toggle":
		ev = widget.Event{Intent: widget.IntentToggle}
	case "/good", "/bad":
		id := s.view.lastOffer()
		if id == "" {
			s.view.notice("There is no answer to rate yet.")
			return false
		}
		ev = widget.Event{Intent: widget.IntentFeedbackDown, MessageID: id}
		if name == "/good" {
			ev.Intent = widget.IntentFeedbackUp
		}
	default:
		s.view.notice(fmt.Sprintf("Unknown command %s. Type /help for commands.", name))
		return false
	}

	err := s.dispatch.Dispatch(ctx, ev)
	switch {
	case err == nil:
		if ev.Intent == widget.IntentFeedbackUp || ev.Intent == widget.IntentFeedbackDown {
			s.view.feedbackSent()
		}
	case errors.Is(err, widget.ErrVoiceUnavailable):
		s.view.notice("Voice is not available. Enable it and set voice.bridge_addr in the config.")
	default:
		s.view.failure(err)
	}
	return false
}
