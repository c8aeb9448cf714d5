// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"golang.org/x/term"
)

const (
	// DefaultTerminalWidth is used when stdout is not a terminal.
	DefaultTerminalWidth = 80
	// MinTerminalWidth keeps rendered transcripts readable in narrow panes.
	MinTerminalWidth = 40
)

func isTerminal(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// IsTTY reports whether stdin is a terminal, so prompts can be answered.
func IsTTY() bool { return isTerminal(os.Stdin) }

// IsStdoutTTY reports whether output can carry color and redraws.
func IsStdoutTTY() bool { return isTerminal(os.Stdout) }

// Interactive reports whether the full-screen panel can run.
func Interactive() bool { return IsTTY() && IsStdoutTTY() }

// TerminalWidth returns the stdout width clamped to MinTerminalWidth.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || w <= 0:
		return DefaultTerminalWidth
	case w < MinTerminalWidth:
		return MinTerminalWidth
	default:
		return w
	}
}
