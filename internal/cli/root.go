// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Frankambaa/TaskMaster/internal/ui"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand builds the taskmaster command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "taskmaster",
		Short: "Conversational support widget for the terminal",
		Long: `TaskMaster talks to a support answer API. Without a subcommand it opens
the full-screen chat panel, or a line chat when the terminal is not
interactive.`,
		Example: `  # Open the chat panel
  $ taskmaster

  # Line chat against a specific endpoint
  $ TASKMASTER_API_URL=https://support.example.com/api taskmaster chat

  # Review an archived conversation
  $ taskmaster transcript show 1`,
		Version:       fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !Interactive() {
				return runChat(cmd.Context(), flags, chatOptions{in: cmd.InOrStdin(), out: cmd.OutOrStdout()})
			}
			return runPanel(cmd.Context(), flags)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default ~/.taskmaster/config.toml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newChatCommand(flags),
		newTranscriptCommand(flags),
		newConfigCommand(flags),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		red := color.New(color.FgRed, color.Bold)
		red.Fprint(stderr, "Error: ")
		fmt.Fprintln(stderr, err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// runPanel hosts the widget in the full-screen terminal panel.
func runPanel(ctx context.Context, flags *globalFlags) error {
	a, err := newApp(flags, true)
	if err != nil {
		return err
	}
	defer a.Close()

	return ui.Run(ctx, a.cfg, func(w *widget.Widget) {
		a.watch(ctx, w)
	}, a.widgetOptions(ctx)...)
}
