// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/AlecAivazis/survey/v2"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/Frankambaa/TaskMaster/internal/export"
	"github.com/Frankambaa/TaskMaster/internal/storage"
)

func newTranscriptCommand(flags *globalFlags) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:     "transcript",
		Aliases: []string{"transcripts"},
		Short:   "List archived conversations",
		Long: `Conversations are archived locally when storage.enabled is set. Sessions
are numbered from 1, most recent first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withArchive(flags, func(a *storage.Archive) error {
				return listTranscripts(cmd.Context(), a, cmd.OutOrStdout(), search)
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only sessions containing this text")

	var raw bool
	show := &cobra.Command{
		Use:   "show <number|session-id>",
		Short: "Render one archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(flags, func(a *storage.Archive) error {
				style := "notty"
				if !raw && IsStdoutTTY() {
					style = "auto"
				}
				return showTranscript(cmd.Context(), a, cmd.OutOrStdout(), args[0], raw, style, TerminalWidth())
			})
		},
	}
	show.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")

	var yes bool
	del := &cobra.Command{
		Use:   "delete <number|session-id>",
		Short: "Delete one archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(flags, func(a *storage.Archive) error {
				meta, err := resolveSession(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				if !yes {
					if !IsTTY() {
						return &CommandError{Command: "transcript", Action: "delete", Reason: "confirmation required, pass --yes"}
					}
					ok := false
					prompt := &survey.Confirm{Message: fmt.Sprintf("Delete conversation %q?", meta.Summary)}
					if err := survey.AskOne(prompt, &ok); err != nil || !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
						return nil
					}
				}
				if err := a.Delete(cmd.Context(), meta.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", meta.ID)
				return nil
			})
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	var format, outDir string
	exp := &cobra.Command{
		Use:   "export <number|session-id>",
		Short: "Write one archived conversation to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(flags, func(a *storage.Archive) error {
				path, err := exportTranscript(cmd.Context(), a, args[0], format, outDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
				return nil
			})
		},
	}
	exp.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "markdown, json or html")
	exp.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")

	cmd.AddCommand(show, exp, del)
	return cmd
}

// withArchive opens the transcript archive named by the configuration.
func withArchive(flags *globalFlags, fn func(*storage.Archive) error) error {
	a, err := newApp(flags, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openArchive(); err != nil {
		return &CommandError{Command: "transcript", Action: "open", Reason: "archive unavailable", Err: err}
	}
	return fn(a.archive)
}

// resolveSession accepts a 1-based list number or a session id.
func resolveSession(ctx context.Context, a *storage.Archive, ref string) (storage.SessionMeta, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		meta, err := a.SessionByIndex(ctx, n-1)
		if errors.Is(err, storage.ErrSessionNotFound) {
			return meta, &NotFoundError{Resource: "conversation", ID: ref}
		}
		return meta, err
	}
	sessions, err := a.Sessions(ctx)
	if err != nil {
		return storage.SessionMeta{}, err
	}
	for _, s := range sessions {
		if s.ID == ref {
			return s, nil
		}
	}
	return storage.SessionMeta{}, &NotFoundError{Resource: "conversation", ID: ref}
}

func listTranscripts(ctx context.Context, a *storage.Archive, out io.Writer, query string) error {
	var (
		sessions []storage.SessionMeta
		err      error
	)
	if strings.TrimSpace(query) != "" {
		sessions, err = a.Search(ctx, query)
	} else {
		sessions, err = a.Sessions(ctx)
	}
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No archived conversations.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUPDATED\tMESSAGES\tSUMMARY")
	for i, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.MessageCount, s.Summary)
	}
	return tw.Flush()
}

func showTranscript(ctx context.Context, a *storage.Archive, out io.Writer, ref string, raw bool, style string, width int) error {
	meta, err := resolveSession(ctx, a, ref)
	if err != nil {
		return err
	}
	msgs, err := a.Messages(ctx, meta.ID)
	if err != nil {
		return err
	}

	md, err := export.NewMarkdownExporter().Export(export.Transcript{Meta: meta, Messages: msgs})
	if err != nil {
		return err
	}
	doc := string(md)
	if raw {
		_, err := io.WriteString(out, doc)
		return err
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		_, err := io.WriteString(out, doc)
		return err
	}
	rendered, err := r.Render(doc)
	if err != nil {
		_, err := io.WriteString(out, doc)
		return err
	}
	_, err = io.WriteString(out, rendered)
	return err
}

func exportTranscript(ctx context.Context, a *storage.Archive, ref, format, dir string) (string, error) {
	exporter, err := export.For(format)
	if err != nil {
		return "", err
	}
	meta, err := resolveSession(ctx, a, ref)
	if err != nil {
		return "", err
	}
	msgs, err := a.Messages(ctx, meta.ID)
	if err != nil {
		return "", err
	}
	return export.ToFile(export.Transcript{Meta: meta, Messages: msgs}, exporter, dir)
}
