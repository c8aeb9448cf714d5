// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/Frankambaa/TaskMaster/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter lays out a conversation as a markdown document. Bot
// answers are already markdown; user text is quoted so it renders as typed.
type MarkdownExporter struct{}

// NewMarkdownExporter creates a markdown exporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{}
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(t Transcript) ([]byte, error) {
	if err := check(t); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(util.TruncateRunes(t.Title(), 60)))
	fmt.Fprintf(&b, "_%s · %d messages_\n\n", t.Meta.CreatedAt.Local().Format("2006-01-02 15:04"), len(t.Messages))

	for _, m := range t.Messages {
		fmt.Fprintf(&b, "**%s** · %s\n\n", roleLabel(m), m.Timestamp.Local().Format("15:04"))
		if m.IsUser() {
			for _, line := range strings.Split(m.Text, "\n") {
				fmt.Fprintf(&b, "> %s\n", escapeMarkdown(line))
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(strings.TrimSpace(m.Text))
		b.WriteString("\n\n")
	}
	return []byte(b.String()), nil
}

func (e *MarkdownExporter) FileExtension() string { return ".md" }
func (e *MarkdownExporter) MimeType() string      { return "text/markdown" }

// escapeMarkdown neutralizes emphasis and code markers in user text.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"#", `\#`,
	).Replace(s)
}
