// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/storage"
	"github.com/Frankambaa/TaskMaster/internal/util"
)

// ErrEmpty is returned for a transcript without messages.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Transcript is one archived conversation.
type Transcript struct {
	Meta     storage.SessionMeta `json:"session"`
	Messages []model.Message     `json:"messages"`
}

// Title is the summary, or the session id when there is none.
func (t Transcript) Title() string {
	if t.Meta.Summary != "" {
		return t.Meta.Summary
	}
	return t.Meta.ID
}

// Exporter converts a transcript to one output format.
type Exporter interface {
	Export(t Transcript) ([]byte, error)
	// FileExtension includes the dot, e.g. ".md".
	FileExtension() string
	MimeType() string
}

// Formats accepted by For.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
)

// For returns the exporter for format. "md" is accepted for markdown.
func For(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "md", "":
		return NewMarkdownExporter(), nil
	case FormatJSON:
		return NewJSONExporter(), nil
	case FormatHTML, "htm":
		return NewHTMLExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use markdown, json or html)", format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports t into dir and returns the written path. The file name is
// built from the title and the current time.
func ToFile(t Transcript, exporter Exporter, dir string) (string, error) {
	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(t.Title()),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// any platform and caps the length.
func sanitizeFilename(s string) string {
	s = util.TruncateRunesNoEllipsis(s, 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

func check(t Transcript) error {
	if len(t.Messages) == 0 {
		return ErrEmpty
	}
	return nil
}

func roleLabel(m model.Message) string {
	label := m.Sender.DisplayName()
	if m.IsError {
		label += " (error)"
	}
	return label
}
