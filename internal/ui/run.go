// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/ui/styles"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// Run starts the full-screen widget and blocks until the user quits or ctx
// ends. opts are passed to widget.Init after the view and renderer, so a
// caller may still override them. attached, when set, receives the widget
// once it is ready so the caller can push config updates into it.
func Run(ctx context.Context, cfg *config.WidgetConfig, attached func(*widget.Widget), opts ...widget.Option) error {
	theme := styles.NewTheme(cfg.Display.Theme)
	if cfg.Display.Position != "" {
		theme.Position = cfg.Display.Position
	}

	var (
		p *tea.Program
		w atomic.Pointer[widget.Widget]
	)

	// widget.Init drives the view, and Program.Send blocks until the event
	// loop is running, so Init runs as the first command.
	start := func() tea.Msg {
		all := append([]widget.Option{
			widget.WithView(NewProgramView(p.Send)),
			widget.WithRenderer(render.NewANSIRenderer(theme.ANSI())),
		}, opts...)
		created, err := widget.Init(ctx, cfg, all...)
		if err == nil {
			w.Store(created)
			if attached != nil {
				attached(created)
			}
		}
		return attachedMsg{w: created, err: err}
	}

	m := New(ctx, theme, cfg.Display.Title, start)
	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	final, err := p.Run()
	if created := w.Load(); created != nil {
		_ = created.Destroy()
	}
	if err != nil {
		return fmt.Errorf("run terminal widget: %w", err)
	}
	if fm, ok := final.(Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}
