// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/logging"
	"github.com/Frankambaa/TaskMaster/internal/storage"
	"github.com/Frankambaa/TaskMaster/internal/voice/bridge"
	"github.com/Frankambaa/TaskMaster/internal/widget"
)

// configDebounce coalesces editor write bursts before a reload.
const configDebounce = 250 * time.Millisecond

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

// app is the runtime shared by the widget hosts: configuration, logging,
// the transcript archive and the voice bridge.
type app struct {
	cfg     *config.WidgetConfig
	path    string
	logger  *slog.Logger
	archive *storage.Archive

	mu      sync.Mutex
	closers []io.Closer
}

// newApp loads configuration and sets up logging. The full-screen panel owns
// the terminal, so panel logs default to a file instead of stderr.
func newApp(flags *globalFlags, panel bool) (*app, error) {
	path := flags.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if panel && (cfg.Logging.Output == "" || cfg.Logging.Output == "stderr") {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
		cfg.Logging.Output = "file"
		cfg.Logging.FilePath = filepath.Join(dir, "taskmaster.log")
	}

	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, path: path, logger: logger, closers: []io.Closer{closer}}
	if cfg.Storage.Enabled {
		if err := a.openArchive(); err != nil {
			logger.Warn("transcript archive unavailable", "error", err)
		}
	}
	return a, nil
}

func (a *app) openArchive() error {
	if a.archive != nil {
		return nil
	}
	p, err := storage.PathFrom(a.cfg.Storage)
	if err != nil {
		return err
	}
	archive, err := storage.Open(p)
	if err != nil {
		return err
	}
	a.archive = archive
	a.onClose(archive)
	return nil
}

// widgetOptions returns the collaborators every host passes to widget.Init.
// When voice is enabled and a bridge address is configured, the bridge
// starts serving and lives until ctx ends.
func (a *app) widgetOptions(ctx context.Context) []widget.Option {
	opts := []widget.Option{widget.WithLogger(a.logger)}
	if a.archive != nil {
		opts = append(opts, widget.WithArchive(a.archive))
	}

	vc := a.cfg.Voice
	if vc.Enabled && vc.BridgeAddr != "" {
		b := bridge.New(bridge.Config{
			AllowedOrigins: a.cfg.Host.AllowedDomains,
			Logger:         a.logger,
		})
		go func() {
			if err := b.ListenAndServe(ctx, vc.BridgeAddr, vc.BridgePath); err != nil {
				a.logger.Error("voice bridge stopped", "error", err)
			}
		}()
		opts = append(opts, widget.WithVoice(b, b))
	}
	return opts
}

// watch pushes configuration file edits into w until the app closes. A
// missing file is not watched.
func (a *app) watch(ctx context.Context, w *widget.Widget) {
	if _, err := os.Stat(a.path); err != nil {
		return
	}
	watcher, err := config.NewWatcher(a.path, configDebounce, a.logger, func(cfg *config.WidgetConfig) {
		if err := w.UpdateConfig(ctx, config.PatchFrom(cfg)); err != nil {
			a.logger.Warn("config update rejected", "error", err)
			return
		}
		a.logger.Info("config reloaded", "path", a.path)
	})
	if err != nil {
		a.logger.Warn("config watcher unavailable", "error", err)
		return
	}
	if err := watcher.Watch(); err != nil {
		_ = watcher.Close()
		a.logger.Warn("config watcher unavailable", "error", err)
		return
	}
	a.onClose(watcher)
}

func (a *app) onClose(c io.Closer) {
	a.mu.Lock()
	a.closers = append(a.closers, c)
	a.mu.Unlock()
}

// Close releases everything newApp and watch opened, newest first.
func (a *app) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
