// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// TaskMaster widget.
//
// Configuration is read from a TOML file, layered over built-in defaults,
// with `.env` files and TASKMASTER_* environment variables applied last.
//
// Configuration file location:
//   - ~/.taskmaster/config.toml (or the path given with --config)
//
// # Key Types
//
//   - WidgetConfig: complete widget configuration
//   - Patch: partial update applied by Widget.UpdateConfig
//   - Watcher: fsnotify-backed hot reload of the config file
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	next := cfg.Apply(config.Patch{Title: ptr("Support")})
package config
