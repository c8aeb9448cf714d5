// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the taskmaster command line.
//
// Commands:
//
//	taskmaster                    Terminal panel (line chat when not a TTY)
//	taskmaster chat               Line-oriented chat with history
//	taskmaster transcript         List archived conversations
//	taskmaster transcript show N  Render one archived conversation
//	taskmaster transcript export N --format html
//	                              Write one conversation to a file
//	taskmaster config init        Write a default configuration file
//	taskmaster config path        Print the configuration file path
//
// Every command shares the --config and --log-level flags. Configuration is
// loaded from TOML, then .env files, then TASKMASTER_* variables.
package cli
