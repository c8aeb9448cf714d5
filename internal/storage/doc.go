// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a local transcript of widget conversations.
//
// Transcripts live in a single SQLite database (pure Go driver), one row
// per message, grouped by conversation session. The archive is a local
// convenience for terminal hosts; the server remains the source of truth
// for history.
//
// # Usage
//
//	archive, err := storage.Open(path)
//	defer archive.Close()
//	w, err := widget.Init(ctx, cfg, widget.WithArchive(archive))
//
// List and read sessions:
//
//	sessions, err := archive.Sessions(ctx)
//	msgs, err := archive.Messages(ctx, sessions[0].ID)
//
// # Storage Location
//
// The default database is ~/.taskmaster/transcripts.db.
package storage
