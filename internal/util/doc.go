// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the widget packages.
//
// # Key Functions
//
// Text:
//   - TruncateRunes, TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - RuneLen: character count
//   - Wrap: display-width aware word wrapping for terminal hosts
//
// Identifiers:
//   - RandomToken: short lowercase token for session and device ids
//
// Files:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
