// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes archived conversations as Markdown, JSON or a
// standalone HTML page.
//
// Bot answers are stored as the markdown subset the widget renders; the
// HTML exporter formats them with the same renderer the widget uses, so an
// exported page shows exactly what the user saw.
package export
