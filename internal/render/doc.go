// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns bot text into display markup and reveals it
// incrementally.
//
// Text is parsed once into a Document of blocks (paragraphs, list items,
// fenced code) holding inline runs (plain, bold, italic, code, links, line
// breaks). A Renderer turns a Document into markup; HTMLRenderer produces
// the widget's HTML and ANSIRenderer produces styled terminal text.
//
// Incremental reveal never renders raw partial markdown. Each frame renders
// doc.Prefix(n), a structurally complete document truncated after n visible
// characters, so tags are always balanced and the final frame
// (n == doc.Len()) is byte-identical to the instant Format path.
//
// # Key Types
//
//   - Document, Block, Inline: parsed representation
//   - Renderer: HTMLRenderer, ANSIRenderer
//   - Scheduler, Job: cancellable typing reveal bound to a Target
package render
