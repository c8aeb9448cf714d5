// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message type and the bounded conversation store.
//
// # Key Types
//
//   - Message: a single user or bot message
//   - Conversation: ordered, capacity-bounded message log (FIFO eviction)
//
// The store is the source of truth for what is displayed. Hosts replay it to
// redraw; the render pipeline only ever reads the final text stored here.
package model
