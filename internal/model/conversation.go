// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// DefaultCapacity is the history cap used when none is given.
const DefaultCapacity = 50

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Conversation is the ordered, bounded message log. Once the cap is
// exceeded the oldest messages are evicted first. Safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
	capacity int
	evicted  int
}

// NewConversation creates a store holding at most capacity messages.
func NewConversation(capacity int) *Conversation {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Conversation{
		messages: make([]Message, 0, capacity),
		capacity: capacity,
	}
}

// Append adds msg at the end, evicting the oldest entries past the cap.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.pruneLocked()
}

// PrependHistory inserts msgs, in the given order, before every live
// message. The combined log is then trimmed to the cap from the front, so
// history is the first to go.
func (c *Conversation) PrependHistory(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make([]Message, 0, len(msgs)+len(c.messages))
	merged = append(merged, msgs...)
	merged = append(merged, c.messages...)
	c.messages = merged
	c.pruneLocked()
}

// Replay returns a copy of the log in order.
func (c *Conversation) Replay() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Capacity returns the cap.
func (c *Conversation) Capacity() int {
	return c.capacity
}

// Evicted returns how many messages have been dropped by the cap.
func (c *Conversation) Evicted() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evicted
}

// Clear removes every message.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]Message, 0, c.capacity)
}

// Last returns the most recent message from sender.
func (c *Conversation) Last(sender Sender) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Sender == sender {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// ByID looks up a message by id.
func (c *Conversation) ByID(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// PrecedingUser returns the closest user message before the message with
// the given id.
func (c *Conversation) PrecedingUser(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := -1
	for i, m := range c.messages {
		if m.ID == id {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if c.messages[i].Sender == SenderUser {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// pruneLocked drops the oldest messages past the cap. Reslicing keeps
// appends amortised O(1); the backing array is reclaimed on the next grow.
func (c *Conversation) pruneLocked() {
	if over := len(c.messages) - c.capacity; over > 0 {
		for i := 0; i < over; i++ {
			c.messages[i] = Message{}
		}
		c.messages = c.messages[over:]
		c.evicted += over
	}
}
