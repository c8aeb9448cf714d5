// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderBot:
		return "Assistant"
	default:
		return string(s)
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// Response types reported by the answer API.
const (
	ResponseSmallTalk     = "SMALL_TALK"
	ResponseKnowledgeBase = "RAG_KNOWLEDGE_BASE"
	ResponseAITool        = "AI_TOOL"
	ResponseTemplateMatch = "TEMPLATE_MATCH"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`

	// IsError marks in-band error bubbles.
	IsError bool `json:"is_error,omitempty"`
	// ResponseType is the answer classification for bot messages.
	ResponseType string `json:"response_type,omitempty"`
	// Historical marks messages loaded from server history.
	Historical bool `json:"historical,omitempty"`
}

// NewMessage creates a message with a generated ID and the current time.
func NewMessage(sender Sender, text, sessionID string) Message {
	return Message{
		ID:        generateID(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(text, sessionID string) Message {
	return NewMessage(SenderUser, text, sessionID)
}

// NewBotMessage creates a bot message.
func NewBotMessage(text, sessionID, responseType string) Message {
	msg := NewMessage(SenderBot, text, sessionID)
	msg.ResponseType = responseType
	return msg
}

// NewErrorMessage creates a bot-styled error message.
func NewErrorMessage(text, sessionID string) Message {
	msg := NewMessage(SenderBot, text, sessionID)
	msg.IsError = true
	return msg
}

// IsUser reports whether the message was sent by the user.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// Preview returns at most maxLen characters of the text.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func generateID() string {
	return "msg_" + uuid.NewString()
}
