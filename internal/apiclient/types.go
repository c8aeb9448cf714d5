// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apiclient

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// Identity is the visitor identity sent with every call.
type Identity struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// Known reports whether any field usable for a server-side lookup is set.
func (id Identity) Known() bool {
	return id.UserID != "" || id.Email != "" || id.DeviceID != ""
}

// =============================================================================
// ASK
// =============================================================================

// AskRequest is one outbound turn.
type AskRequest struct {
	Question string `json:"question"`
	Identity
	SessionID    string `json:"session_id"`
	Timestamp    int64  `json:"timestamp"`
	VoiceEnabled bool   `json:"voice_enabled,omitempty"`
	Voice        string `json:"voice,omitempty"`
}

// AskResponse is the answer to one turn.
type AskResponse struct {
	Answer       string       `json:"answer"`
	Error        string       `json:"error,omitempty"`
	Status       string       `json:"status,omitempty"`
	ResponseType string       `json:"response_type,omitempty"`
	MessageID    string       `json:"message_id,omitempty"`
	VoiceData    *VoiceData   `json:"voice_data,omitempty"`
	UserInfo     *SessionInfo `json:"user_info,omitempty"`
}

// VoiceData is synthesized speech attached to an answer.
type VoiceData struct {
	Success       bool    `json:"success"`
	AudioURL      string  `json:"audio_url,omitempty"`
	AudioBase64   string  `json:"audio_base64,omitempty"`
	Format        string  `json:"format,omitempty"`
	SampleRate    int     `json:"sample_rate,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	GeneratedText string  `json:"generated_text,omitempty"`
	VoiceUsed     string  `json:"voice_used,omitempty"`
	Engine        string  `json:"engine,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Playable reports whether the payload carries audio.
func (v *VoiceData) Playable() bool {
	return v != nil && v.Success && (v.AudioURL != "" || v.AudioBase64 != "")
}

// Clip converts the payload into an audio clip.
func (v *VoiceData) Clip() (voice.AudioClip, error) {
	if !v.Playable() {
		return voice.AudioClip{}, fmt.Errorf("voice data has no audio")
	}
	clip := voice.AudioClip{
		URL:        v.AudioURL,
		Format:     v.Format,
		SampleRate: v.SampleRate,
		Duration:   time.Duration(v.Duration * float64(time.Second)),
		Text:       v.GeneratedText,
	}
	if v.AudioBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(v.AudioBase64)
		if err != nil {
			return voice.AudioClip{}, fmt.Errorf("decode voice audio: %w", err)
		}
		clip.Data = data
	}
	if clip.Format == "" && clip.URL != "" {
		if i := strings.LastIndexByte(clip.URL, '.'); i >= 0 && i > strings.LastIndexByte(clip.URL, '/') {
			clip.Format = strings.ToLower(clip.URL[i+1:])
		}
	}
	return clip, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryRequest asks for the most recent persisted turns.
type HistoryRequest struct {
	Identity
	Limit int `json:"limit"`
}

// HistoryEntry is one persisted turn. Role is "user" or "assistant".
type HistoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// HistoryResponse lists turns in chronological order.
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

// =============================================================================
// FEEDBACK
// =============================================================================

// Feedback types.
const (
	FeedbackUp   = "thumbs_up"
	FeedbackDown = "thumbs_down"
)

// FeedbackRequest rates one answer.
type FeedbackRequest struct {
	UserQuestion string `json:"user_question"`
	BotResponse  string `json:"bot_response"`
	ResponseType string `json:"response_type,omitempty"`
	FeedbackType string `json:"feedback_type"`
	SessionID    string `json:"session_id"`
	MessageID    string `json:"message_id,omitempty"`
	Identity
}

// FeedbackResponse acknowledges a rating.
type FeedbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// =============================================================================
// SESSION
// =============================================================================

// SessionStats counts persisted messages.
type SessionStats struct {
	TotalMessages int `json:"total_messages"`
}

// SessionInfo describes the server-side session.
type SessionInfo struct {
	SessionType string        `json:"session_type"`
	Stats       *SessionStats `json:"stats,omitempty"`
}

// Label renders the session line shown under the panel title.
func (s *SessionInfo) Label() string {
	if s == nil || s.SessionType == "" {
		return "Guest • 0 messages"
	}
	kind := "Guest"
	if s.SessionType == "persistent" {
		kind = "Logged in"
	}
	n := 0
	if s.Stats != nil {
		n = s.Stats.TotalMessages
	}
	return fmt.Sprintf("%s • %d messages", kind, n)
}

// ClearResponse acknowledges a clear_session call.
type ClearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
