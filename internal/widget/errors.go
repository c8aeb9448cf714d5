// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"errors"
	"fmt"

	"github.com/Frankambaa/TaskMaster/internal/security"
	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("widget destroyed")

	// ErrBusy is returned when a message is sent while a turn is in flight.
	ErrBusy = errors.New("a message is already being answered")

	// ErrVoiceUnavailable is returned by voice operations when voice is
	// disabled or no audio backend was supplied.
	ErrVoiceUnavailable = errors.New("voice is not available")

	// ErrServerError is returned when the API answered with an error field
	// instead of an answer.
	ErrServerError = errors.New("server reported an error")

	// ErrUnknownMessage is returned by SubmitFeedback for an id that is not
	// a bot message in the log.
	ErrUnknownMessage = errors.New("unknown message")
)

// =============================================================================
// IN-BAND TEXT
// =============================================================================

// Texts shown in the conversation when a turn cannot complete.
const (
	TextBlocked        = "Rate limit exceeded. Please wait before sending another message."
	TextTooManyRecent  = "Too many requests. Please wait a moment before trying again."
	TextSessionExpired = "Session expired. Please refresh the page to continue."
	TextInvalidMessage = "Invalid message format. Please try again."
	TextTurnFailed     = "Sorry, I encountered an error. Please try again."
	TextVoiceFailed    = "Voice input stopped working. Please type your message instead."
)

// inBandText maps a gate or transport failure to the bubble shown for it.
func inBandText(err error) string {
	var rl *security.RateLimitError
	if errors.As(err, &rl) {
		if rl.Blocked {
			return TextBlocked
		}
		return TextTooManyRecent
	}
	if errors.Is(err, security.ErrSessionExpired) {
		return TextSessionExpired
	}
	var ve *security.ValidationError
	if errors.As(err, &ve) {
		if ve.Max > 0 {
			return fmt.Sprintf("Message too long (max %d characters)", ve.Max)
		}
		return TextInvalidMessage
	}
	return TextTurnFailed
}

// rejectedBeforeAsk reports whether err stopped a turn before the API was
// called: a gate rejection or a turn already in flight.
func rejectedBeforeAsk(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, security.ErrSessionExpired) {
		return true
	}
	var rl *security.RateLimitError
	var ve *security.ValidationError
	return errors.As(err, &rl) || errors.As(err, &ve)
}

// voiceFailureVisible reports whether a voice error should reach the
// conversation. Transient capture failures retry on their own and are only
// logged.
func voiceFailureVisible(err error) bool {
	return errors.Is(err, voice.ErrRestartLimit)
}
