// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrSessionExpired is returned by CheckSession when the idle timeout
	// elapsed. The session has already been rotated when it is returned.
	ErrSessionExpired = errors.New("session expired")

	// ErrRateLimited matches every RateLimitError via errors.Is.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidMessage matches every ValidationError via errors.Is.
	ErrInvalidMessage = errors.New("invalid message")
)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// ConfigError reports an unusable widget configuration. Init fails with it.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid widget config: %s: %s", e.Field, e.Reason)
}

// ValidationError reports a message rejected before it reached the network.
type ValidationError struct {
	Reason string
	Length int
	Max    int
}

func (e *ValidationError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("invalid message: %s (%d/%d characters)", e.Reason, e.Length, e.Max)
	}
	return "invalid message: " + e.Reason
}

// Is lets errors.Is(err, ErrInvalidMessage) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidMessage
}

// RateLimitError reports a request refused by the sliding window.
type RateLimitError struct {
	// Blocked is true when the gate was already in its cool-down when the
	// request arrived, false when this request tripped it.
	Blocked    bool
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("rate limit exceeded: blocked, retry after %s", e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("rate limit exceeded: too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
