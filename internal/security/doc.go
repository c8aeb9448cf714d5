// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security implements the widget's request gate: configuration
// validation, input sanitization, sliding-window rate limiting, idle session
// expiry and message validation.
//
// Every check is synchronous and local. Failures are returned as typed
// errors (ConfigError, ValidationError, RateLimitError, ErrSessionExpired)
// so the caller can surface them in-band; nothing here retries.
//
// # Usage
//
//	gate := security.NewGate(security.LimitsFrom(cfg), security.WithLogger(logger))
//	if err := gate.CheckRateLimit(); err != nil {
//	    return err
//	}
//	if err := gate.CheckSession(); err != nil {
//	    return err
//	}
//	text, err := gate.ValidateMessage(input)
package security
