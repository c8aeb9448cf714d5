// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import "time"

// =============================================================================
// SLIDING WINDOW
// =============================================================================

// RateWindow is a sliding-window request counter. When a request arrives
// with the window already full, the window blocks for one full window
// length. Not safe for concurrent use; Gate serializes access.
type RateWindow struct {
	max          int
	window       time.Duration
	timestamps   []time.Time
	blockedUntil time.Time
}

// NewRateWindow creates a window admitting max requests per window.
func NewRateWindow(max int, window time.Duration) *RateWindow {
	return &RateWindow{
		max:        max,
		window:     window,
		timestamps: make([]time.Time, 0, max),
	}
}

// Allow records a request at now and reports whether it is admitted. A
// timestamp exactly one window old still counts.
func (w *RateWindow) Allow(now time.Time) bool {
	w.prune(now)
	if len(w.timestamps) >= w.max {
		w.blockedUntil = now.Add(w.window)
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Blocked reports whether the window is in its cool-down at now.
func (w *RateWindow) Blocked(now time.Time) bool {
	return now.Before(w.blockedUntil)
}

// RetryAfter returns how long until a request could be admitted.
func (w *RateWindow) RetryAfter(now time.Time) time.Duration {
	if w.Blocked(now) {
		return w.blockedUntil.Sub(now)
	}
	w.prune(now)
	if len(w.timestamps) == 0 || len(w.timestamps) < w.max {
		return 0
	}
	return w.timestamps[0].Add(w.window).Sub(now)
}

// Count returns the number of requests inside the window at now.
func (w *RateWindow) Count(now time.Time) int {
	w.prune(now)
	return len(w.timestamps)
}

// Reset clears all recorded requests and any block.
func (w *RateWindow) Reset() {
	w.timestamps = w.timestamps[:0]
	w.blockedUntil = time.Time{}
}

func (w *RateWindow) prune(now time.Time) {
	cut := 0
	for cut < len(w.timestamps) && now.Sub(w.timestamps[cut]) > w.window {
		cut++
	}
	if cut > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[cut:]...)
	}
}
