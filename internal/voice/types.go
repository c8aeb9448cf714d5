// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// STATE
// =============================================================================

// State is the orchestrator's voice state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSynthesizing
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSynthesizing:
		return "synthesizing"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition records one state change.
type Transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// AudioClip is synthesized speech ready for playback. Either URL or Data is
// set.
type AudioClip struct {
	URL        string
	Data       []byte
	Format     string
	SampleRate int
	Duration   time.Duration
	// Text is the transcript of the clip, for hosts that show captions.
	Text string
}

// Empty reports whether the clip carries no audio.
func (c AudioClip) Empty() bool {
	return c.URL == "" && len(c.Data) == 0
}

// CaptureEvents are the callbacks a capture handle reports through. They may
// be invoked from any goroutine, including synchronously from StartCapture.
type CaptureEvents struct {
	// OnResult delivers a transcript; final marks the end of an utterance.
	OnResult func(text string, final bool)
	// OnError reports a capture failure. ErrCaptureAborted means the capture
	// was stopped on purpose.
	OnError func(err error)
	// OnEnd reports that the capture ended without a final result.
	OnEnd func()
}

// Handle controls a running capture or playback.
type Handle interface {
	Stop() error
}

// Capturer starts speech capture.
type Capturer interface {
	StartCapture(ctx context.Context, events CaptureEvents) (Handle, error)
}

// Player plays synthesized speech. onDone is called once when playback ends,
// with nil on normal completion.
type Player interface {
	Play(ctx context.Context, clip AudioClip, onDone func(error)) (Handle, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCaptureAborted is reported by a capturer whose capture was stopped
	// deliberately. It never triggers a retry.
	ErrCaptureAborted = errors.New("capture aborted")

	// ErrNoSpeech is reported when a capture ended without any speech.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrRestartLimit is reported when capture keeps failing faster than the
	// restart budget allows.
	ErrRestartLimit = errors.New("capture restart limit reached")

	// ErrDisconnected is returned by Speak while the conversation is
	// disconnected.
	ErrDisconnected = errors.New("voice disconnected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("voice orchestrator closed")
)

// Error is a voice failure tagged with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("voice %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
