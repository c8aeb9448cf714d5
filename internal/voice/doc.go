// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package voice arbitrates the microphone and the speaker for a voice
// conversation.
//
// The Orchestrator is a four-state machine (Idle, Listening, Synthesizing,
// Disconnected) driven by user intents and by callbacks from the audio
// collaborators. Capture is always stopped before playback starts, and
// resumes only after a settle delay once playback has finished, so the
// assistant never transcribes its own voice.
//
// All transitions run on a single goroutine. Collaborator callbacks are
// queued onto it and tagged with the generation of the handle that produced
// them, which makes callbacks from superseded handles harmless.
//
// Audio capture and playback are abstracted behind Capturer and Player; the
// bridge subpackage implements both over a WebSocket.
package voice
