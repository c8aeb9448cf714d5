// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

// Server to client message types.
const (
	TypeCaptureStart = "capture_start"
	TypeCaptureStop  = "capture_stop"
	TypePlay         = "play"
	TypePlayStop     = "play_stop"
)

// Client to server message types.
const (
	TypeTranscript    = "transcript"
	TypeCaptureError  = "capture_error"
	TypeCaptureEnd    = "capture_end"
	TypePlaybackEnd   = "playback_end"
	TypePlaybackError = "playback_error"
)

// Outbound is a frame sent to the audio client.
type Outbound struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	AudioURL    string `json:"audio_url,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	Format      string `json:"format,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Inbound is a frame received from the audio client. ID echoes the capture
// or playback the frame belongs to.
type Inbound struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Error   string `json:"error,omitempty"`
	Aborted bool   `json:"aborted,omitempty"`
}
