// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"errors"

	"github.com/Frankambaa/TaskMaster/internal/apiclient"
	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// StartVoice begins voice interaction in the configured mode. It is also
// the only way back from a stop phrase.
func (w *Widget) StartVoice() error {
	if w.isDestroyed() {
		return ErrDestroyed
	}
	if !w.voiceAvailable() {
		return ErrVoiceUnavailable
	}
	return w.voice.Start()
}

// StopVoice stops capture and playback and disconnects voice.
func (w *Widget) StopVoice() error {
	if w.isDestroyed() {
		return ErrDestroyed
	}
	if w.voice == nil {
		return ErrVoiceUnavailable
	}
	return w.voice.Disconnect()
}

// VoiceState returns the voice state, or Disconnected when voice is off.
func (w *Widget) VoiceState() voice.State {
	if w.voice == nil {
		return voice.StateDisconnected
	}
	return w.voice.State()
}

// VoiceOn reports whether voice is listening, speaking or armed to listen
// again.
func (w *Widget) VoiceOn() bool {
	if w.voice == nil {
		return false
	}
	switch w.voice.State() {
	case voice.StateListening, voice.StateSynthesizing:
		return true
	}
	return w.voice.Continuous()
}

// VoiceTrace returns the recorded voice transitions.
func (w *Widget) VoiceTrace() []voice.Transition {
	if w.voice == nil {
		return nil
	}
	return w.voice.Trace()
}

func (w *Widget) voiceAvailable() bool {
	if w.voice == nil {
		return false
	}
	cfg, _ := w.snapshot()
	return cfg.Voice.Enabled
}

// voiceActive reports whether answers should come back with audio.
func (w *Widget) voiceActive() bool {
	return w.voiceAvailable() && w.voice.State() != voice.StateDisconnected
}

// speak plays the answer audio. It reports whether playback started.
func (w *Widget) speak(vd *apiclient.VoiceData) bool {
	if !w.voiceActive() || !vd.Playable() {
		return false
	}
	clip, err := vd.Clip()
	if err != nil {
		w.logger.Warn("answer audio unusable", "error", err)
		return false
	}
	if err := w.voice.Speak(clip); err != nil {
		// A stop phrase may have disconnected voice while the answer was
		// in flight; the text answer stands on its own.
		if !errorsIsAny(err, voice.ErrDisconnected, voice.ErrClosed) {
			w.logger.Warn("answer audio not played", "error", err)
		}
		return false
	}
	return true
}

func (w *Widget) voiceTurnFinished(spoke bool) {
	if w.voice != nil {
		w.voice.TurnFinished(spoke)
	}
}

// onUtterance sends a final transcript as a message. It runs on its own
// goroutine.
func (w *Widget) onUtterance(text string) {
	reply, err := w.SendMessage(w.ctx, text)
	switch {
	case errors.Is(err, ErrDestroyed):
		return
	case errors.Is(err, ErrBusy):
		w.logger.Info("utterance dropped while a turn is in flight")
	case rejectedBeforeAsk(err):
		w.logger.Debug("utterance rejected", "error", err)
	case err != nil:
		// SendMessage already re-armed capture once the call returned.
		w.logger.Debug("spoken turn failed", "error", err)
		return
	case reply != nil:
		return
	}
	// Turns that never reached the API still have to re-arm capture.
	w.voiceTurnFinished(false)
}

func (w *Widget) onVoiceError(err error) {
	if voiceFailureVisible(err) {
		w.showError(w.ctx, TextVoiceFailed)
	}
}
