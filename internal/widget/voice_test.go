// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/apiclient"
	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/security"
	"github.com/Frankambaa/TaskMaster/internal/voice"
	"github.com/Frankambaa/TaskMaster/internal/voice/voicetest"
)

const (
	voiceSettle = 150 * time.Millisecond
	voiceWait   = 2 * time.Second
	voiceTick   = 5 * time.Millisecond
)

type voiceRig struct {
	w        *Widget
	view     *recordingView
	srv      *fakeServer
	log      *voicetest.Log
	capturer *voicetest.Capturer
	player   *voicetest.Player
}

func newVoiceRig(t *testing.T) *voiceRig {
	t.Helper()
	r := &voiceRig{srv: newFakeServer(t), log: &voicetest.Log{}}
	r.capturer = voicetest.NewCapturer(r.log)
	r.player = voicetest.NewPlayer(r.log)
	r.srv.set(func(f *fakeServer) {
		f.askBody = map[string]any{
			"answer":        "We are open 9 to 5.",
			"response_type": model.ResponseKnowledgeBase,
			"voice_data": map[string]any{
				"success":   true,
				"audio_url": "https://tts.example.com/clips/42.mp3",
				"duration":  1.2,
			},
		}
	})
	r.w, r.view = newTestWidget(t, r.srv, func(c *config.WidgetConfig) {
		c.Voice.Enabled = true
		c.Voice.Continuous = true
		c.Voice.SettleDelayMS = int(voiceSettle / time.Millisecond)
		c.Voice.RetryDelayMS = 20
		c.Voice.MaxRestartsPerMinute = 600
	}, WithVoice(r.capturer, r.player))
	return r
}

func (r *voiceRig) waitState(t *testing.T, want voice.State) {
	t.Helper()
	require.Eventually(t, func() bool { return r.w.VoiceState() == want },
		voiceWait, voiceTick, "want %s, have %s", want, r.w.VoiceState())
}

func TestVoice_EchoAvoidance(t *testing.T) {
	r := newVoiceRig(t)
	require.NoError(t, r.w.StartVoice())
	r.waitState(t, voice.StateListening)
	require.True(t, r.capturer.Active())

	r.capturer.Say("what are your hours")
	require.Eventually(t, r.player.Playing, voiceWait, voiceTick)

	// The mic is closed for the whole of playback.
	assert.False(t, r.capturer.Active())
	assert.Equal(t, voice.StateSynthesizing, r.w.VoiceState())
	ask := r.srv.lastAsk()
	assert.Equal(t, "what are your hours", ask.Question)
	assert.True(t, ask.VoiceEnabled)
	assert.Equal(t, "af_heart", ask.Voice)

	clips := r.player.Clips()
	require.Len(t, clips, 1)
	assert.Equal(t, "mp3", clips[0].Format)

	finished := time.Now()
	r.player.Finish(nil)
	r.waitState(t, voice.StateListening)
	assert.GreaterOrEqual(t, time.Since(finished), voiceSettle)
	assert.Equal(t, 2, r.capturer.Starts())

	assert.NoError(t, voicetest.CheckExclusive(r.log.Events()))
	assert.Equal(t, []string{
		"Hello! How can I help you today?",
		"what are your hours",
		"We are open 9 to 5.",
	}, r.view.texts())
}

func TestVoice_StopPhraseDisconnects(t *testing.T) {
	r := newVoiceRig(t)
	require.NoError(t, r.w.StartVoice())
	r.waitState(t, voice.StateListening)

	r.capturer.Say("Stop listening, please.")
	r.waitState(t, voice.StateDisconnected)
	assert.False(t, r.capturer.Active())
	assert.Zero(t, r.srv.count(apiclient.PathAsk))
	assert.False(t, r.w.VoiceOn())

	// Typed turns still work, without audio.
	reply, err := r.w.SendMessage(context.Background(), "and on weekends?")
	require.NoError(t, err)
	assert.False(t, reply.Spoke)
	assert.False(t, r.srv.lastAsk().VoiceEnabled)
	assert.Empty(t, r.player.Clips())

	// Capture stays off until voice is started again.
	time.Sleep(3 * voiceSettle)
	assert.Equal(t, voice.StateDisconnected, r.w.VoiceState())
	require.NoError(t, r.w.StartVoice())
	r.waitState(t, voice.StateListening)
}

func TestVoice_RejectedUtteranceRearms(t *testing.T) {
	r := newVoiceRig(t)
	require.NoError(t, r.w.StartVoice())
	r.waitState(t, voice.StateListening)

	r.capturer.Say("<script>x</script>")
	require.Eventually(t, func() bool { return r.capturer.Starts() == 2 }, voiceWait, voiceTick)
	r.waitState(t, voice.StateListening)
	assert.Zero(t, r.srv.count(apiclient.PathAsk))
	assert.Equal(t, TextInvalidMessage, r.view.last().msg.Text)
}

func TestVoice_DisabledWithoutConfig(t *testing.T) {
	srv := newFakeServer(t)
	log := &voicetest.Log{}
	w, _ := newTestWidget(t, srv, nil, WithVoice(voicetest.NewCapturer(log), voicetest.NewPlayer(log)))

	assert.ErrorIs(t, w.StartVoice(), ErrVoiceUnavailable)
	assert.Equal(t, voice.StateDisconnected, w.VoiceState())
}

func TestVoice_UpdateConfigDisables(t *testing.T) {
	r := newVoiceRig(t)
	require.NoError(t, r.w.StartVoice())
	r.waitState(t, voice.StateListening)

	off := false
	require.NoError(t, r.w.UpdateConfig(context.Background(), config.Patch{VoiceEnabled: &off}))
	r.waitState(t, voice.StateDisconnected)
	assert.ErrorIs(t, r.w.StartVoice(), ErrVoiceUnavailable)
}

func TestVoice_DispatcherToggle(t *testing.T) {
	r := newVoiceRig(t)
	d := NewDispatcher(r.w, nil)

	require.NoError(t, d.Dispatch(context.Background(), Event{Intent: IntentVoiceToggle}))
	r.waitState(t, voice.StateListening)
	require.NoError(t, d.Dispatch(context.Background(), Event{Intent: IntentVoiceToggle}))
	r.waitState(t, voice.StateDisconnected)
}

func TestVoice_FailedTurnRearmsOnce(t *testing.T) {
	r := newVoiceRig(t)
	r.srv.set(func(f *fakeServer) { f.askStatus = http.StatusInternalServerError })
	require.NoError(t, r.w.StartVoice())
	r.waitState(t, voice.StateListening)

	r.capturer.Say("what are your hours")
	require.Eventually(t, func() bool { return r.capturer.Starts() == 2 }, voiceWait, voiceTick)
	r.waitState(t, voice.StateListening)
	assert.Equal(t, 1, r.srv.count(apiclient.PathAsk))
	assert.Equal(t, TextTurnFailed, r.view.last().msg.Text)

	time.Sleep(3 * voiceSettle)
	assert.Equal(t, 2, r.capturer.Starts())
}

func TestRejectedBeforeAsk(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", ErrBusy, true},
		{"rate limited", &security.RateLimitError{Blocked: true}, true},
		{"session expired", fmt.Errorf("check: %w", security.ErrSessionExpired), true},
		{"invalid message", &security.ValidationError{Reason: "empty"}, true},
		{"network", &apiclient.NetworkError{Op: "ask", Err: apiclient.ErrTimeout}, false},
		{"server error", fmt.Errorf("%w: down", ErrServerError), false},
		{"dropped after reset", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rejectedBeforeAsk(tt.err))
		})
	}
}
