// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/voice"
)

const readTimeout = 2 * time.Second

func startBridge(t *testing.T, cfg Config) (*Bridge, string) {
	t.Helper()
	b := New(cfg)
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, b *Bridge, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))
	return conn
}

func currentClient(b *Bridge) *client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

func readOutbound(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out Outbound
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeInbound(t *testing.T, conn *websocket.Conn, in Inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

type captureRecorder struct {
	results chan string
	errs    chan error
	ends    chan struct{}
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{
		results: make(chan string, 8),
		errs:    make(chan error, 8),
		ends:    make(chan struct{}, 8),
	}
}

func (r *captureRecorder) events() voice.CaptureEvents {
	return voice.CaptureEvents{
		OnResult: func(text string, final bool) {
			if final {
				r.results <- "final:" + text
				return
			}
			r.results <- "interim:" + text
		},
		OnError: func(err error) { r.errs <- err },
		OnEnd:   func() { r.ends <- struct{}{} },
	}
}

func TestStartCapture_NoClient(t *testing.T) {
	b := New(Config{})
	_, err := b.StartCapture(context.Background(), voice.CaptureEvents{})
	assert.ErrorIs(t, err, ErrNoClient)

	_, err = b.Play(context.Background(), voice.AudioClip{URL: "x"}, nil)
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestCaptureRoundTrip(t *testing.T) {
	b, url := startBridge(t, Config{})
	conn := dial(t, b, url)
	rec := newCaptureRecorder()

	h, err := b.StartCapture(context.Background(), rec.events())
	require.NoError(t, err)

	start := readOutbound(t, conn)
	assert.Equal(t, TypeCaptureStart, start.Type)
	require.NotEmpty(t, start.ID)

	writeInbound(t, conn, Inbound{Type: TypeTranscript, ID: start.ID, Text: "what are"})
	writeInbound(t, conn, Inbound{Type: TypeTranscript, ID: start.ID, Text: "what are your hours", Final: true})

	assert.Equal(t, "interim:what are", <-rec.results)
	assert.Equal(t, "final:what are your hours", <-rec.results)

	// The final transcript ended the capture, so Stop sends nothing.
	require.NoError(t, h.Stop())
	h2, err := b.StartCapture(context.Background(), rec.events())
	require.NoError(t, err)
	next := readOutbound(t, conn)
	assert.Equal(t, TypeCaptureStart, next.Type)
	assert.NotEqual(t, start.ID, next.ID)

	require.NoError(t, h2.Stop())
	stop := readOutbound(t, conn)
	assert.Equal(t, TypeCaptureStop, stop.Type)
	assert.Equal(t, next.ID, stop.ID)
}

func TestStaleCaptureFramesDropped(t *testing.T) {
	b, url := startBridge(t, Config{})
	conn := dial(t, b, url)
	rec := newCaptureRecorder()

	h, err := b.StartCapture(context.Background(), rec.events())
	require.NoError(t, err)
	first := readOutbound(t, conn)
	require.NoError(t, h.Stop())
	readOutbound(t, conn)

	_, err = b.StartCapture(context.Background(), rec.events())
	require.NoError(t, err)
	second := readOutbound(t, conn)

	writeInbound(t, conn, Inbound{Type: TypeTranscript, ID: first.ID, Text: "old", Final: true})
	writeInbound(t, conn, Inbound{Type: TypeTranscript, ID: second.ID, Text: "new", Final: true})

	assert.Equal(t, "final:new", <-rec.results)
	select {
	case got := <-rec.results:
		t.Fatalf("unexpected result %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCaptureErrors(t *testing.T) {
	tests := []struct {
		name string
		in   Inbound
		want error
	}{
		{"aborted", Inbound{Type: TypeCaptureError, Aborted: true}, voice.ErrCaptureAborted},
		{"no speech", Inbound{Type: TypeCaptureError, Error: "no-speech"}, voice.ErrNoSpeech},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, url := startBridge(t, Config{})
			conn := dial(t, b, url)
			rec := newCaptureRecorder()

			_, err := b.StartCapture(context.Background(), rec.events())
			require.NoError(t, err)
			start := readOutbound(t, conn)

			tt.in.ID = start.ID
			writeInbound(t, conn, tt.in)
			select {
			case err := <-rec.errs:
				assert.ErrorIs(t, err, tt.want)
			case <-time.After(readTimeout):
				t.Fatal("no error delivered")
			}
		})
	}
}

func TestPlayRoundTrip(t *testing.T) {
	b, url := startBridge(t, Config{})
	conn := dial(t, b, url)

	done := make(chan error, 1)
	clip := voice.AudioClip{Data: []byte("RIFF"), Format: "wav", SampleRate: 24000}
	_, err := b.Play(context.Background(), clip, func(err error) { done <- err })
	require.NoError(t, err)

	play := readOutbound(t, conn)
	assert.Equal(t, TypePlay, play.Type)
	assert.Equal(t, "wav", play.Format)
	assert.Equal(t, 24000, play.SampleRate)
	raw, err := base64.StdEncoding.DecodeString(play.AudioBase64)
	require.NoError(t, err)
	assert.Equal(t, clip.Data, raw)

	writeInbound(t, conn, Inbound{Type: TypePlaybackEnd, ID: play.ID})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(readTimeout):
		t.Fatal("playback end not delivered")
	}
}

func TestPlayStop(t *testing.T) {
	b, url := startBridge(t, Config{})
	conn := dial(t, b, url)

	h, err := b.Play(context.Background(), voice.AudioClip{URL: "https://example.com/a.mp3"}, func(error) {})
	require.NoError(t, err)
	play := readOutbound(t, conn)
	assert.Equal(t, "https://example.com/a.mp3", play.AudioURL)

	require.NoError(t, h.Stop())
	stop := readOutbound(t, conn)
	assert.Equal(t, TypePlayStop, stop.Type)
	assert.Equal(t, play.ID, stop.ID)
}

func TestClientDisconnectFailsActiveCapture(t *testing.T) {
	b, url := startBridge(t, Config{})
	conn := dial(t, b, url)
	rec := newCaptureRecorder()

	_, err := b.StartCapture(context.Background(), rec.events())
	require.NoError(t, err)
	readOutbound(t, conn)

	conn.Close()
	select {
	case err := <-rec.errs:
		assert.True(t, errors.Is(err, ErrClientGone))
	case <-time.After(readTimeout):
		t.Fatal("disconnect not reported")
	}
	require.Eventually(t, func() bool { return !b.Connected() }, readTimeout, 5*time.Millisecond)
}

func TestNewClientReplacesOld(t *testing.T) {
	b, url := startBridge(t, Config{})
	first := dial(t, b, url)
	firstClient := currentClient(b)
	second := dial(t, b, url)
	require.Eventually(t, func() bool {
		c := currentClient(b)
		return c != nil && c != firstClient
	}, readTimeout, 5*time.Millisecond)

	_, err := b.StartCapture(context.Background(), voice.CaptureEvents{})
	require.NoError(t, err)
	assert.Equal(t, TypeCaptureStart, readOutbound(t, second).Type)

	_ = first.SetReadDeadline(time.Now().Add(readTimeout))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)
	assert.True(t, b.Connected())
}

func TestCheckOrigin(t *testing.T) {
	b := New(Config{AllowedOrigins: []string{"shop.example.com"}})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/voice", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, b.checkOrigin(req("https://shop.example.com")))
	assert.True(t, b.checkOrigin(req("")))
	assert.False(t, b.checkOrigin(req("https://evil.example.net")))
}

// The bridge drives a real orchestrator: the client must see the microphone
// stop before any audio is sent.
func TestOrchestratorOverBridge(t *testing.T) {
	b, url := startBridge(t, Config{})
	conn := dial(t, b, url)

	utterances := make(chan string, 1)
	orch := voice.New(b, b, voice.Options{
		SettleDelay: 50 * time.Millisecond,
		RetryDelay:  20 * time.Millisecond,
		OnUtterance: func(text string) { utterances <- text },
	})
	defer orch.Close()

	require.NoError(t, orch.StartContinuous())
	start := readOutbound(t, conn)
	require.Equal(t, TypeCaptureStart, start.Type)

	writeInbound(t, conn, Inbound{Type: TypeTranscript, ID: start.ID, Text: "hello there", Final: true})
	assert.Equal(t, "hello there", <-utterances)

	require.NoError(t, orch.Speak(voice.AudioClip{URL: "https://example.com/reply.mp3"}))
	play := readOutbound(t, conn)
	require.Equal(t, TypePlay, play.Type)

	writeInbound(t, conn, Inbound{Type: TypePlaybackEnd, ID: play.ID})
	resumed := readOutbound(t, conn)
	assert.Equal(t, TypeCaptureStart, resumed.Type)
	require.Eventually(t, func() bool { return orch.State() == voice.StateListening },
		readTimeout, 5*time.Millisecond)
}
