// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge exposes the voice orchestrator's capture and playback
// collaborators over a WebSocket, so a browser page (or any client with a
// microphone and a speaker) can supply the audio devices.
//
// One client is attached at a time; a new connection replaces the previous
// one. Every capture and playback carries an id, and frames for an id that
// is no longer current are dropped.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/Frankambaa/TaskMaster/internal/logging"
	"github.com/Frankambaa/TaskMaster/internal/voice"
)

var (
	// ErrNoClient is returned when no audio client is attached.
	ErrNoClient = errors.New("no audio client connected")

	// ErrClientGone is reported to an active capture or playback when the
	// client disconnects.
	ErrClientGone = errors.New("audio client disconnected")
)

// Config tunes the bridge connection.
type Config struct {
	// AllowedOrigins restricts browser origins by host. Empty allows any.
	AllowedOrigins []string
	ReadLimit      int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	Logger         *slog.Logger
}

func (c *Config) fillDefaults() {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	c.Logger = logging.OrDiscard(c.Logger)
}

type captureState struct {
	id     string
	events voice.CaptureEvents
}

type playState struct {
	id     string
	onDone func(error)
}

// Bridge is an http.Handler that accepts the audio client and implements
// voice.Capturer and voice.Player.
type Bridge struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	client    *client
	seq       uint64
	capture   *captureState
	play      *playState
	connected chan struct{}
}

var (
	_ voice.Capturer = (*Bridge)(nil)
	_ voice.Player   = (*Bridge)(nil)
	_ http.Handler   = (*Bridge)(nil)
)

// New creates a bridge with no client attached.
func New(cfg Config) *Bridge {
	cfg.fillDefaults()
	b := &Bridge{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "voice-bridge"),
		connected: make(chan struct{}),
	}
	b.upgrader = websocket.Upgrader{CheckOrigin: b.checkOrigin}
	return b
}

// Connected reports whether an audio client is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

// WaitConnected blocks until a client is attached or ctx ends.
func (b *Bridge) WaitConnected(ctx context.Context) error {
	b.mu.Lock()
	if b.client != nil {
		b.mu.Unlock()
		return nil
	}
	ch := b.connected
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenAndServe serves the bridge at path on addr until ctx ends.
func (b *Bridge) ListenAndServe(ctx context.Context, addr, path string) error {
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, b)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	b.logger.Info("voice bridge listening", "addr", addr, "path", path)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("voice bridge: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close detaches the current client.
func (b *Bridge) Close() {
	b.mu.Lock()
	c := b.client
	b.mu.Unlock()
	if c != nil {
		c.close()
	}
}

// ServeHTTP upgrades the request and attaches the client, replacing any
// previous one.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, b.cfg, b.logger)
	b.attach(c)
	go c.writeLoop()
	c.readLoop(b.dispatch)
	b.detach(c)
}

func (b *Bridge) checkOrigin(r *http.Request) bool {
	if len(b.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range b.cfg.AllowedOrigins {
		if strings.EqualFold(allowed, host) {
			return true
		}
	}
	return false
}

func (b *Bridge) attach(c *client) {
	b.mu.Lock()
	old := b.client
	b.client = c
	if old == nil {
		close(b.connected)
	}
	b.mu.Unlock()

	if old != nil {
		b.logger.Info("audio client replaced")
		old.close()
	} else {
		b.logger.Info("audio client connected")
	}
}

// detach drops c and fails whatever it was serving. A client that was
// already replaced leaves the active operations alone.
func (b *Bridge) detach(c *client) {
	c.close()

	b.mu.Lock()
	if b.client != c {
		b.mu.Unlock()
		return
	}
	b.client = nil
	b.connected = make(chan struct{})
	capt, play := b.capture, b.play
	b.capture, b.play = nil, nil
	b.mu.Unlock()

	b.logger.Info("audio client disconnected")
	if capt != nil && capt.events.OnError != nil {
		capt.events.OnError(ErrClientGone)
	}
	if play != nil && play.onDone != nil {
		play.onDone(ErrClientGone)
	}
}

func (b *Bridge) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s%d", prefix, b.seq)
}

// =============================================================================
// voice.Capturer / voice.Player
// =============================================================================

// StartCapture asks the client to start the microphone.
func (b *Bridge) StartCapture(_ context.Context, events voice.CaptureEvents) (voice.Handle, error) {
	b.mu.Lock()
	c := b.client
	if c == nil {
		b.mu.Unlock()
		return nil, ErrNoClient
	}
	st := &captureState{id: b.nextID("c"), events: events}
	b.capture = st
	b.mu.Unlock()

	if err := c.send(Outbound{Type: TypeCaptureStart, ID: st.id}); err != nil {
		b.clearCapture(st.id)
		return nil, err
	}
	return &handle{stop: func() error {
		if !b.clearCapture(st.id) {
			return nil
		}
		return c.send(Outbound{Type: TypeCaptureStop, ID: st.id})
	}}, nil
}

// Play sends clip to the client for playback.
func (b *Bridge) Play(_ context.Context, clip voice.AudioClip, onDone func(error)) (voice.Handle, error) {
	msg := Outbound{
		Type:       TypePlay,
		AudioURL:   clip.URL,
		Format:     clip.Format,
		SampleRate: clip.SampleRate,
		Text:       clip.Text,
	}
	if len(clip.Data) > 0 {
		msg.AudioBase64 = base64.StdEncoding.EncodeToString(clip.Data)
	}

	b.mu.Lock()
	c := b.client
	if c == nil {
		b.mu.Unlock()
		return nil, ErrNoClient
	}
	st := &playState{id: b.nextID("p"), onDone: onDone}
	b.play = st
	b.mu.Unlock()

	msg.ID = st.id
	if err := c.send(msg); err != nil {
		b.clearPlay(st.id)
		return nil, err
	}
	return &handle{stop: func() error {
		if !b.clearPlay(st.id) {
			return nil
		}
		return c.send(Outbound{Type: TypePlayStop, ID: st.id})
	}}, nil
}

func (b *Bridge) clearCapture(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture == nil || b.capture.id != id {
		return false
	}
	b.capture = nil
	return true
}

func (b *Bridge) clearPlay(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.play == nil || b.play.id != id {
		return false
	}
	b.play = nil
	return true
}

// dispatch routes a client frame to the current capture or playback.
func (b *Bridge) dispatch(in Inbound) {
	switch in.Type {
	case TypeTranscript, TypeCaptureError, TypeCaptureEnd:
		b.mu.Lock()
		st := b.capture
		if st == nil || st.id != in.ID {
			b.mu.Unlock()
			b.logger.Debug("stale capture frame", "type", in.Type, "id", in.ID)
			return
		}
		if in.Type != TypeTranscript || in.Final {
			b.capture = nil
		}
		b.mu.Unlock()

		ev := st.events
		switch in.Type {
		case TypeTranscript:
			if ev.OnResult != nil {
				ev.OnResult(in.Text, in.Final)
			}
		case TypeCaptureError:
			if ev.OnError != nil {
				ev.OnError(captureError(in))
			}
		case TypeCaptureEnd:
			if ev.OnEnd != nil {
				ev.OnEnd()
			}
		}

	case TypePlaybackEnd, TypePlaybackError:
		b.mu.Lock()
		st := b.play
		if st == nil || st.id != in.ID {
			b.mu.Unlock()
			b.logger.Debug("stale playback frame", "type", in.Type, "id", in.ID)
			return
		}
		b.play = nil
		b.mu.Unlock()

		if st.onDone == nil {
			return
		}
		if in.Type == TypePlaybackError {
			st.onDone(fmt.Errorf("client playback: %s", in.Error))
			return
		}
		st.onDone(nil)

	default:
		b.logger.Debug("unknown frame type", "type", in.Type)
	}
}

func captureError(in Inbound) error {
	if in.Aborted {
		return voice.ErrCaptureAborted
	}
	switch in.Error {
	case "no-speech", "no_speech":
		return voice.ErrNoSpeech
	case "":
		return errors.New("client capture failed")
	}
	return fmt.Errorf("client capture: %s", in.Error)
}

type handle struct {
	once sync.Once
	err  error
	stop func() error
}

func (h *handle) Stop() error {
	h.once.Do(func() { h.err = h.stop() })
	return h.err
}

// =============================================================================
// CLIENT CONNECTION
// =============================================================================

type client struct {
	conn   *websocket.Conn
	cfg    Config
	logger *slog.Logger

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, cfg Config, logger *slog.Logger) *client {
	return &client{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		out:    make(chan []byte, 32),
		done:   make(chan struct{}),
	}
}

func (c *client) send(msg Outbound) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrClientGone
	case <-time.After(c.cfg.WriteTimeout):
		return fmt.Errorf("send %s: write queue full", msg.Type)
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writeLoop() {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) readLoop(handle func(Inbound)) {
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		if mt != websocket.TextMessage {
			continue
		}

		var in Inbound
		if err := sonic.Unmarshal(data, &in); err != nil {
			c.logger.Debug("invalid client frame", "error", err)
			continue
		}
		handle(in)
	}
}
