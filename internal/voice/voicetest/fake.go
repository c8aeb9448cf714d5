// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package voicetest provides scripted audio collaborators for tests of code
// built on the voice orchestrator.
package voicetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// Event names recorded in a Log.
const (
	CaptureStart = "capture_start"
	CaptureStop  = "capture_stop"
	PlayStart    = "play_start"
	PlayStop     = "play_stop"
	PlayEnd      = "play_end"
)

// Log is an ordered record of device events shared by a Capturer and a
// Player.
type Log struct {
	mu     sync.Mutex
	events []string
}

func (l *Log) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (l *Log) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Count returns how many times e was recorded.
func (l *Log) Count(e string) int {
	n := 0
	for _, got := range l.Events() {
		if got == e {
			n++
		}
	}
	return n
}

// CheckExclusive returns an error if the log shows capture and playback
// active at the same time.
func CheckExclusive(events []string) error {
	capturing, playing := false, false
	for i, e := range events {
		switch e {
		case CaptureStart:
			if playing {
				return fmt.Errorf("event %d: capture started during playback", i)
			}
			capturing = true
		case CaptureStop:
			capturing = false
		case PlayStart:
			if capturing {
				return fmt.Errorf("event %d: playback started during capture", i)
			}
			playing = true
		case PlayStop, PlayEnd:
			playing = false
		}
	}
	return nil
}

type handle struct {
	once sync.Once
	stop func()
}

func (h *handle) Stop() error {
	h.once.Do(h.stop)
	return nil
}

// =============================================================================
// CAPTURER
// =============================================================================

// Capturer is a voice.Capturer driven by the test.
type Capturer struct {
	Log *Log
	// StartErr, when set, fails the next StartCapture.
	StartErr error

	mu     sync.Mutex
	events voice.CaptureEvents
	active bool
	starts int
}

// NewCapturer returns a capturer recording into log.
func NewCapturer(log *Log) *Capturer {
	return &Capturer{Log: log}
}

// StartCapture implements voice.Capturer.
func (c *Capturer) StartCapture(_ context.Context, events voice.CaptureEvents) (voice.Handle, error) {
	c.mu.Lock()
	if err := c.StartErr; err != nil {
		c.StartErr = nil
		c.mu.Unlock()
		return nil, err
	}
	c.events = events
	c.active = true
	c.starts++
	c.mu.Unlock()

	c.Log.add(CaptureStart)
	return &handle{stop: func() {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		c.Log.add(CaptureStop)
	}}, nil
}

// Active reports whether a capture is running.
func (c *Capturer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Starts returns how many captures were started.
func (c *Capturer) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *Capturer) current() voice.CaptureEvents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Say delivers a final transcript through the latest capture.
func (c *Capturer) Say(text string) {
	if ev := c.current(); ev.OnResult != nil {
		ev.OnResult(text, true)
	}
}

// Interim delivers a partial transcript through the latest capture.
func (c *Capturer) Interim(text string) {
	if ev := c.current(); ev.OnResult != nil {
		ev.OnResult(text, false)
	}
}

// Fail reports err through the latest capture.
func (c *Capturer) Fail(err error) {
	if ev := c.current(); ev.OnError != nil {
		ev.OnError(err)
	}
}

// End reports the end of the latest capture.
func (c *Capturer) End() {
	if ev := c.current(); ev.OnEnd != nil {
		ev.OnEnd()
	}
}

// =============================================================================
// PLAYER
// =============================================================================

// Player is a voice.Player whose playback lasts until Finish.
type Player struct {
	Log *Log

	mu      sync.Mutex
	onDone  func(error)
	playing bool
	clips   []voice.AudioClip
}

// NewPlayer returns a player recording into log.
func NewPlayer(log *Log) *Player {
	return &Player{Log: log}
}

// Play implements voice.Player.
func (p *Player) Play(_ context.Context, clip voice.AudioClip, onDone func(error)) (voice.Handle, error) {
	p.mu.Lock()
	p.onDone = onDone
	p.playing = true
	p.clips = append(p.clips, clip)
	p.mu.Unlock()

	p.Log.add(PlayStart)
	return &handle{stop: func() {
		p.mu.Lock()
		wasPlaying := p.playing
		p.playing = false
		p.mu.Unlock()
		if wasPlaying {
			p.Log.add(PlayStop)
		}
	}}, nil
}

// Playing reports whether a clip is playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Clips returns the clips played so far.
func (p *Player) Clips() []voice.AudioClip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]voice.AudioClip(nil), p.clips...)
}

// Finish ends the current playback, reporting err.
func (p *Player) Finish(err error) {
	p.mu.Lock()
	done := p.onDone
	p.onDone = nil
	p.playing = false
	p.mu.Unlock()

	if done != nil {
		p.Log.add(PlayEnd)
		done(err)
	}
}
