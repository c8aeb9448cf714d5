// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/logging"
)

// maxTrace bounds the retained transition history.
const maxTrace = 256

// =============================================================================
// OPTIONS
// =============================================================================

// Options configure an Orchestrator.
type Options struct {
	// Continuous selects StartContinuous over Listen in Start. Continuous
	// capture re-arms after each turn until a stop phrase or Disconnect.
	Continuous bool
	// SettleDelay is the pause between the end of playback and the next
	// capture, so the tail of the assistant's audio is not transcribed.
	SettleDelay time.Duration
	// RetryDelay is the pause before restarting a failed capture.
	RetryDelay time.Duration
	// MaxRestartsPerMinute throttles automatic capture restarts.
	MaxRestartsPerMinute int
	StopPhrases          []string
	Logger               *slog.Logger

	// OnUtterance receives each final, non-stop transcript. It runs on its
	// own goroutine and may call back into the orchestrator.
	OnUtterance func(text string)
	// OnInterim receives partial transcripts.
	OnInterim func(text string)
	// OnTransition is called on the orchestrator goroutine for every state
	// change. It must not call back into the orchestrator.
	OnTransition func(t Transition)
	// OnError receives capture and playback failures.
	OnError func(err error)
}

// OptionsFrom builds Options from the widget configuration. Callbacks are
// left for the caller to set.
func OptionsFrom(cfg *config.WidgetConfig) Options {
	return Options{
		Continuous:           cfg.Voice.Continuous,
		SettleDelay:          cfg.SettleDelay(),
		RetryDelay:           cfg.RetryDelay(),
		MaxRestartsPerMinute: cfg.Voice.MaxRestartsPerMinute,
		StopPhrases:          append([]string(nil), cfg.Voice.StopPhrases...),
	}
}

func (o *Options) fillDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.MaxRestartsPerMinute <= 0 {
		o.MaxRestartsPerMinute = 20
	}
	if len(o.StopPhrases) == 0 {
		o.StopPhrases = append([]string(nil), config.DefaultStopPhrases...)
	}
	o.Logger = logging.OrDiscard(o.Logger)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the capture and playback handles and the voice state.
// At most one of each handle exists at a time, and capture is never running
// while audio plays.
type Orchestrator struct {
	capturer Capturer
	player   Player
	opts     Options
	logger   *slog.Logger
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	// work queue drained by loop
	qmu    sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	closed bool

	// owned by the loop goroutine
	state      State
	armed      bool
	paused     bool
	capture    Handle
	captureGen uint64
	playback   Handle
	playGen    uint64
	timer      *time.Timer
	timerGen   uint64

	// published copies for readers on other goroutines
	smu       sync.RWMutex
	snapState State
	snapPause bool
	snapArmed bool
	trace     []Transition
}

// New creates an orchestrator in the Idle state and starts its goroutine.
func New(capturer Capturer, player Player, opts Options) *Orchestrator {
	opts.fillDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		capturer: capturer,
		player:   player,
		opts:     opts,
		logger:   opts.Logger.With("component", "voice"),
		// SECURITY: a broken microphone must not spin the restart path.
		limiter: rate.NewLimiter(rate.Limit(float64(opts.MaxRestartsPerMinute)/60.0), 3),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		state:   StateIdle,
	}
	o.publish()
	go o.loop()
	return o
}

// =============================================================================
// PUBLIC API
// =============================================================================

// StartContinuous arms continuous mode and starts listening. It is the only
// way out of Disconnected besides Listen.
func (o *Orchestrator) StartContinuous() error {
	var err error
	if derr := o.do(func() {
		o.armed = true
		err = o.startCapture("armed")
	}); derr != nil {
		return derr
	}
	return err
}

// Start begins voice interaction in the configured mode.
func (o *Orchestrator) Start() error {
	if o.opts.Continuous {
		return o.StartContinuous()
	}
	return o.Listen()
}

// Listen starts a single capture without arming continuous mode. Playback in
// progress is stopped first.
func (o *Orchestrator) Listen() error {
	var err error
	if derr := o.do(func() {
		o.armed = false
		err = o.startCapture("listen")
	}); derr != nil {
		return derr
	}
	return err
}

// Disconnect stops capture and playback and enters Disconnected. Nothing
// resumes until StartContinuous or Listen.
func (o *Orchestrator) Disconnect() error {
	return o.do(func() { o.disconnect("user") })
}

// Speak plays clip. Capture is stopped before playback begins and resumes
// after the settle delay once playback ends, when continuous mode is armed.
// A clip that arrives while disconnected returns ErrDisconnected.
func (o *Orchestrator) Speak(clip AudioClip) error {
	var err error
	if derr := o.do(func() { err = o.speak(clip) }); derr != nil {
		return derr
	}
	return err
}

// StopPlayback interrupts playback, if any, and follows the normal
// end-of-playback path.
func (o *Orchestrator) StopPlayback() error {
	return o.do(func() {
		if o.playback == nil {
			return
		}
		o.stopPlayback()
		o.afterPlayback("playback stopped")
	})
}

// TurnFinished tells the orchestrator that the turn triggered by the last
// utterance is over. When the answer was not spoken, continuous capture
// resumes after the retry delay; spoken answers resume from playback end.
func (o *Orchestrator) TurnFinished(spoke bool) {
	_ = o.do(func() {
		if spoke || !o.armed || o.state != StateIdle {
			return
		}
		if o.capture != nil || o.playback != nil {
			return
		}
		o.schedule(o.opts.RetryDelay, func() { o.resume("turn finished") })
	})
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.smu.RLock()
	defer o.smu.RUnlock()
	return o.snapState
}

// Paused reports whether capture is paused for playback.
func (o *Orchestrator) Paused() bool {
	o.smu.RLock()
	defer o.smu.RUnlock()
	return o.snapPause
}

// Continuous reports whether continuous mode is armed.
func (o *Orchestrator) Continuous() bool {
	o.smu.RLock()
	defer o.smu.RUnlock()
	return o.snapArmed
}

// Trace returns a copy of the recorded transitions, oldest first.
func (o *Orchestrator) Trace() []Transition {
	o.smu.RLock()
	defer o.smu.RUnlock()
	out := make([]Transition, len(o.trace))
	copy(out, o.trace)
	return out
}

// Close releases both handles and stops the orchestrator goroutine.
func (o *Orchestrator) Close() error {
	err := o.do(func() {
		o.cancelTimer()
		o.stopCapture()
		o.stopPlayback()
		o.paused = false
		o.armed = false
		o.setState(StateDisconnected, "closed")
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}

	o.qmu.Lock()
	if o.closed {
		o.qmu.Unlock()
		return nil
	}
	o.closed = true
	o.queue = nil
	o.qmu.Unlock()

	close(o.done)
	o.cancel()
	<-o.exited
	return err
}

// =============================================================================
// EVENT LOOP
// =============================================================================

func (o *Orchestrator) loop() {
	defer close(o.exited)
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
		}
		for {
			fn := o.next()
			if fn == nil {
				break
			}
			fn()
		}
	}
}

func (o *Orchestrator) next() func() {
	o.qmu.Lock()
	defer o.qmu.Unlock()
	if len(o.queue) == 0 || o.closed {
		return nil
	}
	fn := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	return fn
}

// post queues fn without waiting. Safe from any goroutine, including the
// loop itself.
func (o *Orchestrator) post(fn func()) bool {
	o.qmu.Lock()
	if o.closed {
		o.qmu.Unlock()
		return false
	}
	o.queue = append(o.queue, fn)
	o.qmu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the loop and waits for it. Must not be called from the loop.
func (o *Orchestrator) do(fn func()) error {
	finished := make(chan struct{})
	if !o.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrClosed
	}
}

// =============================================================================
// TRANSITIONS (loop goroutine only)
// =============================================================================

func (o *Orchestrator) startCapture(reason string) error {
	o.cancelTimer()
	// Playback and capture never overlap.
	o.stopPlayback()
	o.stopCapture()
	o.paused = false

	gen := o.captureGen
	events := CaptureEvents{
		OnResult: func(text string, final bool) {
			o.post(func() { o.onResult(gen, text, final) })
		},
		OnError: func(err error) {
			o.post(func() { o.onCaptureError(gen, err) })
		},
		OnEnd: func() {
			o.post(func() { o.onCaptureEnd(gen) })
		},
	}

	h, err := o.capturer.StartCapture(o.ctx, events)
	if err != nil {
		verr := &Error{Op: "capture", Err: err}
		o.report(verr)
		o.setState(StateIdle, "capture failed to start")
		if o.armed && !errors.Is(err, ErrCaptureAborted) {
			o.scheduleRestart()
		}
		return verr
	}
	o.capture = h
	o.setState(StateListening, reason)
	return nil
}

func (o *Orchestrator) speak(clip AudioClip) error {
	if o.state == StateDisconnected {
		return ErrDisconnected
	}
	if clip.Empty() {
		return &Error{Op: "play", Err: errors.New("empty audio clip")}
	}

	o.cancelTimer()
	o.stopCapture()
	o.paused = true
	o.stopPlayback()

	gen := o.playGen
	o.setState(StateSynthesizing, "speak")

	h, err := o.player.Play(o.ctx, clip, func(err error) {
		o.post(func() { o.onPlaybackDone(gen, err) })
	})
	if err != nil {
		verr := &Error{Op: "play", Err: err}
		o.report(verr)
		o.afterPlayback("playback failed to start")
		return verr
	}
	o.playback = h
	return nil
}

func (o *Orchestrator) onPlaybackDone(gen uint64, err error) {
	if gen != o.playGen {
		return
	}
	o.playGen++
	o.playback = nil
	if err != nil {
		o.report(&Error{Op: "play", Err: err})
		o.afterPlayback("playback error")
		return
	}
	o.afterPlayback("playback ended")
}

// afterPlayback returns to Idle and, when capture was paused for playback in
// continuous mode, resumes it after the settle delay.
func (o *Orchestrator) afterPlayback(reason string) {
	if o.state == StateDisconnected {
		o.paused = false
		o.publish()
		return
	}
	o.setState(StateIdle, reason)
	if o.paused && o.armed {
		o.schedule(o.opts.SettleDelay, func() { o.resume("settled") })
		return
	}
	o.paused = false
	o.publish()
}

func (o *Orchestrator) resume(reason string) {
	if o.state == StateDisconnected || !o.armed {
		return
	}
	if o.playback != nil || o.capture != nil {
		return
	}
	_ = o.startCapture(reason)
}

func (o *Orchestrator) onResult(gen uint64, text string, final bool) {
	if gen != o.captureGen {
		return
	}
	text = strings.TrimSpace(text)
	if !final {
		if text != "" && o.opts.OnInterim != nil {
			go o.opts.OnInterim(text)
		}
		return
	}

	o.stopCapture()

	if text == "" {
		o.setState(StateIdle, "no speech")
		if o.armed {
			o.scheduleRestart()
		}
		return
	}

	if IsStopIntent(text, o.opts.StopPhrases) {
		o.logger.Info("VOICE_STOP_PHRASE", "text", text)
		o.disconnect("stop phrase")
		return
	}

	o.setState(StateIdle, "utterance")
	if o.opts.OnUtterance != nil {
		go o.opts.OnUtterance(text)
	}
}

func (o *Orchestrator) onCaptureError(gen uint64, err error) {
	if gen != o.captureGen {
		return
	}
	o.stopCapture()

	if errors.Is(err, ErrCaptureAborted) {
		o.setState(StateIdle, "capture aborted")
		return
	}

	o.report(&Error{Op: "capture", Err: err})
	o.setState(StateIdle, "capture error")
	if o.armed {
		o.scheduleRestart()
	}
}

func (o *Orchestrator) onCaptureEnd(gen uint64) {
	if gen != o.captureGen {
		return
	}
	o.stopCapture()
	o.setState(StateIdle, "capture ended")
	if o.armed && !o.paused {
		o.scheduleRestart()
	}
}

func (o *Orchestrator) disconnect(reason string) {
	o.cancelTimer()
	o.stopCapture()
	o.stopPlayback()
	o.armed = false
	o.paused = false
	o.setState(StateDisconnected, reason)
}

// scheduleRestart restarts capture after the retry delay, within the restart
// budget.
func (o *Orchestrator) scheduleRestart() {
	if !o.limiter.Allow() {
		o.report(&Error{Op: "restart", Err: ErrRestartLimit})
		return
	}
	o.schedule(o.opts.RetryDelay, func() { o.resume("restart") })
}

// stopCapture releases the capture handle. Callbacks from it are ignored
// from here on.
func (o *Orchestrator) stopCapture() {
	o.captureGen++
	if o.capture == nil {
		return
	}
	h := o.capture
	o.capture = nil
	if err := h.Stop(); err != nil {
		o.logger.Debug("capture stop failed", "error", err)
	}
}

func (o *Orchestrator) stopPlayback() {
	o.playGen++
	if o.playback == nil {
		return
	}
	h := o.playback
	o.playback = nil
	if err := h.Stop(); err != nil {
		o.logger.Debug("playback stop failed", "error", err)
	}
}

func (o *Orchestrator) schedule(d time.Duration, fn func()) {
	o.cancelTimer()
	gen := o.timerGen
	o.timer = time.AfterFunc(d, func() {
		o.post(func() {
			if gen != o.timerGen {
				return
			}
			o.timer = nil
			fn()
		})
	})
}

func (o *Orchestrator) cancelTimer() {
	o.timerGen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) setState(to State, reason string) {
	from := o.state
	if from == to {
		o.publish()
		return
	}
	o.state = to
	t := Transition{From: from, To: to, At: time.Now(), Reason: reason}

	o.smu.Lock()
	o.trace = append(o.trace, t)
	if len(o.trace) > maxTrace {
		o.trace = o.trace[len(o.trace)-maxTrace:]
	}
	o.smu.Unlock()
	o.publish()

	o.logger.Debug("voice state", "from", from, "to", to, "reason", reason)
	if o.opts.OnTransition != nil {
		o.opts.OnTransition(t)
	}
}

func (o *Orchestrator) publish() {
	o.smu.Lock()
	o.snapState = o.state
	o.snapPause = o.paused
	o.snapArmed = o.armed
	o.smu.Unlock()
}

func (o *Orchestrator) report(err error) {
	o.logger.Warn("VOICE_ERROR", "error", err)
	if o.opts.OnError != nil {
		go o.opts.OnError(err)
	}
}
