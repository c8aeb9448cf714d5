// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package widget is the embeddable conversational widget.
//
// A Widget ties the request gate, the conversation log, the reveal
// scheduler, history sync, the feedback gate and the optional voice
// orchestrator behind six operations: Init, SendMessage, ToggleWidget,
// ClearConversation, Destroy and UpdateConfig. Every failure a visitor
// should see is also written into the conversation as an error bubble.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/apiclient"
	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/feedback"
	"github.com/Frankambaa/TaskMaster/internal/history"
	"github.com/Frankambaa/TaskMaster/internal/logging"
	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/render"
	"github.com/Frankambaa/TaskMaster/internal/security"
	"github.com/Frankambaa/TaskMaster/internal/util"
	"github.com/Frankambaa/TaskMaster/internal/voice"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// API is the remote answer service. *apiclient.Client implements it.
type API interface {
	Ask(ctx context.Context, req apiclient.AskRequest) (*apiclient.AskResponse, error)
	History(ctx context.Context, req apiclient.HistoryRequest) (*apiclient.HistoryResponse, error)
	SubmitFeedback(ctx context.Context, req apiclient.FeedbackRequest) (*apiclient.FeedbackResponse, error)
	SessionInfo(ctx context.Context, id apiclient.Identity) (*apiclient.SessionInfo, error)
	ClearSession(ctx context.Context, id apiclient.Identity) (*apiclient.ClearResponse, error)
}

var _ API = (*apiclient.Client)(nil)

// Archive keeps a local copy of the transcript.
type Archive interface {
	Record(ctx context.Context, msg model.Message) error
}

// Reply is the outcome of a completed turn.
type Reply struct {
	User model.Message
	Bot  model.Message
	// Markup is the final formatted answer.
	Markup          string
	FeedbackOffered bool
	Spoke           bool
}

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	view     View
	api      API
	renderer render.Renderer
	capturer voice.Capturer
	player   voice.Player
	archive  Archive
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures Init.
type Option func(*options)

// WithView sets the display surface. The default discards output.
func WithView(v View) Option {
	return func(o *options) { o.view = v }
}

// WithAPI replaces the HTTP client built from the configuration.
func WithAPI(api API) Option {
	return func(o *options) { o.api = api }
}

// WithRenderer selects the markup renderer. The default renders HTML.
func WithRenderer(r render.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithVoice supplies the audio backend. Voice stays off unless the
// configuration also enables it.
func WithVoice(c voice.Capturer, p voice.Player) Option {
	return func(o *options) { o.capturer, o.player = c, p }
}

// WithArchive records every user and bot message.
func WithArchive(a Archive) Option {
	return func(o *options) { o.archive = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now in the request gate, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// =============================================================================
// WIDGET
// =============================================================================

// Widget is one embedded conversation. It is safe for concurrent use; at
// most one turn runs at a time.
type Widget struct {
	logger   *slog.Logger
	view     View
	gate     *security.Gate
	store    *model.Conversation
	sched    *render.Scheduler
	feedback *feedback.Gate
	voice    *voice.Orchestrator
	archive  Archive
	injected bool

	// ctx lives until Destroy.
	ctx    context.Context
	cancel context.CancelFunc

	busy atomic.Bool
	// epoch advances whenever the log is wiped. A turn that started in an
	// older epoch drops its answer.
	epoch atomic.Uint64

	mu        sync.RWMutex
	cfg       *config.WidgetConfig
	api       API
	history   *history.Sync
	open      bool
	destroyed bool
}

// Init validates cfg and builds a widget. History is loaded for known
// visitors; otherwise the welcome message is shown. ctx bounds the calls
// made during Init only.
func Init(ctx context.Context, cfg *config.WidgetConfig, opts ...Option) (*Widget, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		return nil, &security.ConfigError{Field: "config", Reason: "configuration is required"}
	}
	if o.view == nil {
		o.view = NopView{}
	}
	if o.renderer == nil {
		o.renderer = render.NewHTMLRenderer()
	}
	logger := logging.OrDiscard(o.logger).With("component", "widget")

	w := &Widget{
		logger:  logger,
		view:    o.view,
		archive: o.archive,
	}

	gateOpts := []security.Option{
		security.WithLogger(o.logger),
		security.WithExpiryHook(w.onSessionExpired),
	}
	if o.clock != nil {
		gateOpts = append(gateOpts, security.WithClock(o.clock))
	}
	w.gate = security.NewGate(security.LimitsFrom(cfg), gateOpts...)

	validated, err := w.gate.ValidateConfig(cfg)
	if err != nil {
		logger.Error("widget config rejected", "error", err)
		return nil, err
	}
	if validated.Identity.DeviceID == "" {
		validated.Identity.DeviceID = "web_" + util.RandomToken(9)
	}

	api := o.api
	w.injected = api != nil
	if api == nil {
		client, err := apiclient.FromConfig(validated, o.logger)
		if err != nil {
			return nil, err
		}
		api = client
	}

	w.cfg = validated
	w.api = api
	w.store = model.NewConversation(validated.Security.MaxConversationHistory)
	w.sched = render.NewScheduler(o.renderer, validated.TypingDelay(), render.WithSchedulerLogger(o.logger))
	w.feedback = feedback.NewGate(feedback.PolicyFrom(validated.Feedback))
	w.history = history.New(api, w.store, identityOf(validated), validated.Display.PersistentHistoryCount, o.logger)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if o.capturer != nil && o.player != nil && validated.Voice.Enabled {
		w.voice = w.newOrchestrator(validated, o.capturer, o.player, o.logger)
		w.view.SetVoiceState(voice.StateIdle)
	}

	if w.history.CheckForHistory(ctx) {
		for _, msg := range w.store.Replay() {
			w.view.ShowMessage(msg, w.sched.Format(msg.Text))
		}
		w.view.ScrollToLatest()
	} else {
		w.addWelcome(validated)
	}
	w.refreshSession(ctx)

	w.open = validated.Display.StartOpen
	w.view.SetOpen(w.open)
	w.view.SetInputEnabled(true)

	logger.Info("widget initialized",
		"session", w.gate.SessionID(),
		"history", w.history.Loaded(),
		"voice", w.voice != nil)
	return w, nil
}

func (w *Widget) newOrchestrator(cfg *config.WidgetConfig, c voice.Capturer, p voice.Player, logger *slog.Logger) *voice.Orchestrator {
	vopts := voice.OptionsFrom(cfg)
	vopts.Logger = logger
	vopts.OnUtterance = w.onUtterance
	vopts.OnTransition = func(t voice.Transition) { w.view.SetVoiceState(t.To) }
	vopts.OnError = w.onVoiceError
	return voice.New(c, p, vopts)
}

// =============================================================================
// SEND MESSAGE
// =============================================================================

// SendMessage runs one turn: gate checks, the API call and the reveal of
// the answer. Blank text is ignored and returns (nil, nil). Rejections and
// failures are shown in the conversation and also returned.
func (w *Widget) SendMessage(ctx context.Context, text string) (*Reply, error) {
	if w.isDestroyed() {
		return nil, ErrDestroyed
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if !w.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer w.busy.Store(false)

	// Gate order: rate limit, session, message. Nothing below reaches the
	// network until all three pass.
	if err := w.gate.CheckRateLimit(); err != nil {
		return nil, w.reject(err)
	}
	if err := w.gate.CheckSession(); err != nil {
		return nil, w.reject(err)
	}
	clean, err := w.gate.ValidateMessage(text)
	if err != nil {
		return nil, w.reject(err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	cfg, api := w.snapshot()
	epoch := w.epoch.Load()
	sid := w.gate.SessionID()

	userMsg := model.NewUserMessage(clean, sid)
	w.appendAndShow(turnCtx, userMsg)

	w.view.SetInputEnabled(false)
	w.view.SetTyping(true)
	defer w.view.SetInputEnabled(true)

	req := apiclient.AskRequest{
		Question:  clean,
		Identity:  identityOf(cfg),
		SessionID: sid,
		Timestamp: time.Now().UnixMilli(),
	}
	if w.voiceActive() {
		req.VoiceEnabled = true
		req.Voice = cfg.Voice.Name
	}

	resp, err := api.Ask(turnCtx, req)
	w.view.SetTyping(false)
	if err != nil {
		w.logger.Error("ask failed", "session", sid, "error", err)
		w.showError(turnCtx, TextTurnFailed)
		w.voiceTurnFinished(false)
		return nil, err
	}
	if w.epoch.Load() != epoch {
		w.logger.Info("answer dropped after conversation reset", "session", sid)
		w.voiceTurnFinished(false)
		return nil, context.Canceled
	}
	if resp.UserInfo != nil {
		w.view.SetSessionLine(resp.UserInfo.Label())
	}

	answer := security.Sanitize(resp.Answer, false)
	if answer == "" {
		reason := security.Sanitize(resp.Error, false)
		if reason == "" {
			reason = TextTurnFailed
		}
		w.logger.Warn("answer carried an error", "session", sid, "error", resp.Error)
		w.showError(turnCtx, reason)
		w.voiceTurnFinished(false)
		return nil, fmt.Errorf("%w: %s", ErrServerError, reason)
	}

	botMsg := model.NewBotMessage(answer, sid, resp.ResponseType)
	w.store.Append(botMsg)
	w.record(turnCtx, botMsg)

	spoke := w.speak(resp.VoiceData)
	markup := w.reveal(turnCtx, botMsg, epoch)
	if w.epoch.Load() != epoch {
		w.voiceTurnFinished(spoke)
		return nil, context.Canceled
	}

	decision := w.feedback.Offer(feedback.Exchange{
		UserText:     clean,
		BotText:      answer,
		ResponseType: resp.ResponseType,
	})
	if decision.Offer {
		w.view.OfferFeedback(botMsg.ID)
	}
	w.view.ScrollToLatest()
	w.voiceTurnFinished(spoke)

	w.logger.Debug("turn complete",
		"session", sid,
		"response_type", resp.ResponseType,
		"feedback", decision.Reason,
		"spoke", spoke)

	return &Reply{
		User:            userMsg,
		Bot:             botMsg,
		Markup:          markup,
		FeedbackOffered: decision.Offer,
		Spoke:           spoke,
	}, nil
}

// reveal types the answer into a fresh bubble and waits for it. A reveal the
// caller cancelled is completed instantly so the bubble never stays partial.
// A reveal cancelled by a wipe or by Destroy leaves the bubble alone: it no
// longer belongs to the conversation.
func (w *Widget) reveal(ctx context.Context, msg model.Message, epoch uint64) string {
	target := w.view.BeginReveal(msg)
	var markup string
	job := w.sched.StartReveal(ctx, target, msg.Text, func(r render.Result) { markup = r.Markup })
	<-job.Done()
	if job.Completed() {
		return markup
	}
	if w.isDestroyed() || w.epoch.Load() != epoch {
		return ""
	}
	return w.sched.Show(target, msg.Text)
}

// reject shows the in-band text for a gate failure and returns err.
func (w *Widget) reject(err error) error {
	w.logger.Warn("message rejected", "session", w.gate.SessionID(), "error", err)
	w.showError(w.ctx, inBandText(err))
	return err
}

func (w *Widget) showError(ctx context.Context, text string) {
	w.appendAndShow(ctx, model.NewErrorMessage(text, w.gate.SessionID()))
}

func (w *Widget) appendAndShow(ctx context.Context, msg model.Message) {
	w.store.Append(msg)
	w.view.ShowMessage(msg, w.sched.Format(msg.Text))
	w.view.ScrollToLatest()
	w.record(ctx, msg)
}

func (w *Widget) record(ctx context.Context, msg model.Message) {
	if w.archive == nil {
		return
	}
	if err := w.archive.Record(context.WithoutCancel(ctx), msg); err != nil {
		w.logger.Warn("transcript write failed", "message", msg.ID, "error", err)
	}
}

func (w *Widget) addWelcome(cfg *config.WidgetConfig) {
	text := strings.TrimSpace(cfg.Display.WelcomeMessage)
	if text == "" {
		return
	}
	msg := model.NewBotMessage(text, w.gate.SessionID(), "")
	w.store.Append(msg)
	w.view.ShowMessage(msg, w.sched.Format(text))
}

// refreshSession updates the session line. Failures leave it unchanged.
func (w *Widget) refreshSession(ctx context.Context) {
	cfg, api := w.snapshot()
	info, err := api.SessionInfo(ctx, identityOf(cfg))
	if err != nil {
		w.logger.Warn("session info unavailable", "error", err)
		return
	}
	w.view.SetSessionLine(info.Label())
}

// onSessionExpired runs from the gate when an idle session is rotated.
func (w *Widget) onSessionExpired(oldID, newID string) {
	w.wipe()
	w.logger.Info("conversation reset", "reason", "session expired", "session", oldID, "replacement", newID)
}

// wipe empties the log and the view and forgets feedback and history state.
func (w *Widget) wipe() {
	w.epoch.Add(1)
	w.sched.CancelAll()
	w.store.Clear()
	w.view.ClearMessages()
	w.feedback.Reset()
	w.mu.RLock()
	h := w.history
	w.mu.RUnlock()
	h.Reset()
}

// =============================================================================
// OPEN / CLOSE
// =============================================================================

// ToggleWidget opens a closed widget and closes an open one. It returns the
// new state.
func (w *Widget) ToggleWidget() (bool, error) {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return false, ErrDestroyed
	}
	w.open = !w.open
	open := w.open
	w.mu.Unlock()

	w.view.SetOpen(open)
	if open {
		w.view.ScrollToLatest()
	}
	return open, nil
}

// Open shows the widget.
func (w *Widget) Open() error {
	return w.setOpen(true)
}

// Close hides the widget. The conversation is kept.
func (w *Widget) Close() error {
	return w.setOpen(false)
}

func (w *Widget) setOpen(open bool) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return ErrDestroyed
	}
	w.open = open
	w.mu.Unlock()

	w.view.SetOpen(open)
	if open {
		w.view.ScrollToLatest()
	}
	return nil
}

// IsOpen reports whether the widget is shown.
func (w *Widget) IsOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.open
}

// =============================================================================
// CLEAR / DESTROY / UPDATE
// =============================================================================

// ClearConversation asks the server to drop the session and, when it
// agrees, empties the conversation and shows the welcome message again.
// Asking for confirmation is the host's job.
func (w *Widget) ClearConversation(ctx context.Context) error {
	if w.isDestroyed() {
		return ErrDestroyed
	}
	cfg, api := w.snapshot()
	resp, err := api.ClearSession(ctx, identityOf(cfg))
	if err != nil {
		w.logger.Error("clear conversation failed", "error", err)
		return err
	}
	if !resp.Success {
		w.logger.Warn("server refused to clear conversation", "message", resp.Message)
		return fmt.Errorf("clear conversation: %s", strings.TrimSpace(resp.Message+" refused"))
	}

	w.wipe()
	w.addWelcome(cfg)
	w.refreshSession(ctx)
	w.logger.Info("conversation reset", "reason", "cleared", "session", w.gate.SessionID())
	return nil
}

// LoadHistory fetches up to limit persisted turns on demand and redraws the
// conversation with them ahead of the live messages. limit <= 0 uses the
// configured count. History loads once per conversation; a clear or session
// expiry allows it again. It returns the messages added, which is empty when
// the visitor is anonymous or the server has nothing.
func (w *Widget) LoadHistory(ctx context.Context, limit int) ([]model.Message, error) {
	if w.isDestroyed() {
		return nil, ErrDestroyed
	}
	// Redrawing under a running reveal would orphan its bubble.
	if !w.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer w.busy.Store(false)

	w.mu.RLock()
	h := w.history
	w.mu.RUnlock()

	added := h.LoadHistory(ctx, limit)
	if len(added) == 0 {
		return nil, nil
	}
	w.view.ClearMessages()
	for _, msg := range w.store.Replay() {
		w.view.ShowMessage(msg, w.sched.Format(msg.Text))
	}
	w.view.ScrollToLatest()
	return added, nil
}

// Destroy stops reveals and voice and detaches the widget. Later calls
// return ErrDestroyed; Destroy itself is idempotent.
func (w *Widget) Destroy() error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return nil
	}
	w.destroyed = true
	w.open = false
	w.mu.Unlock()

	w.cancel()
	w.sched.Teardown()
	var err error
	if w.voice != nil {
		err = w.voice.Close()
	}
	w.view.SetOpen(false)
	w.logger.Info("widget destroyed", "session", w.gate.SessionID())
	return err
}

// UpdateConfig applies patch. The merged configuration is validated before
// anything changes; a rejected patch leaves the widget as it was.
func (w *Widget) UpdateConfig(ctx context.Context, patch config.Patch) error {
	if w.isDestroyed() {
		return ErrDestroyed
	}
	if patch.IsEmpty() {
		return nil
	}

	cur, curAPI := w.snapshot()
	next, err := w.gate.ValidateConfig(cur.Apply(patch))
	if err != nil {
		w.logger.Warn("config update rejected", "error", err)
		return err
	}
	if next.Identity.DeviceID == "" {
		next.Identity.DeviceID = cur.Identity.DeviceID
	}

	api := curAPI
	if !w.injected && (next.API.URL != cur.API.URL || next.API.Key != cur.API.Key) {
		client, err := apiclient.FromConfig(next, w.logger)
		if err != nil {
			return err
		}
		api = client
	}

	w.mu.Lock()
	w.cfg = next
	w.api = api
	if identityOf(next) != identityOf(cur) {
		w.history = history.New(api, w.store, identityOf(next), next.Display.PersistentHistoryCount, w.logger)
	}
	w.mu.Unlock()

	w.sched.SetDelay(next.TypingDelay())
	w.feedback.SetPolicy(feedback.PolicyFrom(next.Feedback))
	if w.voice != nil && !next.Voice.Enabled {
		_ = w.voice.Disconnect()
	}

	w.refreshSession(ctx)
	w.logger.Info("config updated")
	return nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

// SubmitFeedback rates the bot message messageID.
func (w *Widget) SubmitFeedback(ctx context.Context, messageID string, positive bool) error {
	if w.isDestroyed() {
		return ErrDestroyed
	}
	bot, ok := w.store.ByID(messageID)
	if !ok || bot.IsUser() || bot.IsError {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	var question string
	if user, ok := w.store.PrecedingUser(messageID); ok {
		question = user.Text
	}

	kind := apiclient.FeedbackDown
	if positive {
		kind = apiclient.FeedbackUp
	}
	cfg, api := w.snapshot()
	_, err := api.SubmitFeedback(ctx, apiclient.FeedbackRequest{
		UserQuestion: question,
		BotResponse:  bot.Text,
		ResponseType: bot.ResponseType,
		FeedbackType: kind,
		SessionID:    w.gate.SessionID(),
		MessageID:    bot.ID,
		Identity:     identityOf(cfg),
	})
	if err != nil {
		w.logger.Warn("feedback not sent", "message", messageID, "error", err)
		return err
	}
	w.logger.Info("feedback sent", "message", messageID, "type", kind)
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Config returns the configuration in force. Do not modify it.
func (w *Widget) Config() *config.WidgetConfig {
	cfg, _ := w.snapshot()
	return cfg
}

// SessionID returns the current conversation session id.
func (w *Widget) SessionID() string {
	return w.gate.SessionID()
}

// Messages returns the conversation log, oldest first.
func (w *Widget) Messages() []model.Message {
	return w.store.Replay()
}

// Format renders text the way bubbles are rendered.
func (w *Widget) Format(text string) string {
	return w.sched.Format(text)
}

// Busy reports whether a turn is in flight.
func (w *Widget) Busy() bool {
	return w.busy.Load()
}

func (w *Widget) snapshot() (*config.WidgetConfig, API) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg, w.api
}

func (w *Widget) isDestroyed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.destroyed
}

func identityOf(cfg *config.WidgetConfig) apiclient.Identity {
	return apiclient.Identity{
		UserID:   cfg.Identity.UserID,
		Username: cfg.Identity.Username,
		Email:    cfg.Identity.Email,
		DeviceID: cfg.Identity.DeviceID,
	}
}

// errorsIsAny reports whether err matches any target.
func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
