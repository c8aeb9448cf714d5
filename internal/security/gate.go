// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/logging"
	"github.com/Frankambaa/TaskMaster/internal/util"
)

// =============================================================================
// LIMITS
// =============================================================================

// Limits are the numeric bounds the gate enforces.
type Limits struct {
	MaxMessageLength int
	InputFieldCap    int
	RateLimitMax     int
	RateLimitWindow  time.Duration
	SessionTimeout   time.Duration
}

// DefaultLimits returns 2000 characters per message, 10 requests per 60s
// and a 30 minute idle timeout.
func DefaultLimits() Limits {
	return LimitsFrom(config.Default())
}

// LimitsFrom extracts the gate limits from a widget configuration.
func LimitsFrom(cfg *config.WidgetConfig) Limits {
	return Limits{
		MaxMessageLength: cfg.Security.MaxMessageLength,
		InputFieldCap:    cfg.Security.InputFieldCap,
		RateLimitMax:     cfg.Security.RateLimitMaxRequests,
		RateLimitWindow:  cfg.RateLimitWindow(),
		SessionTimeout:   cfg.SessionTimeout(),
	}
}

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionState is the client-side conversation session.
type SessionState struct {
	ID             string
	LastActivityAt time.Time
}

// NewSessionID returns an id of the form session_<unix ms>_<token>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), util.RandomToken(9))
}

// =============================================================================
// GATE
// =============================================================================

// Gate guards outbound requests. Safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	limits  Limits
	window  *RateWindow
	session SessionState

	now      func() time.Time
	onExpire func(oldID, newID string)
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger for gate events.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithExpiryHook registers a callback run after an idle session has been
// rotated. The widget clears its in-memory log here.
func WithExpiryHook(fn func(oldID, newID string)) Option {
	return func(g *Gate) { g.onExpire = fn }
}

// NewGate creates a gate with a fresh session.
func NewGate(limits Limits, opts ...Option) *Gate {
	d := DefaultLimits()
	if limits.MaxMessageLength <= 0 {
		limits.MaxMessageLength = d.MaxMessageLength
	}
	if limits.InputFieldCap <= 0 {
		limits.InputFieldCap = d.InputFieldCap
	}
	if limits.RateLimitMax <= 0 {
		limits.RateLimitMax = d.RateLimitMax
	}
	if limits.RateLimitWindow <= 0 {
		limits.RateLimitWindow = d.RateLimitWindow
	}
	if limits.SessionTimeout <= 0 {
		limits.SessionTimeout = d.SessionTimeout
	}

	g := &Gate{
		limits: limits,
		window: NewRateWindow(limits.RateLimitMax, limits.RateLimitWindow),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDiscard(g.logger)

	now := g.now()
	g.session = SessionState{ID: NewSessionID(now), LastActivityAt: now}
	return g
}

// Limits returns the limits in force.
func (g *Gate) Limits() Limits {
	return g.limits
}

// =============================================================================
// CONFIG VALIDATION
// =============================================================================

// ValidateConfig checks the endpoint and domain allow-list and returns a
// copy of cfg with identity and display fields sanitized.
func (g *Gate) ValidateConfig(cfg *config.WidgetConfig) (*config.WidgetConfig, error) {
	return ValidateConfig(cfg, g.limits.InputFieldCap)
}

// ValidateConfig is the gate-independent form of Gate.ValidateConfig.
func ValidateConfig(cfg *config.WidgetConfig, fieldCap int) (*config.WidgetConfig, error) {
	if cfg == nil {
		return nil, &ConfigError{Field: "config", Reason: "configuration is required"}
	}
	if err := validateEndpoint(cfg.API.URL); err != nil {
		return nil, err
	}
	if !DomainAllowed(cfg.Host.AllowedDomains, cfg.Host.Host) {
		return nil, &ConfigError{Field: "host.allowed_domains", Reason: fmt.Sprintf("host %q is not in the allowed domains", cfg.Host.Host)}
	}

	out := cfg.Clone()
	out.Identity.UserID = SanitizeCap(out.Identity.UserID, true, fieldCap)
	out.Identity.Username = SanitizeCap(out.Identity.Username, true, fieldCap)
	out.Identity.Email = SanitizeCap(out.Identity.Email, true, fieldCap)
	out.Identity.DeviceID = SanitizeCap(out.Identity.DeviceID, true, fieldCap)
	out.Display.Title = SanitizeCap(out.Display.Title, true, fieldCap)
	return out, nil
}

func validateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ConfigError{Field: "api.url", Reason: "endpoint is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Field: "api.url", Reason: "endpoint is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "api.url", Reason: "endpoint must use http or https"}
	}
	if u.Host == "" {
		return &ConfigError{Field: "api.url", Reason: "endpoint host is required"}
	}
	if u.User != nil {
		return &ConfigError{Field: "api.url", Reason: "endpoint must not embed credentials"}
	}
	return nil
}

// DomainAllowed reports whether host matches the allow-list. An empty list
// allows every host. Entries match exactly (case-insensitive) or, when
// written as "*.example.com", any subdomain of example.com.
func DomainAllowed(allowed []string, host string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(d, "*."); ok && strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// =============================================================================
// SANITIZE / VALIDATE
// =============================================================================

// Sanitize cleans input using the gate's field cap.
func (g *Gate) Sanitize(input string, isUserInput bool) string {
	return SanitizeCap(input, isUserInput, g.limits.InputFieldCap)
}

// ValidateMessage rejects empty or overlong messages and returns the text
// trimmed with script blocks removed.
func (g *Gate) ValidateMessage(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &ValidationError{Reason: "message is empty"}
	}
	if n := util.RuneLen(trimmed); n > g.limits.MaxMessageLength {
		return "", &ValidationError{Reason: "message is too long", Length: n, Max: g.limits.MaxMessageLength}
	}
	cleaned := strings.TrimSpace(StripScripts(trimmed))
	if cleaned == "" {
		return "", &ValidationError{Reason: "message has no content"}
	}
	return cleaned, nil
}

// =============================================================================
// RATE LIMIT
// =============================================================================

// CheckRateLimit records an outbound request. It returns a *RateLimitError
// when the gate is blocked or the window is full; the request that fills
// the window past max starts a block lasting one full window.
func (g *Gate) CheckRateLimit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.window.Blocked(now) {
		return &RateLimitError{Blocked: true, RetryAfter: g.window.RetryAfter(now)}
	}
	if !g.window.Allow(now) {
		g.logger.Warn("security event", "event", "RATE_LIMITED", "session", g.session.ID,
			"max", g.limits.RateLimitMax, "window", g.limits.RateLimitWindow)
		return &RateLimitError{RetryAfter: g.window.RetryAfter(now)}
	}
	return nil
}

// Blocked reports whether the gate is in its rate-limit cool-down.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window.Blocked(g.now())
}

// RequestCount returns the number of requests in the current window.
func (g *Gate) RequestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window.Count(g.now())
}

// =============================================================================
// SESSION
// =============================================================================

// CheckSession refreshes the session's last activity. When the session has
// been idle past the timeout it is rotated first, the expiry hook runs, and
// ErrSessionExpired is returned.
func (g *Gate) CheckSession() error {
	g.mu.Lock()
	now := g.now()
	if now.Sub(g.session.LastActivityAt) <= g.limits.SessionTimeout {
		g.session.LastActivityAt = now
		g.mu.Unlock()
		return nil
	}

	oldID := g.session.ID
	g.session = SessionState{ID: NewSessionID(now), LastActivityAt: now}
	newID := g.session.ID
	hook := g.onExpire
	g.mu.Unlock()

	g.logger.Info("session event", "event", "SESSION_EXPIRED", "session", oldID, "replacement", newID)
	if hook != nil {
		hook(oldID, newID)
	}
	return ErrSessionExpired
}

// Session returns a copy of the current session state.
func (g *Gate) Session() SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// SessionID returns the current session id.
func (g *Gate) SessionID() string {
	return g.Session().ID
}

// RotateSession starts a new session without firing the expiry hook.
func (g *Gate) RotateSession() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	old := g.session.ID
	g.session = SessionState{ID: NewSessionID(now), LastActivityAt: now}
	g.logger.Info("session event", "event", "SESSION_ROTATED", "session", old, "replacement", g.session.ID)
	return g.session.ID
}

// Reset clears the rate window.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window.Reset()
}
