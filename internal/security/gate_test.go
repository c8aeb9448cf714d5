// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(clock *fakeClock, opts ...Option) *Gate {
	return NewGate(Limits{
		MaxMessageLength: 2000,
		RateLimitMax:     10,
		RateLimitWindow:  60 * time.Second,
		SessionTimeout:   30 * time.Minute,
	}, append([]Option{WithClock(clock.Now)}, opts...)...)
}

// =============================================================================
// RATE LIMIT
// =============================================================================

func TestCheckRateLimit_EleventhRejected(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	g := newTestGate(clock)

	for i := 0; i < 10; i++ {
		require.NoError(t, g.CheckRateLimit(), "request %d", i+1)
		clock.Advance(time.Second)
	}

	err := g.CheckRateLimit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.False(t, rle.Blocked)
	assert.True(t, g.Blocked())

	// Blocked for one full window even though older entries age out.
	clock.Advance(30 * time.Second)
	err = g.CheckRateLimit()
	require.True(t, errors.As(err, &rle))
	assert.True(t, rle.Blocked)

	clock.Advance(31 * time.Second)
	assert.False(t, g.Blocked())
	assert.NoError(t, g.CheckRateLimit())
}

func TestCheckRateLimit_WindowEdgeStaysInside(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	g := NewGate(Limits{RateLimitMax: 1, RateLimitWindow: 10 * time.Second}, WithClock(clock.Now))

	require.NoError(t, g.CheckRateLimit())
	clock.Advance(10 * time.Second)
	assert.Error(t, g.CheckRateLimit(), "entry exactly one window old must still count")
}

func TestCheckRateLimit_SlidesAfterWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	g := NewGate(Limits{RateLimitMax: 2, RateLimitWindow: 10 * time.Second}, WithClock(clock.Now))

	require.NoError(t, g.CheckRateLimit())
	require.NoError(t, g.CheckRateLimit())
	assert.Equal(t, 2, g.RequestCount())

	clock.Advance(11 * time.Second)
	assert.Equal(t, 0, g.RequestCount())
	assert.NoError(t, g.CheckRateLimit())
}

// =============================================================================
// SESSION
// =============================================================================

func TestCheckSession_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var expired []string
	g := newTestGate(clock, WithExpiryHook(func(oldID, newID string) {
		expired = append(expired, oldID, newID)
	}))

	first := g.SessionID()
	assert.True(t, strings.HasPrefix(first, "session_"))

	clock.Advance(29 * time.Minute)
	require.NoError(t, g.CheckSession())

	// Activity was refreshed, so another 29 minutes is still fine.
	clock.Advance(29 * time.Minute)
	require.NoError(t, g.CheckSession())

	clock.Advance(31 * time.Minute)
	err := g.CheckSession()
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.Len(t, expired, 2)
	assert.Equal(t, first, expired[0])
	assert.Equal(t, g.SessionID(), expired[1])
	assert.NotEqual(t, first, g.SessionID())

	// The replacement session is live.
	assert.NoError(t, g.CheckSession())
}

func TestRotateSession(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	hookCalled := false
	g := newTestGate(clock, WithExpiryHook(func(string, string) { hookCalled = true }))

	before := g.SessionID()
	after := g.RotateSession()
	assert.NotEqual(t, before, after)
	assert.Equal(t, after, g.SessionID())
	assert.False(t, hookCalled)
}

// =============================================================================
// MESSAGE VALIDATION
// =============================================================================

func TestValidateMessage(t *testing.T) {
	g := newTestGate(&fakeClock{t: time.Now()})

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "What are your hours?", "What are your hours?", false},
		{"trimmed", "  hello  ", "hello", false},
		{"empty", "", "", true},
		{"blank", "   \n\t ", "", true},
		{"script stripped", "hi <script>alert(1)</script>there", "hi there", false},
		{"only script", "<script>alert(1)</script>", "", true},
		{"at limit", strings.Repeat("a", 2000), strings.Repeat("a", 2000), false},
		{"over limit", strings.Repeat("a", 2001), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.ValidateMessage(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateMessage_TooLongReportsLength(t *testing.T) {
	g := newTestGate(&fakeClock{t: time.Now()})
	_, err := g.ValidateMessage(strings.Repeat("é", 2001))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 2001, ve.Length)
	assert.Equal(t, 2000, ve.Max)
}

// =============================================================================
// CONFIG VALIDATION
// =============================================================================

func TestValidateConfig(t *testing.T) {
	base := func() *config.WidgetConfig {
		cfg := config.Default()
		cfg.API.URL = "https://bot.example.com/api"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.WidgetConfig)
		field  string
	}{
		{"ok", func(*config.WidgetConfig) {}, ""},
		{"missing endpoint", func(c *config.WidgetConfig) { c.API.URL = "" }, "api.url"},
		{"bad scheme", func(c *config.WidgetConfig) { c.API.URL = "javascript:alert(1)" }, "api.url"},
		{"no host", func(c *config.WidgetConfig) { c.API.URL = "https://" }, "api.url"},
		{"credentials", func(c *config.WidgetConfig) { c.API.URL = "https://u:p@bot.example.com" }, "api.url"},
		{"host not allowed", func(c *config.WidgetConfig) {
			c.Host.AllowedDomains = []string{"shop.example.com"}
			c.Host.Host = "evil.example.net"
		}, "host.allowed_domains"},
		{"host allowed", func(c *config.WidgetConfig) {
			c.Host.AllowedDomains = []string{"shop.example.com"}
			c.Host.Host = "SHOP.example.com"
		}, ""},
		{"wildcard", func(c *config.WidgetConfig) {
			c.Host.AllowedDomains = []string{"*.example.com"}
			c.Host.Host = "help.example.com"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			_, err := ValidateConfig(cfg, 100)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "want ConfigError, got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValidateConfig_SanitizesIdentity(t *testing.T) {
	cfg := config.Default()
	cfg.API.URL = "http://localhost:5000"
	cfg.Identity.Username = `<b>Ada</b> "Lovelace"`
	cfg.Identity.Email = "ada@example.com"
	cfg.Identity.UserID = strings.Repeat("x", 150)

	g := newTestGate(&fakeClock{t: time.Now()})
	out, err := g.ValidateConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "bAdab Lovelace", out.Identity.Username)
	assert.Equal(t, "ada@example.com", out.Identity.Email)
	assert.Len(t, out.Identity.UserID, 100)
	// The input is left untouched.
	assert.Equal(t, `<b>Ada</b> "Lovelace"`, cfg.Identity.Username)
}
