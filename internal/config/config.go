// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Frankambaa/TaskMaster/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// WidgetConfig is the complete widget configuration. Treat a loaded value as
// immutable: updates go through Apply, which returns a new snapshot.
type WidgetConfig struct {
	API      APIConfig      `toml:"api"`
	Identity IdentityConfig `toml:"identity"`
	Host     HostConfig     `toml:"host"`
	Display  DisplayConfig  `toml:"display"`
	Voice    VoiceConfig    `toml:"voice"`
	Security SecurityConfig `toml:"security"`
	Feedback FeedbackConfig `toml:"feedback"`
	Logging  LogConfig      `toml:"logging"`
	Storage  StorageConfig  `toml:"storage"`
}

// APIConfig describes the remote answer API.
type APIConfig struct {
	// URL is the base endpoint; /ask, /widget_history, etc. are appended.
	URL string `toml:"url"`
	// Key is sent as a bearer token when set.
	Key string `toml:"key"`
	// RequestTimeoutSecs bounds every outbound call.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// UserAgent is reported in X-Widget-User-Agent.
	UserAgent string `toml:"user_agent"`
}

// IdentityConfig holds the optional end-user identity. History is only
// fetched when at least one of UserID, Email or DeviceID is set.
type IdentityConfig struct {
	UserID   string `toml:"user_id"`
	Username string `toml:"username"`
	Email    string `toml:"email"`
	DeviceID string `toml:"device_id"`
}

// HostConfig describes the page (or terminal) the widget is embedded in.
type HostConfig struct {
	// Host is the embedding host name checked against AllowedDomains.
	Host string `toml:"host"`
	// PageURL is reported in X-Widget-Origin / X-Widget-Referrer.
	PageURL string `toml:"page_url"`
	// AllowedDomains restricts where the widget may run. Empty allows all.
	AllowedDomains []string `toml:"allowed_domains"`
}

// DisplayConfig holds presentation options.
type DisplayConfig struct {
	Title                  string `toml:"title"`
	WelcomeMessage         string `toml:"welcome_message"`
	Theme                  string `toml:"theme"`    // "light", "dark" or "auto"
	Position               string `toml:"position"` // "bottom-right" or "bottom-left"
	PersistentHistoryCount int    `toml:"persistent_history_count"`
	AutoScroll             bool   `toml:"auto_scroll"`
	SmoothScrolling        bool   `toml:"smooth_scrolling"`
	TypingDelayMS          int    `toml:"typing_delay_ms"`
	StartOpen              bool   `toml:"start_open"`
}

// VoiceConfig holds speech capture and playback options.
type VoiceConfig struct {
	Enabled    bool   `toml:"enabled"`
	Name       string `toml:"name"`
	Continuous bool   `toml:"continuous"`
	// SettleDelayMS is the pause after playback before capture resumes.
	SettleDelayMS int `toml:"settle_delay_ms"`
	// ExternalAgent selects ExternalSettleDelayMS, for third-party voice
	// agents whose audio tail lasts longer.
	ExternalAgent         bool     `toml:"external_agent"`
	ExternalSettleDelayMS int      `toml:"external_settle_delay_ms"`
	RetryDelayMS          int      `toml:"retry_delay_ms"`
	MaxRestartsPerMinute  int      `toml:"max_restarts_per_minute"`
	StopPhrases           []string `toml:"stop_phrases"`
	// BridgeAddr is the listen address of the WebSocket audio bridge.
	BridgeAddr string `toml:"bridge_addr"`
	BridgePath string `toml:"bridge_path"`
}

// SecurityConfig holds the request gate limits.
type SecurityConfig struct {
	MaxMessageLength       int `toml:"max_message_length"`
	MaxConversationHistory int `toml:"max_conversation_history"`
	RateLimitWindowSecs    int `toml:"rate_limit_window_secs"`
	RateLimitMaxRequests   int `toml:"rate_limit_max_requests"`
	SessionTimeoutMins     int `toml:"session_timeout_mins"`
	// InputFieldCap truncates sanitized identity/user fields.
	InputFieldCap int `toml:"input_field_cap"`
}

// FeedbackConfig controls the feedback affordance.
type FeedbackConfig struct {
	Enabled bool `toml:"enabled"`
	// Interval offers feedback on the first qualifying answer and then on
	// every Interval-th one.
	Interval int `toml:"interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level     string `toml:"level"`  // debug, info, warn, error
	Format    string `toml:"format"` // text, json
	Output    string `toml:"output"` // stderr, stdout, file
	FilePath  string `toml:"file_path"`
	AddSource bool   `toml:"add_source"`
}

// StorageConfig configures the local transcript archive.
type StorageConfig struct {
	Enabled        bool   `toml:"enabled"`
	TranscriptPath string `toml:"transcript_path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default stop phrases that end a continuous voice session.
var DefaultStopPhrases = []string{
	"stop",
	"pause",
	"stop listening",
	"end conversation",
	"end chat",
	"goodbye",
}

// Default returns a configuration with built-in defaults.
func Default() *WidgetConfig {
	return &WidgetConfig{
		API: APIConfig{
			RequestTimeoutSecs: 30,
			UserAgent:          "TaskMaster-Widget/1.0",
		},
		Display: DisplayConfig{
			Title:                  "Chat Support",
			WelcomeMessage:         "Hello! How can I help you today?",
			Theme:                  "auto",
			Position:               "bottom-right",
			PersistentHistoryCount: 10,
			AutoScroll:             true,
			SmoothScrolling:        true,
			TypingDelayMS:          25,
		},
		Voice: VoiceConfig{
			Name:                  "af_heart",
			Continuous:            true,
			SettleDelayMS:         1000,
			ExternalSettleDelayMS: 3000,
			RetryDelayMS:          500,
			MaxRestartsPerMinute:  20,
			StopPhrases:           append([]string(nil), DefaultStopPhrases...),
			BridgeAddr:            "127.0.0.1:8787",
			BridgePath:            "/voice",
		},
		Security: SecurityConfig{
			MaxMessageLength:       2000,
			MaxConversationHistory: 50,
			RateLimitWindowSecs:    60,
			RateLimitMaxRequests:   10,
			SessionTimeoutMins:     30,
			InputFieldCap:          100,
		},
		Feedback: FeedbackConfig{
			Enabled:  true,
			Interval: 1,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Storage: StorageConfig{
			Enabled: true,
		},
	}
}

// =============================================================================
// DURATION ACCESSORS
// =============================================================================

// RequestTimeout returns the outbound call timeout.
func (c *WidgetConfig) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSecs) * time.Second
}

// TypingDelay returns the per-character reveal delay.
func (c *WidgetConfig) TypingDelay() time.Duration {
	return time.Duration(c.Display.TypingDelayMS) * time.Millisecond
}

// SettleDelay returns the delay before capture resumes after playback.
func (c *WidgetConfig) SettleDelay() time.Duration {
	if c.Voice.ExternalAgent {
		return time.Duration(c.Voice.ExternalSettleDelayMS) * time.Millisecond
	}
	return time.Duration(c.Voice.SettleDelayMS) * time.Millisecond
}

// RetryDelay returns the delay before a failed capture is restarted.
func (c *WidgetConfig) RetryDelay() time.Duration {
	return time.Duration(c.Voice.RetryDelayMS) * time.Millisecond
}

// RateLimitWindow returns the sliding window length.
func (c *WidgetConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.Security.RateLimitWindowSecs) * time.Second
}

// SessionTimeout returns the idle time after which a session expires.
func (c *WidgetConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Security.SessionTimeoutMins) * time.Minute
}

// HasIdentity reports whether any identity field usable for history lookup
// is configured.
func (c *WidgetConfig) HasIdentity() bool {
	return c.Identity.UserID != "" || c.Identity.Email != "" || c.Identity.DeviceID != ""
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the TaskMaster configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".taskmaster"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file at path (the default path when empty), applies
// .env and environment overrides, fills defaults and validates. A missing
// file is not an error.
func Load(path string) (*WidgetConfig, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	LoadDotEnv()
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the TOML file at path into cfg.
func LoadTOML(cfg *WidgetConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files from the working directory and the config
// directory. Variables already set in the environment win.
func LoadDotEnv() {
	candidates := []string{".env"}
	if dir, err := ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Save writes cfg as TOML to path with owner-only permissions.
func Save(cfg *WidgetConfig, path string) error {
	var buf strings.Builder
	buf.WriteString("# TaskMaster widget configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// SECURITY: the file may hold an API key.
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fillDefaults replaces zero values that would disable the widget.
func (c *WidgetConfig) fillDefaults() {
	d := Default()
	if c.API.RequestTimeoutSecs <= 0 {
		c.API.RequestTimeoutSecs = d.API.RequestTimeoutSecs
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = d.API.UserAgent
	}
	if c.Display.Title == "" {
		c.Display.Title = d.Display.Title
	}
	if c.Display.Theme == "" {
		c.Display.Theme = d.Display.Theme
	}
	if c.Display.Position == "" {
		c.Display.Position = d.Display.Position
	}
	if c.Display.PersistentHistoryCount <= 0 {
		c.Display.PersistentHistoryCount = d.Display.PersistentHistoryCount
	}
	if c.Display.TypingDelayMS < 0 {
		c.Display.TypingDelayMS = 0
	}
	if c.Voice.Name == "" {
		c.Voice.Name = d.Voice.Name
	}
	if c.Voice.SettleDelayMS <= 0 {
		c.Voice.SettleDelayMS = d.Voice.SettleDelayMS
	}
	if c.Voice.ExternalSettleDelayMS <= 0 {
		c.Voice.ExternalSettleDelayMS = d.Voice.ExternalSettleDelayMS
	}
	if c.Voice.RetryDelayMS <= 0 {
		c.Voice.RetryDelayMS = d.Voice.RetryDelayMS
	}
	if c.Voice.MaxRestartsPerMinute <= 0 {
		c.Voice.MaxRestartsPerMinute = d.Voice.MaxRestartsPerMinute
	}
	if len(c.Voice.StopPhrases) == 0 {
		c.Voice.StopPhrases = d.Voice.StopPhrases
	}
	if c.Voice.BridgeAddr == "" {
		c.Voice.BridgeAddr = d.Voice.BridgeAddr
	}
	if c.Voice.BridgePath == "" {
		c.Voice.BridgePath = d.Voice.BridgePath
	}
	if c.Security.MaxMessageLength <= 0 {
		c.Security.MaxMessageLength = d.Security.MaxMessageLength
	}
	if c.Security.MaxConversationHistory <= 0 {
		c.Security.MaxConversationHistory = d.Security.MaxConversationHistory
	}
	if c.Security.RateLimitWindowSecs <= 0 {
		c.Security.RateLimitWindowSecs = d.Security.RateLimitWindowSecs
	}
	if c.Security.RateLimitMaxRequests <= 0 {
		c.Security.RateLimitMaxRequests = d.Security.RateLimitMaxRequests
	}
	if c.Security.SessionTimeoutMins <= 0 {
		c.Security.SessionTimeoutMins = d.Security.SessionTimeoutMins
	}
	if c.Security.InputFieldCap <= 0 {
		c.Security.InputFieldCap = d.Security.InputFieldCap
	}
	if c.Feedback.Interval <= 0 {
		c.Feedback.Interval = d.Feedback.Interval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = d.Logging.Output
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks structural constraints. The endpoint itself is checked by
// the security gate at init; here only its shape is checked when present.
func (c *WidgetConfig) Validate() error {
	var errs ValidateErrors

	if c.API.URL != "" {
		u, err := url.Parse(c.API.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{"api.url", "must be an http(s) URL"})
		}
	}

	switch c.Display.Theme {
	case "light", "dark", "auto":
	default:
		errs = append(errs, ValidationError{"display.theme", "must be light, dark or auto"})
	}
	switch c.Display.Position {
	case "bottom-right", "bottom-left":
	default:
		errs = append(errs, ValidationError{"display.position", "must be bottom-right or bottom-left"})
	}

	if c.Security.RateLimitMaxRequests > 1000 {
		errs = append(errs, ValidationError{"security.rate_limit_max_requests", "must be at most 1000"})
	}
	if c.Security.MaxConversationHistory > 10000 {
		errs = append(errs, ValidationError{"security.max_conversation_history", "must be at most 10000"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", "must be debug, info, warn or error"})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{"logging.format", "must be text or json"})
	}
	switch c.Logging.Output {
	case "stderr", "stdout":
	case "file":
		if c.Logging.FilePath == "" {
			errs = append(errs, ValidationError{"logging.file_path", "required when output is file"})
		}
	default:
		errs = append(errs, ValidationError{"logging.output", "must be stderr, stdout or file"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies TASKMASTER_* environment variables:
//   - TASKMASTER_API_URL, TASKMASTER_API_KEY
//   - TASKMASTER_USER_ID, TASKMASTER_USERNAME, TASKMASTER_EMAIL, TASKMASTER_DEVICE_ID
//   - TASKMASTER_VOICE (1/true enables voice), TASKMASTER_VOICE_NAME
//   - TASKMASTER_TYPING_DELAY_MS
//   - TASKMASTER_LOG_LEVEL
func (c *WidgetConfig) ApplyEnvOverrides() {
	if v := os.Getenv("TASKMASTER_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("TASKMASTER_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("TASKMASTER_USER_ID"); v != "" {
		c.Identity.UserID = v
	}
	if v := os.Getenv("TASKMASTER_USERNAME"); v != "" {
		c.Identity.Username = v
	}
	if v := os.Getenv("TASKMASTER_EMAIL"); v != "" {
		c.Identity.Email = v
	}
	if v := os.Getenv("TASKMASTER_DEVICE_ID"); v != "" {
		c.Identity.DeviceID = v
	}
	if v := os.Getenv("TASKMASTER_VOICE"); v != "" {
		c.Voice.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TASKMASTER_VOICE_NAME"); v != "" {
		c.Voice.Name = v
	}
	if v := os.Getenv("TASKMASTER_TYPING_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			c.Display.TypingDelayMS = ms
		}
	}
	if v := os.Getenv("TASKMASTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Clone returns a deep copy.
func (c *WidgetConfig) Clone() *WidgetConfig {
	cp := *c
	cp.Host.AllowedDomains = append([]string(nil), c.Host.AllowedDomains...)
	cp.Voice.StopPhrases = append([]string(nil), c.Voice.StopPhrases...)
	return &cp
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *WidgetConfig
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading the default file
// on first access.
func Global() *WidgetConfig {
	globalConfigOnce.Do(func() {
		cfg, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *WidgetConfig) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
