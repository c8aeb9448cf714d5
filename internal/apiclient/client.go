// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apiclient talks to the remote answer API: turns, persisted
// history, feedback and session housekeeping.
//
// Every call is bounded by the configured timeout and never retried; the
// caller decides what a failure means for the conversation.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/logging"
)

const (
	// DefaultTimeout bounds each call when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum accepted response body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// DefaultUserAgent identifies the terminal host.
	DefaultUserAgent = "TaskMaster-Widget/1.0"
)

// Endpoint paths relative to the API base URL.
const (
	PathAsk          = "/ask"
	PathHistory      = "/widget_history"
	PathFeedback     = "/feedback"
	PathSessionInfo  = "/session_info"
	PathClearSession = "/clear_session"
)

var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	},
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTimeout is wrapped by a NetworkError when a call exceeds its
	// timeout.
	ErrTimeout = errors.New("request timeout")

	// ErrInvalidResponse is wrapped when the body is not the expected JSON.
	ErrInvalidResponse = errors.New("invalid response format")
)

// NetworkError is a failed call: transport failure, timeout, non-2xx status
// or an unusable body.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a call that timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configure a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	Origin    string
	Referrer  string
	UserAgent string
	Timeout   time.Duration
	// HTTPClient overrides the shared pooled client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the answer API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	origin    string
	referrer  string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	logger    *slog.Logger
}

// New creates a client. BaseURL must be an absolute http(s) URL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", opts.BaseURL)
	}

	c := &Client{
		baseURL:   strings.TrimSuffix(u.String(), "/"),
		apiKey:    strings.TrimSpace(opts.APIKey),
		origin:    opts.Origin,
		referrer:  opts.Referrer,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		logger:    logging.OrDiscard(opts.Logger).With("component", "apiclient"),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = sharedHTTPClient
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	return c, nil
}

// FromConfig builds a client from the widget configuration.
func FromConfig(cfg *config.WidgetConfig, logger *slog.Logger) (*Client, error) {
	return New(Options{
		BaseURL:   cfg.API.URL,
		APIKey:    cfg.API.Key,
		Origin:    originOf(cfg),
		Referrer:  cfg.Host.PageURL,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.RequestTimeout(),
		Logger:    logger,
	})
}

func originOf(cfg *config.WidgetConfig) string {
	if cfg.Host.PageURL != "" {
		if u, err := url.Parse(cfg.Host.PageURL); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	if cfg.Host.Host != "" {
		return "https://" + cfg.Host.Host
	}
	return ""
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ask sends one turn.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	var resp AskResponse
	if err := c.do(ctx, "ask", http.MethodPost, PathAsk, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History fetches persisted turns for the identity in req.
func (c *Client) History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.do(ctx, "history", http.MethodPost, PathHistory, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitFeedback records a rating.
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResponse, error) {
	var resp FeedbackResponse
	if err := c.do(ctx, "feedback", http.MethodPost, PathFeedback, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionInfo fetches the session summary. Anonymous visitors use GET.
func (c *Client) SessionInfo(ctx context.Context, id Identity) (*SessionInfo, error) {
	var resp SessionInfo
	var err error
	if id.Known() {
		err = c.do(ctx, "session info", http.MethodPost, PathSessionInfo, id, &resp)
	} else {
		err = c.do(ctx, "session info", http.MethodGet, PathSessionInfo, nil, &resp)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearSession asks the server to drop the visitor's session.
func (c *Client) ClearSession(ctx context.Context, id Identity) (*ClearResponse, error) {
	var resp ClearResponse
	if err := c.do(ctx, "clear session", http.MethodPost, PathClearSession, id, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Widget-User-Agent", c.userAgent)
	if c.origin != "" {
		req.Header.Set("X-Widget-Origin", c.origin)
	}
	if c.referrer != "" {
		req.Header.Set("X-Widget-Referrer", c.referrer)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// do performs one bounded call. in is encoded as the JSON body when non-nil;
// the JSON response is decoded into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	c.setHeaders(req, in != nil)

	start := time.Now()
	resp, err := c.http.Do(req)
	// SECURITY: drop the credential before anything can log the request.
	req.Header.Del("Authorization")
	if err != nil {
		return c.transportError(ctx, callCtx, op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		if callCtx.Err() != nil {
			return c.transportError(ctx, callCtx, op, err)
		}
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: errorMessage(data)}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: ErrInvalidResponse}
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}
	return nil
}

// transportError classifies a failed round trip. Expiry of the call's own
// deadline is a timeout; cancellation by the caller is passed through.
func (c *Client) transportError(parent, call context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		c.logger.Warn("API_TIMEOUT", "op", op, "timeout", c.timeout)
		return &NetworkError{Op: op, Err: ErrTimeout}
	}
	return &NetworkError{Op: op, Err: err}
}

// readResponse reads the body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} from an error body.
func errorMessage(body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return errors.New("request failed")
}
