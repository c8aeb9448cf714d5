// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL:  srv.URL,
		APIKey:   "secret",
		Origin:   "https://shop.example.com",
		Referrer: "https://shop.example.com/help",
		Timeout:  time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "not a url", "https://"} {
		_, err := New(Options{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestAsk(t *testing.T) {
	var got AskRequest
	var headers http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathAsk, r.URL.Path)
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		writeJSON(w, http.StatusOK, map[string]any{
			"answer":        "9 to 5",
			"response_type": "RAG_KNOWLEDGE_BASE",
			"user_info":     map[string]any{"session_type": "persistent", "stats": map[string]any{"total_messages": 4}},
		})
	})

	resp, err := c.Ask(context.Background(), AskRequest{
		Question:  "What are your hours?",
		Identity:  Identity{UserID: "u1", Email: "a@b.c"},
		SessionID: "session_1",
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "9 to 5", resp.Answer)
	assert.Equal(t, "RAG_KNOWLEDGE_BASE", resp.ResponseType)
	assert.Equal(t, "Logged in • 4 messages", resp.UserInfo.Label())

	assert.Equal(t, "What are your hours?", got.Question)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "session_1", got.SessionID)

	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "https://shop.example.com", headers.Get("X-Widget-Origin"))
	assert.Equal(t, "https://shop.example.com/help", headers.Get("X-Widget-Referrer"))
	assert.Equal(t, DefaultUserAgent, headers.Get("X-Widget-User-Agent"))
}

func TestAsk_NoAPIKeyNoAuthorization(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"answer": "ok"})
	}, func(o *Options) { o.APIKey = "" })

	_, err := c.Ask(context.Background(), AskRequest{Question: "hi"})
	require.NoError(t, err)
}

func TestAsk_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(o *Options) { o.Timeout = 50 * time.Millisecond })
	defer close(release)

	_, err := c.Ask(context.Background(), AskRequest{Question: "slow"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var nerr *NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "ask", nerr.Op)
}

func TestAsk_CallerCancellationIsNotTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Ask(ctx, AskRequest{Question: "x"})
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsk_HTTPErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantIs     error
	}{
		{
			name: "server error with message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "boom"})
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "html body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = io.WriteString(w, "<html>maintenance</html>")
			},
			wantStatus: http.StatusOK,
			wantIs:     ErrInvalidResponse,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, "{not json")
			},
			wantStatus: http.StatusOK,
			wantIs:     ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Ask(context.Background(), AskRequest{Question: "x"})

			var nerr *NetworkError
			require.True(t, errors.As(err, &nerr), "got %v", err)
			assert.Equal(t, tt.wantStatus, nerr.Status)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.False(t, IsTimeout(err))
		})
	}
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathHistory, r.URL.Path)
		var req HistoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 10, req.Limit)
		assert.Equal(t, "dev-1", req.DeviceID)
		writeJSON(w, http.StatusOK, map[string]any{"history": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
		}})
	})

	resp, err := c.History(context.Background(), HistoryRequest{Identity: Identity{DeviceID: "dev-1"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "assistant", resp.History[1].Role)
}

func TestSubmitFeedback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathFeedback, r.URL.Path)
		var req FeedbackRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, FeedbackUp, req.FeedbackType)
		assert.Equal(t, "What are your hours?", req.UserQuestion)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	})

	resp, err := c.SubmitFeedback(context.Background(), FeedbackRequest{
		UserQuestion: "What are your hours?",
		BotResponse:  "9 to 5",
		FeedbackType: FeedbackUp,
		SessionID:    "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
}

func TestSessionInfo_MethodDependsOnIdentity(t *testing.T) {
	var methods []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{"session_type": "temporary"})
	})

	info, err := c.SessionInfo(context.Background(), Identity{})
	require.NoError(t, err)
	assert.Equal(t, "Guest • 0 messages", info.Label())

	_, err = c.SessionInfo(context.Background(), Identity{Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodGet, http.MethodPost}, methods)
}

func TestClearSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathClearSession, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	resp, err := c.ClearSession(context.Background(), Identity{UserID: "u"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestVoiceDataClip(t *testing.T) {
	v := &VoiceData{Success: true, AudioBase64: "UklGRg==", SampleRate: 24000, Duration: 1.5, Format: "wav"}
	clip, err := v.Clip()
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), clip.Data)
	assert.Equal(t, 1500*time.Millisecond, clip.Duration)

	clip, err = (&VoiceData{Success: true, AudioURL: "https://cdn.example.com/a/reply.MP3"}).Clip()
	require.NoError(t, err)
	assert.Equal(t, "mp3", clip.Format)

	_, err = (&VoiceData{Success: false, AudioURL: "x"}).Clip()
	assert.Error(t, err)
	_, err = (*VoiceData)(nil).Clip()
	assert.Error(t, err)
	_, err = (&VoiceData{Success: true, AudioBase64: "%%%"}).Clip()
	assert.Error(t, err)
}

func TestSessionInfoLabel(t *testing.T) {
	var nilInfo *SessionInfo
	assert.Equal(t, "Guest • 0 messages", nilInfo.Label())
	assert.Equal(t, "Guest • 3 messages", (&SessionInfo{SessionType: "temporary", Stats: &SessionStats{TotalMessages: 3}}).Label())
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.API.URL = "https://api.example.com/"
	cfg.Host.PageURL = "https://shop.example.com/help?x=1"

	c, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.BaseURL())
	assert.Equal(t, "https://shop.example.com", c.origin)
	assert.Equal(t, cfg.RequestTimeout(), c.timeout)
}
