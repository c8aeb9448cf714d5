// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/apiclient"
	"github.com/Frankambaa/TaskMaster/internal/model"
)

type fakeFetcher struct {
	resp  *apiclient.HistoryResponse
	err   error
	calls int
	last  apiclient.HistoryRequest
}

func (f *fakeFetcher) History(_ context.Context, req apiclient.HistoryRequest) (*apiclient.HistoryResponse, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func turns(pairs ...string) *apiclient.HistoryResponse {
	resp := &apiclient.HistoryResponse{}
	for i := 0; i+1 < len(pairs); i += 2 {
		resp.History = append(resp.History, apiclient.HistoryEntry{Role: pairs[i], Content: pairs[i+1]})
	}
	return resp
}

var knownVisitor = apiclient.Identity{UserID: "u-1"}

func TestLoadHistory_PrependsInServerOrder(t *testing.T) {
	store := model.NewConversation(50)
	store.Append(model.NewBotMessage("Hello! How can I help you today?", "s", ""))

	f := &fakeFetcher{resp: turns("user", "first", "assistant", "second", "user", "third")}
	s := New(f, store, knownVisitor, 10, nil)

	added := s.LoadHistory(context.Background(), 10)
	require.Len(t, added, 3)
	assert.Equal(t, 10, f.last.Limit)
	assert.Equal(t, "u-1", f.last.UserID)

	got := store.Replay()
	require.Len(t, got, 4)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, model.SenderUser, got[0].Sender)
	assert.Equal(t, "second", got[1].Text)
	assert.Equal(t, model.SenderBot, got[1].Sender)
	assert.Equal(t, "third", got[2].Text)
	assert.True(t, got[2].Historical)
	assert.Equal(t, "Hello! How can I help you today?", got[3].Text)
	assert.True(t, s.Loaded())
}

func TestLoadHistory_OnlyOnce(t *testing.T) {
	store := model.NewConversation(50)
	f := &fakeFetcher{resp: turns("user", "a", "assistant", "b")}
	s := New(f, store, knownVisitor, 10, nil)

	require.True(t, s.CheckForHistory(context.Background()))
	assert.False(t, s.CheckForHistory(context.Background()))
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, f.calls)

	store.Clear()
	s.Reset()
	require.True(t, s.CheckForHistory(context.Background()))
	assert.Equal(t, 2, store.Len())
}

func TestLoadHistory_SilentDegrade(t *testing.T) {
	tests := []struct {
		name     string
		identity apiclient.Identity
		fetcher  *fakeFetcher
		calls    int
	}{
		{"anonymous visitor", apiclient.Identity{Username: "only-a-name"}, &fakeFetcher{resp: turns("user", "x")}, 0},
		{"network error", knownVisitor, &fakeFetcher{err: &apiclient.NetworkError{Op: "history", Err: apiclient.ErrTimeout}}, 1},
		{"other error", knownVisitor, &fakeFetcher{err: errors.New("boom")}, 1},
		{"empty history", knownVisitor, &fakeFetcher{resp: &apiclient.HistoryResponse{}}, 1},
		{"blank turns", knownVisitor, &fakeFetcher{resp: turns("user", "   ", "assistant", "")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := model.NewConversation(50)
			s := New(tt.fetcher, store, tt.identity, 0, nil)

			assert.False(t, s.CheckForHistory(context.Background()))
			assert.Equal(t, 0, store.Len())
			assert.Equal(t, tt.calls, tt.fetcher.calls)
			assert.False(t, s.Loaded())
		})
	}
}

func TestLoadHistory_RespectsCap(t *testing.T) {
	store := model.NewConversation(3)
	store.Append(model.NewUserMessage("live", "s"))

	f := &fakeFetcher{resp: turns("user", "h1", "assistant", "h2", "user", "h3")}
	s := New(f, store, knownVisitor, 10, nil)
	s.CheckForHistory(context.Background())

	got := store.Replay()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"h2", "h3", "live"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestToMessages(t *testing.T) {
	msgs := ToMessages([]apiclient.HistoryEntry{
		{Role: "USER", Content: "hi", Timestamp: "2025-01-02T03:04:05Z"},
		{Role: "assistant", Content: "ok<script>alert(1)</script>"},
	}, "session_1")

	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, 2025, msgs[0].Timestamp.Year())
	assert.Equal(t, "ok", msgs[1].Text)
	assert.Equal(t, "session_1", msgs[1].SessionID)
}
