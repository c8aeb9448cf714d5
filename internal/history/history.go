// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history seeds the conversation with turns the server persisted
// for a known visitor.
//
// Loading never fails from the caller's point of view: any error means "no
// history" and is only logged. History calls do not pass through the rate
// limiter.
package history

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/apiclient"
	"github.com/Frankambaa/TaskMaster/internal/logging"
	"github.com/Frankambaa/TaskMaster/internal/model"
	"github.com/Frankambaa/TaskMaster/internal/security"
)

// DefaultLimit is the number of persisted turns requested.
const DefaultLimit = 10

// Fetcher retrieves persisted turns.
type Fetcher interface {
	History(ctx context.Context, req apiclient.HistoryRequest) (*apiclient.HistoryResponse, error)
}

// Sync loads server history into a conversation at most once per
// conversation lifetime.
type Sync struct {
	fetcher  Fetcher
	store    *model.Conversation
	identity apiclient.Identity
	limit    int
	logger   *slog.Logger

	mu     sync.Mutex
	loaded bool
}

// New creates a Sync. limit <= 0 selects DefaultLimit.
func New(fetcher Fetcher, store *model.Conversation, identity apiclient.Identity, limit int, logger *slog.Logger) *Sync {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Sync{
		fetcher:  fetcher,
		store:    store,
		identity: identity,
		limit:    limit,
		logger:   logging.OrDiscard(logger).With("component", "history"),
	}
}

// CheckForHistory loads history with the configured limit and reports
// whether anything was added.
func (s *Sync) CheckForHistory(ctx context.Context) bool {
	return len(s.LoadHistory(ctx, s.limit)) > 0
}

// LoadHistory fetches up to limit turns and prepends them to the store in
// server order. It returns the messages added, or nil when there is no
// identity, nothing stored, history was already loaded, or the call failed.
func (s *Sync) LoadHistory(ctx context.Context, limit int) []model.Message {
	if !s.identity.Known() {
		return nil
	}
	if limit <= 0 {
		limit = s.limit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	resp, err := s.fetcher.History(ctx, apiclient.HistoryRequest{Identity: s.identity, Limit: limit})
	if err != nil {
		s.logger.Warn("history load failed", "error", err)
		return nil
	}

	msgs := ToMessages(resp.History, "")
	if len(msgs) == 0 {
		s.logger.Debug("no history")
		return nil
	}

	s.store.PrependHistory(msgs)
	s.loaded = true
	s.logger.Info("history loaded", "messages", len(msgs))
	return msgs
}

// Loaded reports whether history has been inserted.
func (s *Sync) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Reset allows history to be loaded again, after the conversation is
// cleared.
func (s *Sync) Reset() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// ToMessages converts persisted turns to messages, keeping their order.
// Empty turns are skipped; script blocks are stripped from every turn.
func ToMessages(entries []apiclient.HistoryEntry, sessionID string) []model.Message {
	out := make([]model.Message, 0, len(entries))
	for _, e := range entries {
		text := security.Sanitize(e.Content, false)
		if text == "" {
			continue
		}
		sender := model.SenderBot
		if strings.EqualFold(e.Role, "user") {
			sender = model.SenderUser
		}
		msg := model.NewMessage(sender, text, sessionID)
		msg.Historical = true
		if ts, ok := parseTimestamp(e.Timestamp); ok {
			msg.Timestamp = ts
		}
		out = append(out, msg)
	}
	return out
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
