// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/model"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func at(msg model.Message, ts time.Time) model.Message {
	msg.Timestamp = ts
	return msg
}

func TestRecordAndMessages(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	user := at(model.NewUserMessage("What are your hours?\nThanks", "s1"), base)
	bot := at(model.NewBotMessage("9 to 5", "s1", model.ResponseKnowledgeBase), base.Add(time.Second))
	oops := at(model.NewErrorMessage("Sorry, I encountered an error. Please try again.", "s1"), base.Add(2*time.Second))

	for _, m := range []model.Message{user, bot, oops, user} {
		require.NoError(t, a.Record(ctx, m))
	}

	msgs, err := a.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, model.ResponseKnowledgeBase, msgs[1].ResponseType)
	assert.True(t, msgs[2].IsError)
	assert.True(t, msgs[1].Timestamp.Equal(base.Add(time.Second)))

	sessions, err := a.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "What are your hours? Thanks", sessions[0].Summary)
	assert.Equal(t, 3, sessions[0].MessageCount)
}

func TestSessionsOrderAndLimit(t *testing.T) {
	a := openTestArchive(t)
	a.MaxSessions = 2
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, sid := range []string{"old", "mid", "new"} {
		require.NoError(t, a.Record(ctx, at(model.NewUserMessage("q "+sid, sid), base.Add(time.Duration(i)*time.Minute))))
	}

	sessions, err := a.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, "mid", sessions[1].ID)

	_, err = a.Messages(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	meta, err := a.SessionByIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "mid", meta.ID)
	_, err = a.SessionByIndex(ctx, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSearch(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.Record(ctx, model.NewUserMessage("Where do you ship?", "s1")))
	require.NoError(t, a.Record(ctx, model.NewBotMessage("Worldwide, 100% of orders.", "s1", "")))
	require.NoError(t, a.Record(ctx, model.NewUserMessage("Refund policy", "s2")))

	got, err := a.Search(ctx, "worldwide")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, 2, got[0].MessageCount)

	got, err = a.Search(ctx, "100%")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = a.Search(ctx, "_")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = a.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteAndClose(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	require.NoError(t, a.Record(ctx, model.NewUserMessage("hi", "s1")))

	require.NoError(t, a.Delete(ctx, "s1"))
	assert.ErrorIs(t, a.Delete(ctx, "s1"), ErrSessionNotFound)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Record(ctx, model.NewUserMessage("late", "s1")), ErrClosed)
}

func TestPathFrom(t *testing.T) {
	p, err := PathFrom(config.StorageConfig{TranscriptPath: "/tmp/x.db"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", p)

	p, err = PathFrom(config.StorageConfig{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, filepath.Join(".taskmaster", "transcripts.db")))
}
