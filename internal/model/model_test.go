// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSender_DisplayName(t *testing.T) {
	if SenderUser.DisplayName() != "You" {
		t.Errorf("unexpected user display name %q", SenderUser.DisplayName())
	}
	if SenderBot.DisplayName() != "Assistant" {
		t.Errorf("unexpected bot display name %q", SenderBot.DisplayName())
	}
}

func TestNewMessage_Constructors(t *testing.T) {
	u := NewUserMessage("hi", "session_1")
	if !u.IsUser() || u.SessionID != "session_1" || u.ID == "" {
		t.Errorf("bad user message: %+v", u)
	}

	b := NewBotMessage("hello", "session_1", ResponseKnowledgeBase)
	if b.IsUser() || b.ResponseType != ResponseKnowledgeBase {
		t.Errorf("bad bot message: %+v", b)
	}

	e := NewErrorMessage("oops", "session_1")
	if !e.IsError || e.Sender != SenderBot {
		t.Errorf("bad error message: %+v", e)
	}

	if u.ID == b.ID {
		t.Error("message IDs should be unique")
	}
}

func TestMessage_Preview(t *testing.T) {
	m := Message{Text: "What are your opening hours?"}
	if got := m.Preview(10); got != "What ar..." {
		t.Errorf("Preview(10) = %q", got)
	}
	if got := m.Preview(100); got != m.Text {
		t.Errorf("Preview(100) = %q", got)
	}
}

// The store keeps min(K, C) messages and they are the most recent ones.
func TestConversation_Cap(t *testing.T) {
	tests := []struct {
		appends  int
		capacity int
	}{
		{0, 5},
		{3, 5},
		{5, 5},
		{6, 5},
		{120, 50},
		{1000, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("K=%d_C=%d", tt.appends, tt.capacity), func(t *testing.T) {
			c := NewConversation(tt.capacity)
			for i := 0; i < tt.appends; i++ {
				c.Append(Message{ID: fmt.Sprint(i), Text: fmt.Sprint(i)})
			}

			want := tt.appends
			if want > tt.capacity {
				want = tt.capacity
			}
			msgs := c.Replay()
			if len(msgs) != want {
				t.Fatalf("Len = %d, want %d", len(msgs), want)
			}
			for i, m := range msgs {
				expected := fmt.Sprint(tt.appends - want + i)
				if m.ID != expected {
					t.Errorf("msgs[%d].ID = %s, want %s", i, m.ID, expected)
				}
			}
			if c.Evicted() != tt.appends-want {
				t.Errorf("Evicted = %d, want %d", c.Evicted(), tt.appends-want)
			}
		})
	}
}

func TestConversation_DefaultCapacity(t *testing.T) {
	if NewConversation(0).Capacity() != DefaultCapacity {
		t.Error("zero capacity should fall back to the default")
	}
}

func TestConversation_PrependHistory(t *testing.T) {
	c := NewConversation(10)
	c.Append(Message{ID: "live-1"})
	c.Append(Message{ID: "live-2"})

	c.PrependHistory([]Message{{ID: "h1"}, {ID: "h2"}, {ID: "h3"}})

	var got []string
	for _, m := range c.Replay() {
		got = append(got, m.ID)
	}
	want := []string{"h1", "h2", "h3", "live-1", "live-2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestConversation_PrependHistoryRespectsCap(t *testing.T) {
	c := NewConversation(3)
	c.Append(Message{ID: "live"})
	c.PrependHistory([]Message{{ID: "h1"}, {ID: "h2"}, {ID: "h3"}})

	msgs := c.Replay()
	if len(msgs) != 3 {
		t.Fatalf("Len = %d, want 3", len(msgs))
	}
	if msgs[0].ID != "h2" || msgs[2].ID != "live" {
		t.Errorf("unexpected order: %v", msgs)
	}
}

func TestConversation_ReplayIsCopyAndKeepsTimestamps(t *testing.T) {
	c := NewConversation(5)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.Append(Message{ID: "a", Timestamp: ts})

	out := c.Replay()
	out[0].ID = "mutated"

	if m, _ := c.ByID("a"); !m.Timestamp.Equal(ts) {
		t.Errorf("timestamp changed: %v", m.Timestamp)
	}
	if _, ok := c.ByID("mutated"); ok {
		t.Error("Replay should return a copy")
	}
}

func TestConversation_LastAndPrecedingUser(t *testing.T) {
	c := NewConversation(10)
	c.Append(Message{ID: "u1", Sender: SenderUser, Text: "hours?"})
	c.Append(Message{ID: "b1", Sender: SenderBot, Text: "9 to 5"})

	if m, ok := c.Last(SenderBot); !ok || m.ID != "b1" {
		t.Errorf("Last(bot) = %+v, %v", m, ok)
	}
	if m, ok := c.PrecedingUser("b1"); !ok || m.ID != "u1" {
		t.Errorf("PrecedingUser = %+v, %v", m, ok)
	}
	if _, ok := c.PrecedingUser("missing"); ok {
		t.Error("unknown id should have no preceding user message")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}

func TestConversation_ConcurrentAppend(t *testing.T) {
	c := NewConversation(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Append(Message{ID: fmt.Sprintf("%d-%d", n, j)})
				_ = c.Replay()
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Len = %d, want 50", c.Len())
	}
}
