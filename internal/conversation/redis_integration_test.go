package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/log"
	"github.com/citedraft/citedraft/internal/testutil"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	client := testutil.StartRedis(t)
	s := conversation.NewRedisStore(client, time.Hour, log.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	user := conversation.Message{
		Role:      conversation.RoleUser,
		Content:   "what changed?",
		Timestamp: now,
	}
	assistant := conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: "Revenue grew [1].",
		Citations: []conversation.Citation{{
			Number:       1,
			DocumentID:   "doc-1",
			DocumentName: "Annual Report",
			Page:         12,
			Section:      "Revenue",
			Excerpt:      "revenue grew 8%",
			Confidence:   0.9,
			CharStart:    13,
			CharEnd:      16,
		}},
		Confidence: 0.9,
		Timestamp:  now,
	}

	s.Append(ctx, "sess-1", "kb-1", user, assistant)

	got := s.History(ctx, "sess-1", "kb-1")
	if len(got) != 2 {
		t.Fatalf("History() returned %d messages, want 2", len(got))
	}
	if got[0].Role != conversation.RoleUser || got[0].Content != "what changed?" {
		t.Errorf("History()[0] = %+v, want the user turn", got[0])
	}
	if !got[0].Timestamp.Equal(now) {
		t.Errorf("History()[0].Timestamp = %v, want %v", got[0].Timestamp, now)
	}

	back := got[1]
	if back.Role != conversation.RoleAssistant || back.Content != "Revenue grew [1]." {
		t.Errorf("History()[1] = %+v, want the assistant turn", back)
	}
	if back.Confidence != 0.9 || back.Incomplete {
		t.Errorf("History()[1] confidence/incomplete = %v/%v, want 0.9/false", back.Confidence, back.Incomplete)
	}
	if len(back.Citations) != 1 {
		t.Fatalf("History()[1] has %d citations, want 1", len(back.Citations))
	}
	if cit := back.Citations[0]; cit != assistant.Citations[0] {
		t.Errorf("citation round trip = %+v, want %+v", cit, assistant.Citations[0])
	}

	// A second append extends the stored history in order.
	s.Append(ctx, "sess-1", "kb-1", conversation.Message{
		Role:    conversation.RoleUser,
		Content: "and margins?",
	})
	if got := s.History(ctx, "sess-1", "kb-1"); len(got) != 3 || got[2].Content != "and margins?" {
		t.Errorf("History() after second append = %d messages, want 3 ending with the new turn", len(got))
	}

	// History is scoped per (session, knowledge base) pair.
	if got := s.History(ctx, "sess-1", "kb-other"); len(got) != 0 {
		t.Errorf("History() for another knowledge base = %d messages, want 0", len(got))
	}
}

func TestRedisStore_TTL(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	client := testutil.StartRedis(t)
	ctx := context.Background()

	t.Run("set on append", func(t *testing.T) {
		s := conversation.NewRedisStore(client, time.Hour, log.NewNop())
		s.Append(ctx, "ttl-set", "kb-1", conversation.Message{Role: conversation.RoleUser, Content: "hi"})

		ttl, err := client.TTL(ctx, conversation.Key("ttl-set", "kb-1")).Result()
		if err != nil {
			t.Fatalf("TTL() error: %v", err)
		}
		if ttl <= 59*time.Minute || ttl > time.Hour {
			t.Errorf("key TTL = %v, want about an hour", ttl)
		}
	})

	t.Run("reset on append", func(t *testing.T) {
		s := conversation.NewRedisStore(client, time.Second, log.NewNop())
		s.Append(ctx, "ttl-reset", "kb-1", conversation.Message{Role: conversation.RoleUser, Content: "one"})

		time.Sleep(600 * time.Millisecond)
		s.Append(ctx, "ttl-reset", "kb-1", conversation.Message{Role: conversation.RoleUser, Content: "two"})
		time.Sleep(600 * time.Millisecond)

		// 1.2s have passed since the first append; only the reset on the
		// second append keeps the history alive.
		if got := s.History(ctx, "ttl-reset", "kb-1"); len(got) != 2 {
			t.Errorf("History() after TTL reset = %d messages, want 2", len(got))
		}
	})

	t.Run("expires", func(t *testing.T) {
		s := conversation.NewRedisStore(client, 500*time.Millisecond, log.NewNop())
		s.Append(ctx, "ttl-expire", "kb-1", conversation.Message{Role: conversation.RoleUser, Content: "gone soon"})

		time.Sleep(time.Second)

		if got := s.History(ctx, "ttl-expire", "kb-1"); len(got) != 0 {
			t.Errorf("History() after expiry = %d messages, want 0", len(got))
		}
	})
}

func TestRedisStore_CorruptPayloadDegrades(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	client := testutil.StartRedis(t)
	s := conversation.NewRedisStore(client, time.Hour, log.NewNop())
	ctx := context.Background()

	key := conversation.Key("sess-corrupt", "kb-1")
	if err := client.Set(ctx, key, "not json", time.Hour).Err(); err != nil {
		t.Fatalf("seeding corrupt payload: %v", err)
	}

	if got := s.History(ctx, "sess-corrupt", "kb-1"); got == nil || len(got) != 0 {
		t.Errorf("History() on corrupt payload = %v, want empty non-nil slice", got)
	}
}

func TestRedisStore_Clear(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	client := testutil.StartRedis(t)
	s := conversation.NewRedisStore(client, time.Hour, log.NewNop())
	ctx := context.Background()

	s.Append(ctx, "sess-clear", "kb-1", conversation.Message{Role: conversation.RoleUser, Content: "bye"})
	if err := s.Clear(ctx, "sess-clear", "kb-1"); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	if got := s.History(ctx, "sess-clear", "kb-1"); len(got) != 0 {
		t.Errorf("History() after Clear = %d messages, want 0", len(got))
	}
	if n, err := client.Exists(ctx, conversation.Key("sess-clear", "kb-1")).Result(); err != nil || n != 0 {
		t.Errorf("key still exists after Clear (n=%d, err=%v)", n, err)
	}
}
