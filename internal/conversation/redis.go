package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. The full history is a single JSON
// array per key; Append is a read-modify-write of that array, so concurrent
// appends to the same key are last-writer-wins.
//
// RedisStore is safe for concurrent use by multiple goroutines.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a RedisStore with the given TTL. logger may be nil.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

// History returns the stored messages, or an empty slice on miss, expiry,
// unreachable backend, or corrupt payload.
func (s *RedisStore) History(ctx context.Context, sessionID, kbID string) []Message {
	key := Key(sessionID, kbID)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("conversation store unreachable, degrading to empty history",
				"key", key, "error", err)
		}
		return []Message{}
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		s.logger.Warn("corrupt conversation history, degrading to empty",
			"key", key, "error", err)
		return []Message{}
	}
	return msgs
}

// Append appends messages and resets the TTL. Best-effort: failures are
// logged and the request proceeds statelessly.
func (s *RedisStore) Append(ctx context.Context, sessionID, kbID string, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	key := Key(sessionID, kbID)

	history := s.History(ctx, sessionID, kbID)
	history = append(history, msgs...)

	raw, err := json.Marshal(history)
	if err != nil {
		s.logger.Warn("marshaling conversation history", "key", key, "error", err)
		return
	}

	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("appending conversation history, message dropped",
			"key", key, "count", len(msgs), "error", err)
		return
	}
	s.logger.Debug("appended conversation history", "key", key, "count", len(msgs))
}

// Clear removes the history for (sessionID, kbID).
func (s *RedisStore) Clear(ctx context.Context, sessionID, kbID string) error {
	key := Key(sessionID, kbID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clearing conversation %s: %w", key, err)
	}
	return nil
}
