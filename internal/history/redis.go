package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const appendRetries = 5

// RedisStore keeps each user's history as a JSON array under {prefix}{userID}.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Open parses a redis:// URL and returns a client.
func Open(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func NewRedisStore(log *slog.Logger, client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: log.With(slog.String("service", "history")),
	}
}

func (s *RedisStore) key(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrEmptyUser
	}
	return s.prefix + userID, nil
}

// Get returns the stored history, or an empty list when none exists.
func (s *RedisStore) Get(ctx context.Context, userID string) ([]Message, error) {
	key, err := s.key(userID)
	if err != nil {
		return nil, err
	}
	return decode(s.client.Get(ctx, key))
}

// Set replaces the history and refreshes its TTL.
func (s *RedisStore) Set(ctx context.Context, userID string, msgs []Message) error {
	key, err := s.key(userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(normalize(msgs))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set history: %w", err)
	}
	return nil
}

// Append adds msgs to the stored history under WATCH so concurrent appends for
// the same user do not drop each other's messages.
func (s *RedisStore) Append(ctx context.Context, userID string, msgs ...Message) error {
	key, err := s.key(userID)
	if err != nil {
		return err
	}
	txf := func(tx *redis.Tx) error {
		current, err := decode(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		data, err := json.Marshal(append(current, msgs...))
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < appendRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("history append conflict, retrying", slog.String("user_id", userID), slog.Int("attempt", attempt+1))
			continue
		}
		return fmt.Errorf("append history: %w", err)
	}
	return fmt.Errorf("append history: %w", redis.TxFailedErr)
}

// Expire resets the TTL of a stored history.
func (s *RedisStore) Expire(ctx context.Context, userID string, ttl time.Duration) error {
	key, err := s.key(userID)
	if err != nil {
		return err
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire history: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	key, err := s.key(userID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decode(cmd *redis.StringCmd) ([]Message, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return normalize(msgs), nil
}

func normalize(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}
