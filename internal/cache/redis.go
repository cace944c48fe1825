package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keen-eye/survey-engine/internal/models"
)

const keyPrefix = "survey:"

// RedisStore implements Store using Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func stateKey(sessionID string) string {
	return keyPrefix + sessionID + ":state"
}

func answersKey(sessionID string) string {
	return keyPrefix + sessionID + ":answers"
}

// CreateState stores a new session's state with SETNX so a live id is
// never overwritten
func (s *RedisStore) CreateState(ctx context.Context, state *models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, stateKey(state.Session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session state: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, state.Session.ID)
	}
	return nil
}

// SaveState stores the session state and resets its expiry
func (s *RedisStore) SaveState(ctx context.Context, state *models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	if err := s.client.Set(ctx, stateKey(state.Session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

// LoadState retrieves the session state
func (s *RedisStore) LoadState(ctx context.Context, sessionID string) (*models.SessionState, error) {
	data, err := s.client.Get(ctx, stateKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &state, nil
}

// AppendAnswer pushes the answer onto the session's list. RPUSH is atomic,
// so concurrent submissions keep a single ordered sequence.
func (s *RedisStore) AppendAnswer(ctx context.Context, sessionID string, answer models.Answer) (int, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal answer: %w", err)
	}

	key := answersKey(sessionID)
	pipe := s.client.TxPipeline()
	push := pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Expire(ctx, stateKey(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to append answer: %w", err)
	}

	return int(push.Val()), nil
}

// Answers returns the session's answers in submission order
func (s *RedisStore) Answers(ctx context.Context, sessionID string) ([]models.Answer, error) {
	raw, err := s.client.LRange(ctx, answersKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}

	answers := make([]models.Answer, 0, len(raw))
	for i, item := range raw {
		var a models.Answer
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answer %d: %w", i, err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// Delete removes all keys of a session
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, stateKey(sessionID), answersKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Debug("session removed from redis", "session_id", sessionID, "keys_deleted", n)
	return nil
}

// Ping verifies Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
