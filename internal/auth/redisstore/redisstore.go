package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
)

const (
	challengePrefix = "auth:challenge:"
	sessionPrefix   = "auth:session:"
)

// Store keeps login challenges and current session ids in Redis. Both expire
// with the key TTL, so nothing outlives its challenge window or session.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func (s *Store) SaveChallenge(ctx context.Context, key string, c *auth.Challenge, ttl time.Duration) error {
	k := challengePrefix + key

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"code_hash", c.CodeHash,
			"attempts", c.Attempts,
			"expires_at", c.ExpiresAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, k, ttl)

		return nil
	})
	if err != nil {
		return fmt.Errorf("saving challenge: %w", err)
	}

	return nil
}

func (s *Store) GetChallenge(ctx context.Context, key string) (*auth.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, challengePrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("getting challenge: %w", err)
	}

	if len(fields) == 0 {
		return nil, auth.ErrNotFound
	}

	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("parsing attempts: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parsing expiry: %w", err)
	}

	return &auth.Challenge{
		CodeHash:  fields["code_hash"],
		Attempts:  attempts,
		ExpiresAt: expiresAt,
	}, nil
}

// incrementAttempts only touches a challenge that still exists, so an expired
// key is never recreated without a TTL.
var incrementAttempts = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

func (s *Store) IncrementAttempts(ctx context.Context, key string) (int, error) {
	n, err := incrementAttempts.Run(ctx, s.client, []string{challengePrefix + key}).Int()
	if err != nil {
		return 0, fmt.Errorf("incrementing attempts: %w", err)
	}

	if n < 0 {
		return 0, auth.ErrNotFound
	}

	return n, nil
}

func (s *Store) DeleteChallenge(ctx context.Context, key string) error {
	return s.client.Del(ctx, challengePrefix+key).Err()
}

func (s *Store) SetCurrent(ctx context.Context, subject, tokenID string, ttl time.Duration) error {
	return s.client.Set(ctx, sessionPrefix+subject, tokenID, ttl).Err()
}

func (s *Store) Current(ctx context.Context, subject string) (string, error) {
	id, err := s.client.Get(ctx, sessionPrefix+subject).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("getting session: %w", err)
	}

	return id, nil
}

func (s *Store) DeleteCurrent(ctx context.Context, subject string) error {
	return s.client.Del(ctx, sessionPrefix+subject).Err()
}
