package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/utils"
)

// RedisCodeStore keeps pending one-time codes in Redis with a TTL, so
// expiry needs no sweeper.  SETting the same key again overwrites the
// previous code, which gives the one-live-code-per-contact rule for
// free.
type RedisCodeStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCodeStore returns a CodeStore over the given client.
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client, prefix: "otp:"}
}

func (s *RedisCodeStore) Put(ctx context.Context, contact, codeHash string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+contact, codeHash, ttl).Err()
}

func (s *RedisCodeStore) Get(ctx context.Context, contact string) (string, error) {
	val, err := s.client.Get(ctx, s.prefix+contact).Result()
	if err == redis.Nil {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, contact string) error {
	return s.client.Del(ctx, s.prefix+contact).Err()
}

// RedisGrantStore holds single-use verification grants.  Consume uses
// GETDEL so that redeeming a grant is atomic: of two sessions racing on
// the same token, exactly one reads a value and the other sees
// model.ErrExpired.
type RedisGrantStore struct {
	client *redis.Client
	prefix string
}

// NewRedisGrantStore returns an IdentityGrants over the given client.
func NewRedisGrantStore(client *redis.Client) *RedisGrantStore {
	return &RedisGrantStore{client: client, prefix: "grant:"}
}

func (s *RedisGrantStore) Issue(ctx context.Context, identityID uint64, ttl time.Duration) (string, error) {
	token, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.prefix+token, strconv.FormatUint(identityID, 10), ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisGrantStore) Consume(ctx context.Context, token string) (uint64, error) {
	val, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if err == redis.Nil {
		return 0, model.ErrExpired
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("grant %s holds malformed identity id: %w", token, err)
	}
	return id, nil
}
