package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nano-pos/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "nano-pos:idempotency:"

// Records are hashes so ownership checks can run inside Lua without JSON
// decoding. In-flight keys expire after the lease, completed keys after the
// retention period.
var (
	beginScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'fingerprint', ARGV[1],
	'status', 'in_flight',
	'owner', ARGV[2],
	'created_at', ARGV[3],
	'locked_until', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

	completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] or redis.call('HGET', KEYS[1], 'status') ~= 'in_flight' then
	return 0
end
redis.call('HSET', KEYS[1],
	'status', ARGV[2],
	'sale_id', ARGV[3],
	'failure', ARGV[4],
	'completed_at', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return 1
`)

	releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] or redis.call('HGET', KEYS[1], 'status') ~= 'in_flight' then
	return 0
end
return redis.call('DEL', KEYS[1])
`)
)

// RedisStore keeps idempotency records in Redis. Retention is enforced with key
// TTLs, so Purge has nothing to do.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	lease     time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore creates a Redis-backed Store
func NewRedisStore(client redis.UniversalClient, lease, retention time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    defaultKeyPrefix,
		lease:     lease,
		retention: retention,
		now:       time.Now,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string) (*domain.IdempotencyRecord, bool, error) {
	now := s.now()
	owner := uuid.NewString()

	// A key can expire between the failed SETNX-style begin and the read; the
	// loop then simply tries to acquire it again.
	for attempt := 0; attempt < 3; attempt++ {
		acquired, err := beginScript.Run(ctx, s.client, []string{s.redisKey(key)},
			fingerprint,
			owner,
			now.UnixMilli(),
			now.Add(s.lease).UnixMilli(),
			s.lease.Milliseconds(),
		).Int()
		if err != nil {
			return nil, false, fmt.Errorf("failed to begin idempotency key: %w", err)
		}

		if acquired == 1 {
			return &domain.IdempotencyRecord{
				Key:         key,
				Fingerprint: fingerprint,
				Status:      domain.IdempotencyInFlight,
				Owner:       owner,
				LockedUntil: now.Add(s.lease),
				CreatedAt:   now,
			}, true, nil
		}

		rec, err := s.Lookup(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return rec, false, nil
	}

	return nil, false, fmt.Errorf("failed to begin idempotency key %q: key keeps expiring", key)
}

func (s *RedisStore) Complete(ctx context.Context, key, owner string, outcome domain.Outcome) error {
	saleID := ""
	if outcome.SaleID != nil {
		saleID = strconv.FormatInt(*outcome.SaleID, 10)
	}

	failure := ""
	if outcome.Failure != nil {
		raw, err := json.Marshal(outcome.Failure)
		if err != nil {
			return fmt.Errorf("failed to encode failure: %w", err)
		}
		failure = string(raw)
	}

	ok, err := completeScript.Run(ctx, s.client, []string{s.redisKey(key)},
		owner,
		string(outcome.Status()),
		saleID,
		failure,
		s.now().UnixMilli(),
		s.retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if ok != 1 {
		return ErrLeaseLost
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, owner string) error {
	deleted, err := releaseScript.Run(ctx, s.client, []string{s.redisKey(key)}, owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	if deleted != 1 {
		return ErrLeaseLost
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrKeyNotFound
	}

	rec := &domain.IdempotencyRecord{
		Key:         key,
		Fingerprint: fields["fingerprint"],
		Status:      domain.IdempotencyStatus(fields["status"]),
		Owner:       fields["owner"],
		CreatedAt:   unixMilli(fields["created_at"]),
		LockedUntil: unixMilli(fields["locked_until"]),
	}

	if v := fields["sale_id"]; v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt sale id for idempotency key %q: %w", key, err)
		}
		rec.SaleID = &id
	}
	if v := fields["failure"]; v != "" {
		var f domain.Failure
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			return nil, fmt.Errorf("corrupt failure for idempotency key %q: %w", key, err)
		}
		rec.Failure = &f
	}
	if v := fields["completed_at"]; v != "" {
		t := unixMilli(v)
		rec.CompletedAt = &t
	}

	return rec, nil
}

// Purge is a no-op: Redis expires records on its own.
func (s *RedisStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func unixMilli(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
