package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusExpired  int64 = 3
	rotateStatusRotated  int64 = 4
)

// rotateScript runs the whole rotation decision server-side so concurrent
// presentations of one token id see exactly one winner. Ordering inside the
// script matters: revoked is checked before expired so a rotated token keeps
// reporting reuse even after its natural expiry.
const rotateScript = `
local user = redis.call("HGET", KEYS[1], "user_id")
if not user then
  return {0}
end
if user ~= ARGV[1] then
  return {1}
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return {2}
end
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if expires <= tonumber(ARGV[3]) then
  return {3}
end

redis.call("HSET", KEYS[1], "revoked", "1", "updated_at", ARGV[3])
redis.call("HSET", KEYS[2],
  "user_id", ARGV[1],
  "expires_at", ARGV[4],
  "revoked", "0",
  "created_at", ARGV[3],
  "updated_at", ARGV[3])
local keep = tonumber(ARGV[4]) - tonumber(ARGV[3]) + tonumber(ARGV[5])
redis.call("PEXPIRE", KEYS[2], keep)
local user_key = ARGV[6] .. ARGV[1]
redis.call("SADD", user_key, ARGV[2])
redis.call("PEXPIRE", user_key, keep)
return {4}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local user = redis.call("HGET", key, "user_id")
  if not user then
    redis.call("SREM", KEYS[1], id)
  elseif redis.call("HGET", key, "revoked") ~= "1" then
    local expires = tonumber(redis.call("HGET", key, "expires_at") or "0")
    redis.call("HSET", key, "revoked", "1", "updated_at", ARGV[2])
    if expires > tonumber(ARGV[2]) then
      revoked = revoked + 1
    end
  end
end
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

const countActiveScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local active = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local user = redis.call("HGET", key, "user_id")
  if not user then
    redis.call("SREM", KEYS[1], id)
  elseif redis.call("HGET", key, "revoked") ~= "1" then
    local expires = tonumber(redis.call("HGET", key, "expires_at") or "0")
    if expires > tonumber(ARGV[2]) then
      active = active + 1
    end
  end
end
return active
`

var countActiveLua = redis.NewScript(countActiveScript)

// RedisStore is a Redis-backed [Store]. One hash per record plus a per-user
// id set; rotation, mass revocation, and active counting run as Lua scripts.
// Record keys expire retention past the record's own expiry, keeping expired
// tokens distinguishable from unknown ones for the theft heuristic.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore creates a [RedisStore] namespaced under prefix. A non-positive
// retention falls back to [DefaultRetention].
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sa"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		redis:     client,
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}
}

// SetClock replaces the store's time source. Intended for tests.
func (s *RedisStore) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + ":rt:" + id
}

func (s *RedisStore) recordPrefix() string {
	return s.prefix + ":rt:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":u:"
}

// Create implements [Store].
func (s *RedisStore) Create(ctx context.Context, userID string, ttl time.Duration) (*Record, error) {
	now := s.now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	keep := ttl + s.retention
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.recordKey(rec.ID),
		"user_id", rec.UserID,
		"expires_at", rec.ExpiresAt.UnixMilli(),
		"revoked", "0",
		"created_at", now.UnixMilli(),
		"updated_at", now.UnixMilli(),
	)
	pipe.PExpire(ctx, s.recordKey(rec.ID), keep)
	pipe.SAdd(ctx, s.userKey(userID), rec.ID)
	pipe.PExpire(ctx, s.userKey(userID), keep)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return rec, nil
}

// FindByID implements [Store].
func (s *RedisStore) FindByID(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseRecord(id, fields)
}

// Rotate implements [Store].
func (s *RedisStore) Rotate(ctx context.Context, id, userID string, ttl time.Duration) (*Record, error) {
	now := s.now()
	newRec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.recordKey(id), s.recordKey(newRec.ID)},
		userID,
		newRec.ID,
		now.UnixMilli(),
		newRec.ExpiresAt.UnixMilli(),
		s.retention.Milliseconds(),
		s.userPrefix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status, err := rotateStatus(res)
	if err != nil {
		return nil, err
	}

	switch status {
	case rotateStatusRotated:
		return newRec, nil
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusMismatch:
		return nil, ErrUserMismatch
	case rotateStatusRevoked:
		return nil, ErrRevoked
	case rotateStatusExpired:
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: unexpected rotate status %d", ErrUnavailable, status)
	}
}

// Revoke implements [Store].
func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	exists, err := s.redis.Exists(ctx, s.recordKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	err = s.redis.HSet(ctx, s.recordKey(id),
		"revoked", "1",
		"updated_at", s.now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll implements [Store].
func (s *RedisStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	res, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.recordPrefix(),
		s.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

// CountActive implements [Store].
func (s *RedisStore) CountActive(ctx context.Context, userID string) (int, error) {
	res, err := countActiveLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.recordPrefix(),
		s.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

func rotateStatus(res interface{}) (int64, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) == 0 {
		return 0, fmt.Errorf("%w: malformed rotate reply", ErrUnavailable)
	}
	status, ok := values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: malformed rotate status", ErrUnavailable)
	}
	return status, nil
}

func parseRecord(id string, fields map[string]string) (*Record, error) {
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expires_at for %s", ErrUnavailable, id)
	}
	createdMs, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	updatedMs, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	if fields["user_id"] == "" {
		return nil, fmt.Errorf("%w: corrupt record %s", ErrUnavailable, id)
	}

	return &Record{
		ID:        id,
		UserID:    fields["user_id"],
		ExpiresAt: time.UnixMilli(expiresMs),
		Revoked:   fields["revoked"] == "1",
		CreatedAt: time.UnixMilli(createdMs),
		UpdatedAt: time.UnixMilli(updatedMs),
	}, nil
}

// IsUnavailable reports whether err is a transport failure of the backing
// store, as opposed to one of the record-state sentinels.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
