package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a handle has no live record.
var ErrSessionNotFound = errors.New("session not found")

// ErrRefreshHashMismatch is returned by RotateRefreshHash when the presented
// refresh token is the one rotated out by the last refresh. The session has
// already been deleted.
var ErrRefreshHashMismatch = errors.New("refresh hash mismatch")

// ErrRefreshHashUnknown is returned by RotateRefreshHash when the presented
// hash is neither the current nor the parent one. The session is left intact.
var ErrRefreshHashUnknown = errors.New("refresh token not recognised")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

const maxUpdateRetries = 8

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusInvalidBlob int64 = 4
	rotateStatusUnknown     int64 = 5
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const rotateRefreshScript = `
local function read_be64(s, i)
  local n = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local function read_string(s, idx)
  local len = string.byte(s, idx)
  if not len then
    return nil, idx
  end
  idx = idx + 1
  if #s < idx + len - 1 then
    return nil, idx
  end
  return string.sub(s, idx, idx + len - 1), idx + len
end

local function parse_session(data)
  if #data < 82 or string.byte(data, 1) ~= 2 then
    return nil
  end
  local expires_at = read_be64(data, 74)
  local user_id, idx = read_string(data, 82)
  if not user_id then
    return nil
  end
  local recipe_id
  recipe_id, idx = read_string(data, idx)
  if not recipe_id then
    return nil
  end
  local tenant_id
  tenant_id, idx = read_string(data, idx)
  if not tenant_id then
    return nil
  end
  return {
    user_id = user_id,
    tenant_id = tenant_id,
    refresh_hash = string.sub(data, 2, 33),
    parent_hash = string.sub(data, 34, 65),
    expires_at = expires_at
  }
end

local session_key = KEYS[1]
local handle = ARGV[1]
local user_prefix = ARGV[2]
local provided_hash = ARGV[3]
local next_hash = ARGV[4]
local now_unix = tonumber(ARGV[5])

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

local parsed = parse_session(data)
if not parsed or not parsed.expires_at then
  return {4}
end

local user_key = user_prefix .. parsed.tenant_id .. ":" .. parsed.user_id

if parsed.expires_at <= now_unix then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, handle)
  return {1}
end

if parsed.refresh_hash ~= provided_hash then
  if parsed.parent_hash ~= string.rep("\0", 32) and parsed.parent_hash == provided_hash then
    redis.call("DEL", session_key)
    redis.call("SREM", user_key, handle)
    return {2, data}
  end
  return {5}
end

local ttl = redis.call("PTTL", session_key)
if ttl <= 0 then
  ttl = (parsed.expires_at - now_unix) * 1000
end

local updated = string.sub(data, 1, 1) .. next_hash .. provided_hash .. string.sub(data, 66)
redis.call("SET", session_key, updated, "PX", ttl)

return {3, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store]. An empty prefix defaults to "st".
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "st"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(handle string) string {
	return s.prefix + ":s:" + handle
}

func (s *Store) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(tenantID, userID string) string {
	return s.userPrefix() + tenantID + ":" + userID
}

func (s *Store) userTenantsKey(userID string) string {
	return s.prefix + ":ut:" + userID
}

// Save persists sess until its ExpiresAt.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.Handle), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.TenantID, sess.UserID), sess.Handle)
		pipe.SAdd(ctx, s.userTenantsKey(sess.UserID), sess.TenantID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get loads the live session for handle.
func (s *Store) Get(ctx context.Context, handle string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.Handle = handle

	if sess.ExpiresAt <= time.Now().Unix() {
		if _, err := s.Delete(ctx, handle); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Update applies mutate to the stored session under optimistic locking and
// keeps the record's remaining TTL.
func (s *Store) Update(ctx context.Context, handle string, mutate func(*Session) error) (*Session, error) {
	key := s.key(handle)
	var updated *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		sess.Handle = handle

		if err := mutate(sess); err != nil {
			return err
		}
		next, err := Encode(sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, next, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		updated = sess
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionCorrupt) || errors.Is(err, ErrRedisUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil, fmt.Errorf("%w: too many concurrent updates", ErrRedisUnavailable)
}

// Delete removes the session and reports whether it existed.
func (s *Store) Delete(ctx context.Context, handle string) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if err := s.redis.Del(ctx, s.key(handle)).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return true, nil
	}

	return s.deleteSessionAndIndex(ctx, sess.TenantID, sess.UserID, handle)
}

// ListHandles returns the live handles for a user in a tenant and prunes
// index entries whose sessions have expired.
func (s *Store) ListHandles(ctx context.Context, tenantID, userID string) ([]string, error) {
	userKey := s.userKey(tenantID, userID)
	handles, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(handles) == 0 {
		return nil, nil
	}

	exists := make([]*redis.IntCmd, len(handles))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range handles {
			exists[i] = pipe.Exists(ctx, s.key(h))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(handles))
	var stale []interface{}
	for i, h := range handles {
		if exists[i].Val() == 1 {
			live = append(live, h)
		} else {
			stale = append(stale, h)
		}
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return live, nil
}

// TenantsForUser lists tenants in which the user has ever held a session.
func (s *Store) TenantsForUser(ctx context.Context, userID string) ([]string, error) {
	tenants, err := s.redis.SMembers(ctx, s.userTenantsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return tenants, nil
}

// DeleteAllForUser removes every session of a user in a tenant and returns
// the handles that were removed.
//
// Not atomic: a session created between listing and deletion survives.
func (s *Store) DeleteAllForUser(ctx context.Context, tenantID, userID string) ([]string, error) {
	handles, err := s.ListHandles(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(handles))
	for _, h := range handles {
		existed, err := s.deleteSessionAndIndex(ctx, tenantID, userID, h)
		if err != nil {
			return removed, err
		}
		if existed {
			removed = append(removed, h)
		}
	}
	return removed, nil
}

// Ping measures a Redis round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// RotateRefreshHash atomically replaces the refresh hash when providedHash
// matches the stored one and keeps providedHash as the parent. Presenting
// the parent again deletes the session and returns [ErrRefreshHashMismatch].
// Any other hash returns [ErrRefreshHashUnknown] without touching the session.
func (s *Store) RotateRefreshHash(
	ctx context.Context,
	handle string,
	providedHash [32]byte,
	nextHash [32]byte,
) (*Session, error) {
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(handle)},
		handle,
		s.userPrefix(),
		providedHash[:],
		nextHash[:],
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid refresh script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid refresh script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, ErrSessionNotFound
	case rotateStatusMismatch:
		// The deleted record is returned so callers can report who was affected.
		if len(parts) < 2 {
			return nil, ErrRefreshHashMismatch
		}
		sess, decErr := decodeScriptBlob(parts[1])
		if decErr != nil {
			return nil, ErrRefreshHashMismatch
		}
		sess.Handle = handle
		return sess, ErrRefreshHashMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated session payload", ErrRedisUnavailable)
		}

		sess, decErr := decodeScriptBlob(parts[1])
		if decErr != nil {
			return nil, decErr
		}
		sess.Handle = handle
		return sess, nil
	case rotateStatusInvalidBlob:
		return nil, ErrSessionCorrupt
	case rotateStatusUnknown:
		return nil, ErrRefreshHashUnknown
	default:
		return nil, fmt.Errorf("%w: unknown refresh script status", ErrRedisUnavailable)
	}
}

func decodeScriptBlob(v interface{}) (*Session, error) {
	var blob []byte
	switch b := v.(type) {
	case string:
		blob = []byte(b)
	case []byte:
		blob = b
	default:
		return nil, fmt.Errorf("%w: invalid updated session payload", ErrRedisUnavailable)
	}

	sess, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return sess, nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, tenantID, userID, handle string) (bool, error) {
	existed, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(handle), s.userKey(tenantID, userID)}, handle).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}
