package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	connKeyPrefix     = "chat:conn:"
	identityKeyPrefix = "chat:identity:"
)

func connKey(handle string) string { return connKeyPrefix + handle }
func identityKey(identity string) string { return identityKeyPrefix + identity }

// bind installs identity->handle and handle->identity, dropping the reverse key of a superseded handle.
// KEYS[1] identity key, KEYS[2] conn key; ARGV[1] handle, ARGV[2] identity, ARGV[3] ttl ms, ARGV[4] conn prefix.
var bindScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev and prev ~= ARGV[1] then
  redis.call('DEL', ARGV[4] .. prev)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
if prev and prev ~= ARGV[1] then
  return prev
end
return ''
`)

// unbind removes handle->identity and removes identity->handle only while it still points at handle.
// KEYS[1] conn key; ARGV[1] handle, ARGV[2] identity prefix.
var unbindScript = redis.NewScript(`
local identity = redis.call('GET', KEYS[1])
if not identity then
  return ''
end
redis.call('DEL', KEYS[1])
local idKey = ARGV[2] .. identity
if redis.call('GET', idKey) == ARGV[1] then
  redis.call('DEL', idKey)
end
return identity
`)

// KEYS[1] conn key; ARGV[1] handle, ARGV[2] identity prefix, ARGV[3] ttl ms.
var refreshScript = redis.NewScript(`
local identity = redis.call('GET', KEYS[1])
if not identity then
  return ''
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
local idKey = ARGV[2] .. identity
if redis.call('GET', idKey) == ARGV[1] then
  redis.call('PEXPIRE', idKey, ARGV[3])
end
return identity
`)

// ConnectionStore keeps the TTL-bound identity <-> connection handle mapping.
type ConnectionStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewConnectionStore(rdb redis.UniversalClient, ttl time.Duration) *ConnectionStore {
	return &ConnectionStore{rdb: rdb, ttl: ttl}
}

// Bind maps identity to handle, superseding any previous handle, which is returned.
func (s *ConnectionStore) Bind(ctx context.Context, identity, handle string) (string, error) {
	prev, err := bindScript.Run(ctx, s.rdb,
		[]string{identityKey(identity), connKey(handle)},
		handle, identity, s.ttl.Milliseconds(), connKeyPrefix,
	).Text()
	if err != nil {
		return "", unavailable(err, "bind connection")
	}
	return prev, nil
}

// Unbind removes the mapping owned by handle and returns its identity, or "" if none remained.
func (s *ConnectionStore) Unbind(ctx context.Context, handle string) (string, error) {
	identity, err := unbindScript.Run(ctx, s.rdb, []string{connKey(handle)}, handle, identityKeyPrefix).Text()
	if err != nil {
		return "", unavailable(err, "unbind connection")
	}
	return identity, nil
}

// Refresh renews the TTL of the mapping owned by handle.
func (s *ConnectionStore) Refresh(ctx context.Context, handle string) (string, error) {
	identity, err := refreshScript.Run(ctx, s.rdb,
		[]string{connKey(handle)},
		handle, identityKeyPrefix, s.ttl.Milliseconds(),
	).Text()
	if err != nil {
		return "", unavailable(err, "refresh connection")
	}
	return identity, nil
}

// HandleFor returns the live handle of identity.
func (s *ConnectionStore) HandleFor(ctx context.Context, identity string) (string, bool, error) {
	return s.get(ctx, identityKey(identity), "lookup connection")
}

// IdentityFor returns the identity owning handle.
func (s *ConnectionStore) IdentityFor(ctx context.Context, handle string) (string, bool, error) {
	return s.get(ctx, connKey(handle), "resolve handle")
}

func (s *ConnectionStore) get(ctx context.Context, key, op string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, op)
	}
	return val, true, nil
}
