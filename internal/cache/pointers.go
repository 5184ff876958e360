package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	pointerKeyPrefix   = "chat:pointer:"
	pointerTSKeyPrefix = "chat:pointer_ts:"
)

// upsertPointerScript advances both participants' pointers when (created, id) is not older
// than the stored one.
// KEYS: ptr(a), ts(a), ptr(b), ts(b); ARGV: a, b, message id, created.
var upsertPointerScript = redis.NewScript(`
local id = tonumber(ARGV[3])
local created = tonumber(ARGV[4])
local updated = 0
local function upsert(ptrKey, tsKey, field)
  local curTs = tonumber(redis.call('HGET', tsKey, field) or '-1')
  local curId = tonumber(redis.call('HGET', ptrKey, field) or '-1')
  if created > curTs or (created == curTs and id >= curId) then
    redis.call('HSET', ptrKey, field, ARGV[3])
    redis.call('HSET', tsKey, field, ARGV[4])
    updated = updated + 1
  end
end
upsert(KEYS[1], KEYS[2], ARGV[2])
upsert(KEYS[3], KEYS[4], ARGV[1])
return updated
`)

// PointerStore keeps, per identity, a hash of counterpart -> most recent private message id.
type PointerStore struct {
	rdb redis.UniversalClient
}

func NewPointerStore(rdb redis.UniversalClient) *PointerStore {
	return &PointerStore{rdb: rdb}
}

// Upsert records messageID as the latest message between a and b unless a newer one is stored.
// It returns how many of the two entries moved.
func (s *PointerStore) Upsert(ctx context.Context, a, b string, messageID, created int64) (int, error) {
	updated, err := upsertPointerScript.Run(ctx, s.rdb,
		[]string{pointerKeyPrefix + a, pointerTSKeyPrefix + a, pointerKeyPrefix + b, pointerTSKeyPrefix + b},
		a, b, messageID, created,
	).Int()
	if err != nil {
		return 0, unavailable(err, "upsert conversation pointer")
	}
	return updated, nil
}

// Pointers returns counterpart -> message id for identity.
func (s *PointerStore) Pointers(ctx context.Context, identity string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, pointerKeyPrefix+identity).Result()
	if err != nil {
		return nil, unavailable(err, "load conversation pointers")
	}
	pointers := make(map[string]int64, len(raw))
	for counterpart, val := range raw {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		pointers[counterpart] = id
	}
	return pointers, nil
}
