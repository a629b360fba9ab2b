package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/pkg/hashutil"
)

/*
RedisStore keeps items and frontier entries in Redis.

  - Each item is a string key <prefix>:item:<blake3(canonical key)> holding
    the JSON record.
  - <prefix>:items counts inserted items. The item write and the increment
    run as one script, so the count never drifts from the item keys.
  - Frontier entries live in the hash <prefix>:frontier keyed by leaf id.
*/
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr, password string, db int, namespace string) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), namespace)
}

func NewRedisStoreWithClient(client *redis.Client, namespace string) *RedisStore {
	prefix := "catalog"
	if namespace != "" {
		prefix = "catalog:" + namespace
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Name() string {
	return "redis"
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseUnavailable, Store: r.Name()}
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// insertItemScript sets KEYS[1] to ARGV[1] unless it exists and then bumps
// the counter at KEYS[2]. It returns 1 on insert and 0 otherwise.
var insertItemScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX") then
	redis.call("INCR", KEYS[2])
	return 1
end
return 0
`)

func (r *RedisStore) countKey() string {
	return r.prefix + ":items"
}

func (r *RedisStore) itemKey(canonicalKey string) string {
	return fmt.Sprintf("%s:item:%s", r.prefix, hashutil.KeyDigest(canonicalKey))
}

func (r *RedisStore) InsertIfAbsent(ctx context.Context, item catalog.ItemIdentifier) (bool, error) {
	encoded, err := json.Marshal(item)
	if err != nil {
		return false, &StorageError{Message: err.Error(), Cause: ErrCauseEncodeFailure, Store: r.Name()}
	}
	inserted, err := insertItemScript.Run(ctx, r.client, []string{r.itemKey(item.CanonicalKey), r.countKey()}, encoded).Int()
	if err != nil {
		return false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Store: r.Name()}
	}
	return inserted == 1, nil
}

func (r *RedisStore) Lookup(ctx context.Context, canonicalKey string) (catalog.ItemIdentifier, bool, error) {
	raw, err := r.client.Get(ctx, r.itemKey(canonicalKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return catalog.ItemIdentifier{}, false, nil
	}
	if err != nil {
		return catalog.ItemIdentifier{}, false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: r.Name()}
	}
	var item catalog.ItemIdentifier
	if err := json.Unmarshal(raw, &item); err != nil {
		return catalog.ItemIdentifier{}, false, &StorageError{Message: err.Error(), Cause: ErrCauseReadFailure, Store: r.Name()}
	}
	return item, true, nil
}

func (r *RedisStore) CountItems(ctx context.Context) (int, error) {
	n, err := r.client.Get(ctx, r.countKey()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: r.Name()}
	}
	return n, nil
}

func (r *RedisStore) PutEntry(ctx context.Context, entry catalog.FrontierEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseEncodeFailure, Store: r.Name()}
	}
	if err := r.client.HSet(ctx, r.prefix+":frontier", entry.LeafID, encoded).Err(); err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Store: r.Name()}
	}
	return nil
}

func (r *RedisStore) Entries(ctx context.Context) (map[string]catalog.FrontierEntry, error) {
	raw, err := r.client.HGetAll(ctx, r.prefix+":frontier").Result()
	if err != nil {
		return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: r.Name()}
	}
	entries := make(map[string]catalog.FrontierEntry, len(raw))
	for leafID, encoded := range raw {
		var entry catalog.FrontierEntry
		if err := json.Unmarshal([]byte(encoded), &entry); err != nil {
			return nil, &StorageError{Message: fmt.Sprintf("leaf %s: %v", leafID, err), Cause: ErrCauseReadFailure, Store: r.Name()}
		}
		entries[leafID] = entry
	}
	return entries, nil
}
