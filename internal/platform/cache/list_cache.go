package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errGenerationMoved = errors.New("cache generation moved")

// ListCache stores one JSON-encoded list under a fixed key. A companion
// generation counter is bumped on every Invalidate so that a load started
// before a write can never store its older snapshot afterwards.
type ListCache[T any] struct {
	rdb    *redis.Client
	key    string
	genKey string
	ttl    time.Duration
}

// NewListCache returns a ListCache for key. A non-positive ttl stores entries
// without expiry.
func NewListCache[T any](rdb *redis.Client, key string, ttl time.Duration) *ListCache[T] {
	if ttl < 0 {
		ttl = 0
	}
	return &ListCache[T]{rdb: rdb, key: key, genKey: key + ":gen", ttl: ttl}
}

// GetList returns the cached list. ok is false on a miss; a cached empty list
// is a hit.
func (c *ListCache[T]) GetList(ctx context.Context) (list []T, ok bool, err error) {
	b, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", c.key, err)
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", c.key, err)
	}
	if list == nil {
		list = []T{}
	}
	return list, true, nil
}

// Generation returns the current invalidation counter. Read it before loading
// the list from the source of truth and pass it to SetListAt.
func (c *ListCache[T]) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation %s: %w", c.key, err)
	}
	return gen, nil
}

// SetListAt stores list only if no Invalidate happened since gen was read.
// stored is false when the generation has moved on.
func (c *ListCache[T]) SetListAt(ctx context.Context, gen int64, list []T) (stored bool, err error) {
	if list == nil {
		list = []T{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return false, fmt.Errorf("cache encode %s: %w", c.key, err)
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, c.genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, b, c.ttl)
			return nil
		})
		return err
	}, c.genKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("cache set %s: %w", c.key, err)
	}
}

// Invalidate bumps the generation and drops the cached list.
func (c *ListCache[T]) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate %s: %w", c.key, err)
	}
	return nil
}
