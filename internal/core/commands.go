package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/redislite/internal/sentinel"
)

// ErrKeyNotFound is returned by Get for a key that does not exist.
const ErrKeyNotFound = sentinel.Error("key not found")

// The command functions below back both Client and AsyncClient, so the two
// surfaces cannot drift apart.

func cmdPing(ctx context.Context, rdb *redis.Client) (string, error) {
	return rdb.Ping(ctx).Result()
}

func cmdGet(ctx context.Context, rdb *redis.Client, key string) (string, error) {
	v, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return v, err
}

func cmdSet(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) (string, error) {
	return rdb.Set(ctx, key, value, ttl).Result()
}

func cmdDel(ctx context.Context, rdb *redis.Client, keys []string) (int64, error) {
	return rdb.Del(ctx, keys...).Result()
}

func cmdExists(ctx context.Context, rdb *redis.Client, keys []string) (int64, error) {
	return rdb.Exists(ctx, keys...).Result()
}

func cmdKeys(ctx context.Context, rdb *redis.Client, pattern string) ([]string, error) {
	return rdb.Keys(ctx, pattern).Result()
}

func cmdFlushDB(ctx context.Context, rdb *redis.Client) (string, error) {
	return rdb.FlushDB(ctx).Result()
}

func cmdSave(ctx context.Context, rdb *redis.Client) (string, error) {
	return rdb.Save(ctx).Result()
}

func cmdInfo(ctx context.Context, rdb *redis.Client, sections []string) (string, error) {
	return rdb.Info(ctx, sections...).Result()
}

// cmdDo runs an arbitrary command. A nil reply is returned as a nil value
// rather than an error.
func cmdDo(ctx context.Context, rdb *redis.Client, args []any) (any, error) {
	v, err := rdb.Do(ctx, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

func cmdListGraphs(ctx context.Context, rdb *redis.Client) ([]string, error) {
	return rdb.Do(ctx, "GRAPH.LIST").StringSlice()
}
