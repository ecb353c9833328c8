package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each actor blob under "<prefix>:<name>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

/*
NewRedisStore connects to dsn, which is either a redis:// URL or a bare host:port,
and pings it once so misconfiguration surfaces at startup.
*/
func NewRedisStore(ctx context.Context, dsn, prefix string) (*RedisStore, error) {
	opts := &redis.Options{Addr: dsn}
	if strings.Contains(dsn, "://") {
		parsed, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing redis dsn: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (rs *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	blob, err := rs.client.Get(ctx, qualified(rs.prefix, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (rs *RedisStore) Save(ctx context.Context, name string, blob []byte) error {
	return rs.client.Set(ctx, qualified(rs.prefix, name), blob, 0).Err()
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
