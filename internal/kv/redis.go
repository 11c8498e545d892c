package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore はRedisを使用したStore実装。
// ListはSCANでプレフィックス一致のキーを列挙し、SCANカーソル0を列挙完了とみなす。
// SCANのCOUNTはヒントのため、1ページの件数はLimitと一致しないことがある。
// また、SCANは同じキーを複数回返すことがある。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// OpenRedis はredis://形式のURLからクライアントを生成し、疎通確認を行う。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// Get は指定キーの値を返す。
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Put は有効期限なしで値を保存する。
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent はSETNXで有効期限なしの値を保存する。
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Delete は指定キーを削除する。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// List はSCANで1ページ分のキーを返す。
func (s *RedisStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var cursor uint64
	if opts.Cursor != "" {
		c, err := strconv.ParseUint(opts.Cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %q", opts.Cursor)
		}
		cursor = c
	}

	keys, next, err := s.rdb.Scan(ctx, cursor, opts.Prefix+"*", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	if keys == nil {
		keys = []string{}
	}

	if next == 0 {
		return &ListResult{Keys: keys, Complete: true}, nil
	}

	return &ListResult{
		Keys:   keys,
		Cursor: strconv.FormatUint(next, 10),
	}, nil
}

var _ Store = (*RedisStore)(nil)
