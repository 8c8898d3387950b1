package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures NewRedisStore. URL may be a redis:// or
// rediss:// URL or a bare host:port. Password and DB, when set, override
// what the URL carries.
type RedisOptions struct {
	URL      string
	Password string
	DB       int
}

func (o RedisOptions) clientOptions() (*redis.Options, error) {
	var opts *redis.Options
	if strings.Contains(o.URL, "://") {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: o.URL}
	}
	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB != 0 {
		opts.DB = o.DB
	}
	return opts, nil
}

// RedisStore keeps each key as a plain string value without expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	clientOpts, err := opts.clientOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(clientOpts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
