package backend

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed qless.lua
var qlessScript string

var script = redis.NewScript(qlessScript)

// RedisClient executes operations through the qless Lua script. Each
// RedisClient owns its own connection and must not be shared between workers.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient dials Redis and loads the script.
func NewRedisClient(ctx context.Context, opts ...RedisOption) (*RedisClient, error) {
	cfg := &RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if err := script.Load(pingCtx, client).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis script load: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Execute runs op via EVALSHA, falling back to EVAL when the script is not
// cached on the server.
func (r *RedisClient) Execute(ctx context.Context, op string, now float64, args ...interface{}) (interface{}, error) {
	argv := make([]interface{}, 0, len(args)+2)
	argv = append(argv, op, strconv.FormatFloat(now, 'f', 6, 64))
	argv = append(argv, args...)

	res, err := script.Run(ctx, r.client, nil, argv...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &Error{Op: op, Message: err.Error(), Err: err}
	}
	return res, nil
}

// Redis returns the underlying client.
func (r *RedisClient) Redis() *redis.Client {
	return r.client
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
