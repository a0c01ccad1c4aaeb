package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presence key: presence:<identity>
// Value is the gateway id; the TTL bounds staleness after a crash.
func key(identity string) string { return "presence:" + identity }

// RedisMirror implements Mirror on top of a redis instance.
type RedisMirror struct {
	rdb       *redis.Client
	gatewayID string
	ttl       time.Duration
}

// RedisOptions configures a RedisMirror.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	GatewayID string
	TTL       time.Duration
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisMirror, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisMirror{
		rdb:       rdb,
		gatewayID: opts.GatewayID,
		ttl:       opts.TTL,
	}, nil
}

// Online sets the presence key and renews its TTL.
func (m *RedisMirror) Online(ctx context.Context, identity string) error {
	return m.rdb.Set(ctx, key(identity), m.gatewayID, m.ttl).Err()
}

// Offline deletes the presence key.
func (m *RedisMirror) Offline(ctx context.Context, identity string) error {
	return m.rdb.Del(ctx, key(identity)).Err()
}

// Close closes the redis connection.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}
