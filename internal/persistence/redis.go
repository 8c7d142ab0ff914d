package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the current state under <prefix>status.cf and history entries
// under <prefix>history/status_<timestamp>.cf. SET replaces a value
// atomically.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis returns a backend using client.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) String() string { return "redis://" + r.prefix }

func (r *Redis) key(name string) string { return r.prefix + name }

// Load implements Backend.
func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(currentName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}

	return data, err
}

// Save implements Backend.
func (r *Redis) Save(ctx context.Context, data []byte) error {
	key := r.key(currentName)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// SaveSnapshot implements Backend.
func (r *Redis) SaveSnapshot(ctx context.Context, timestamp string, data []byte) error {
	key := r.key(historyDir + "/" + historyName(timestamp))
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}
