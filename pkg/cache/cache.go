package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is a byte-oriented key/value cache. Values are JSON encoded on Set and
// decoded into dest on Get, so every backend round-trips the same way.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Close() error
}

// TTLReader is implemented by backends that can report how long a key has left.
// A zero duration means the key never expires; a missing key is ErrCacheMiss.
type TTLReader interface {
	TTL(ctx context.Context, key string) (time.Duration, error)
}

var (
	_ TTLReader = (*MemoryCache)(nil)
	_ TTLReader = (*RedisCache)(nil)
)

// GetTyped is a generic helper around Service.Get.
func GetTyped[T any](ctx context.Context, c Service, key string) (T, error) {
	var out T
	err := c.Get(ctx, key, &out)
	return out, err
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	case *string:
		*d = string(data)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
