package cache

import "time"

// RedisConfig holds the connection settings of the shared L2 cache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string // namespaces every key
}

type RedisOption func(*RedisConfig)

// WithRedisEndpoint points the cache at addr (host:port) and selects db.
func WithRedisEndpoint(addr, password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Addr = addr
		c.Password = password
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings. Zero values keep the defaults.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if poolSize > 0 {
			c.PoolSize = poolSize
		}
		if minIdleConns > 0 {
			c.MinIdleConns = minIdleConns
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// MemoryConfig bounds the in-process cache.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration // zero disables the sweeper
	Clock           func() time.Time
}

type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}

// WithMemoryClock overrides the time source used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) {
		if now != nil {
			c.Clock = now
		}
	}
}

// LayeredConfig sizes the L1 in front of redis.
type LayeredConfig struct {
	MemoryMaxSize int
	// MemoryTTL bounds how long an L2 hit is kept in L1. An L2 entry closer to
	// expiry is kept only for its remaining lifetime.
	MemoryTTL time.Duration
	Clock     func() time.Time
}

type LayeredOption func(*LayeredConfig)

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryMaxSize = size }
}

func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryTTL = ttl }
}

// WithLayeredClock overrides the time source of the L1 layer.
func WithLayeredClock(now func() time.Time) LayeredOption {
	return func(c *LayeredConfig) {
		if now != nil {
			c.Clock = now
		}
	}
}
