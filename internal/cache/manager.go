package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager is a connection-pooled Redis cache client.
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Config configures a Manager.
type Config struct {
	Addr                string        `yaml:"addr" json:"addr"`
	Password            string        `yaml:"password" json:"password"`
	DB                  int           `yaml:"db" json:"db"`
	DefaultTTL          time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	PoolSize            int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns        int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig returns sane pool and TTL defaults for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DB:                  0,
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager dials Redis and starts the background health check. It
// returns an error if the initial ping fails.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connecting to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	logger.Info("cache manager started", zap.String("addr", config.Addr), zap.Int("pool_size", config.PoolSize))
	return m, nil
}

// Get returns the stored string, or ErrCacheMiss if key is absent.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", fmt.Errorf("cache: manager is closed")
	}

	val, err := m.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache: get: %w", err)
	}
	return val, nil
}

// Set stores value under key with ttl, or Config.DefaultTTL if ttl is zero.
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// GetJSON unmarshals the cached value at key into dest.
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: unmarshal: %w", err)
	}
	return nil
}

// SetJSON marshals value and stores it under key with ttl.
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete removes keys. A missing key is not an error.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Exists returns how many of keys are present.
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, fmt.Errorf("cache: manager is closed")
	}
	count, err := m.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: exists: %w", err)
	}
	return count, nil
}

// Expire resets the TTL on an existing key.
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}
	if err := m.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("cache: expire: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}
	return m.redis.Ping(ctx).Err()
}

// Close stops the health check loop and closes the Redis connection.
// Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing cache manager")
	return m.redis.Close()
}

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		closed := m.closed
		m.mu.RUnlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			m.logger.Error("cache health check failed", zap.Error(err))
		}
		cancel()
	}
}

// ErrCacheMiss is returned by Get/GetJSON when key is absent.
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss reports whether err is ErrCacheMiss.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
