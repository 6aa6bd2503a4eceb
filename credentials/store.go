// Package credentials implements the orchestrator's secret lookup:
// LookupSecret(name) consults, in order, a remote secret store, a
// Redis-backed cache with TTL, and finally the process environment.
// A value found in the remote tier is written back to the cache so a
// later lookup of the same name is cheaper; cache and environment hits
// are not written anywhere.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by a tier that has no value for name. It is
// not an error condition for Store.LookupSecret itself unless every tier
// misses.
var ErrNotFound = errors.New("credentials: secret not found")

// RemoteSecretStore is the out-of-scope remote tier: no vendor secret
// manager is named by the system this module implements, so callers
// that have one wire it in; the default used by New is a no-op that
// always misses.
type RemoteSecretStore interface {
	LookupSecret(ctx context.Context, name string) (string, error)
}

type noopRemote struct{}

func (noopRemote) LookupSecret(ctx context.Context, name string) (string, error) {
	return "", ErrNotFound
}

// cache is the narrow slice of internal/cache.Manager's API this tier
// needs; satisfied by *cache.Manager.
type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Store resolves secrets through the remote, cache, and environment
// tiers, in that order.
type Store struct {
	remote   RemoteSecretStore
	cache    cache
	cacheTTL time.Duration
	envPrefix string
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRemote overrides the default no-op remote tier.
func WithRemote(r RemoteSecretStore) Option {
	return func(s *Store) { s.remote = r }
}

// WithCache wires a Redis-backed (or any cache-shaped) second tier and
// its entry TTL. Omit this option to skip straight from remote to env.
func WithCache(c cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithEnvPrefix sets a prefix prepended to name before the environment
// lookup, e.g. "ORCH_" turns LookupSecret("gemini_api_key") into
// os.Getenv("ORCH_GEMINI_API_KEY").
func WithEnvPrefix(prefix string) Option {
	return func(s *Store) { s.envPrefix = prefix }
}

// New builds a Store. With no options it resolves secrets from the
// environment only, mirroring cmd/agentflow's plain os.Getenv config
// resolution.
func New(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{remote: noopRemote{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupSecret resolves name through remote, then cache, then the
// environment. A value found in remote is written back to cache (if
// configured); a value found in cache is not re-written to remote,
// since the cache is strictly downstream of it.
func (s *Store) LookupSecret(ctx context.Context, name string) (string, error) {
	if v, err := s.remote.LookupSecret(ctx, name); err == nil {
		if s.cache != nil {
			if err := s.cache.Set(ctx, s.cacheKey(name), v, s.cacheTTL); err != nil {
				s.logger.Warn("credentials: cache write-through failed", zap.String("name", name), zap.Error(err))
			}
		}
		return v, nil
	}

	if s.cache != nil {
		if v, err := s.cache.Get(ctx, s.cacheKey(name)); err == nil {
			return v, nil
		}
	}

	if v, ok := s.lookupEnv(name); ok {
		return v, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (s *Store) cacheKey(name string) string {
	return "orchestrator:secret:" + name
}

func (s *Store) lookupEnv(name string) (string, bool) {
	key := s.envPrefix + strings.ToUpper(name)
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
