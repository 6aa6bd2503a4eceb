package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	data map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

type fakeRemote struct {
	values map[string]string
}

func (r *fakeRemote) LookupSecret(ctx context.Context, name string) (string, error) {
	v, ok := r.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func TestLookupSecret_EnvFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-value")
	s := New(nil)

	v, err := s.LookupSecret(context.Background(), "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "env-value", v)
}

func TestLookupSecret_EnvPrefix(t *testing.T) {
	t.Setenv("ORCH_GEMINI_API_KEY", "prefixed-value")
	s := New(nil, WithEnvPrefix("ORCH_"))

	v, err := s.LookupSecret(context.Background(), "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "prefixed-value", v)
}

func TestLookupSecret_NotFoundAnywhere(t *testing.T) {
	s := New(nil)
	_, err := s.LookupSecret(context.Background(), "nonexistent_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupSecret_CacheHitSkipsEnv(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "wrong-value")
	c := newFakeCache()
	s := New(nil, WithCache(c, time.Minute))
	c.data[s.cacheKey("claude_api_key")] = "cached-value"

	v, err := s.LookupSecret(context.Background(), "claude_api_key")
	require.NoError(t, err)
	assert.Equal(t, "cached-value", v)
}

func TestLookupSecret_RemoteHitPopulatesCache(t *testing.T) {
	c := newFakeCache()
	r := &fakeRemote{values: map[string]string{"openai_api_key": "remote-value"}}
	s := New(nil, WithRemote(r), WithCache(c, time.Minute))

	v, err := s.LookupSecret(context.Background(), "openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "remote-value", v)

	cached, err := c.Get(context.Background(), s.cacheKey("openai_api_key"))
	require.NoError(t, err)
	assert.Equal(t, "remote-value", cached)
}

func TestLookupSecret_TierOrder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-value")
	c := newFakeCache()
	c.data["orchestrator:secret:openai_api_key"] = "cache-value"
	r := &fakeRemote{values: map[string]string{"openai_api_key": "remote-value"}}

	s := New(nil, WithRemote(r), WithCache(c, time.Minute))
	v, err := s.LookupSecret(context.Background(), "openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "remote-value", v, "remote tier must win over cache and env")
}
