//go:build integration

package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"tabserve/internal/errors"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	endpoint, err := c.ConnectionString(ctx)
	require.NoError(t, err)
	return strings.TrimPrefix(endpoint, "redis://")
}

func TestRedisStore_PersistRetrieve(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	art, err := s.Persist(ctx, samplePayload())
	require.NoError(t, err)
	assert.Regexp(t, namePattern, art.Name)

	b, err := s.Retrieve(ctx, art.Name)
	require.NoError(t, err)
	p, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Count)

	_, err = s.Retrieve(ctx, "does-not-exist.json")
	assert.True(t, errors.IsNotFound(err))
}

func TestRedisStore_Expiry(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, TTL: time.Second})
	require.NoError(t, err)
	defer s.Close()

	art, err := s.Persist(ctx, samplePayload())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.Retrieve(ctx, art.Name)
		return errors.IsNotFound(err)
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisStore_CloseIsIdempotent(t *testing.T) {
	addr := setupRedis(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{})
	assert.Error(t, err)
	_, err = NewRedisStore(context.Background(), RedisOptions{Addr: "localhost:6379", DB: -1})
	assert.Error(t, err)
}
