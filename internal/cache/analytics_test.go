package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiReconcile/internal/config"
	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
)

func TestBuildKey(t *testing.T) {
	req := reconcile.DailyRequest{OrganizationID: "org-1", Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}

	key, err := BuildKey("daily", req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "reconcile:daily:org-1:"))

	same, err := BuildKey("daily", req)
	require.NoError(t, err)
	assert.Equal(t, key, same)

	req.IncludeVoided = true
	other, err := BuildKey("daily", req)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	unscoped, err := BuildKey("misc", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(unscoped, "reconcile:misc:_:"))
}

func TestNoopAnalyticsCache(t *testing.T) {
	c, err := NewAnalyticsCache(config.CacheConfig{Enabled: false})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "daily", reconcile.AnalyticsRequest{OrganizationID: "org-1"}, map[string]int{"x": 1}))

	var dest map[string]int
	hit, err := c.Get(ctx, "daily", reconcile.AnalyticsRequest{OrganizationID: "org-1"}, &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.InvalidateOrganization(ctx, "org-1"))
	assert.NoError(t, c.Close())
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@cache.internal:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = buildRedisOptions(config.CacheConfig{RedisPassword: "pw", RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)

	_, err = buildRedisOptions(config.CacheConfig{RedisURL: "http://bad"})
	assert.Error(t, err)
}
