// Package cache provides an optional response cache for analysis results
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nemonet1337/zaiReconcile/internal/config"
)

const (
	keyPrefix     = "reconcile"
	scanBatchSize = 100
	defaultTTL    = time.Minute
)

// AnalyticsCache stores JSON-encoded analysis results by kind and request key
// 分析結果をJSONで保持するキャッシュ
type AnalyticsCache interface {
	Get(ctx context.Context, kind string, request interface{}, dest interface{}) (bool, error)
	Set(ctx context.Context, kind string, request interface{}, value interface{}) error
	InvalidateOrganization(ctx context.Context, organizationID string) error
	Close() error
}

type redisAnalyticsCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopAnalyticsCache struct{}

// NewAnalyticsCache returns a Redis backed cache, or a no-op cache when caching is disabled
// キャッシュ無効時は何もしないキャッシュを返す
func NewAnalyticsCache(cfg config.CacheConfig) (AnalyticsCache, error) {
	if !cfg.Enabled {
		return NewNoopAnalyticsCache(), nil
	}

	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis pingに失敗しました: %w", err)
	}

	return NewRedisAnalyticsCache(client, cfg.TTL), nil
}

// NewRedisAnalyticsCache wraps an existing client
func NewRedisAnalyticsCache(client *redis.Client, ttl time.Duration) AnalyticsCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisAnalyticsCache{client: client, ttl: ttl}
}

// NewNoopAnalyticsCache returns a cache that never hits
func NewNoopAnalyticsCache() AnalyticsCache {
	return &noopAnalyticsCache{}
}

func (c *redisAnalyticsCache) Get(ctx context.Context, kind string, request interface{}, dest interface{}) (bool, error) {
	key, err := BuildKey(kind, request)
	if err != nil {
		return false, err
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis getに失敗しました: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("キャッシュのデコードに失敗しました: %w", err)
	}
	return true, nil
}

func (c *redisAnalyticsCache) Set(ctx context.Context, kind string, request interface{}, value interface{}) error {
	key, err := BuildKey(kind, request)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗しました: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setに失敗しました: %w", err)
	}
	return nil
}

// InvalidateOrganization removes every cached result of an organization
// 組織単位でキャッシュを削除
func (c *redisAnalyticsCache) InvalidateOrganization(ctx context.Context, organizationID string) error {
	pattern := fmt.Sprintf("%s:*:%s:*", keyPrefix, organizationID)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scanに失敗しました: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis deleteに失敗しました: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *redisAnalyticsCache) Close() error {
	return c.client.Close()
}

func (n *noopAnalyticsCache) Get(ctx context.Context, kind string, request interface{}, dest interface{}) (bool, error) {
	return false, nil
}

func (n *noopAnalyticsCache) Set(ctx context.Context, kind string, request interface{}, value interface{}) error {
	return nil
}

func (n *noopAnalyticsCache) InvalidateOrganization(ctx context.Context, organizationID string) error {
	return nil
}

func (n *noopAnalyticsCache) Close() error {
	return nil
}

// organizationScoped is implemented by requests that carry an organization
type organizationScoped interface {
	Organization() string
}

// BuildKey derives "reconcile:{kind}:{org}:{sha1 of request JSON}"
// リクエスト内容からキャッシュキーを生成
func BuildKey(kind string, request interface{}) (string, error) {
	raw, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("キャッシュキーの生成に失敗しました: %w", err)
	}
	org := "_"
	if scoped, ok := request.(organizationScoped); ok && scoped.Organization() != "" {
		org = scoped.Organization()
	}
	hash := sha1.Sum(raw)
	return strings.Join([]string{keyPrefix, kind, org, hex.EncodeToString(hash[:])}, ":"), nil
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("無効なredis URLです: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
