package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gut-health-kb/internal/core/ingredient"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Cache 成分讀取快取，寫入操作會使相關鍵失效
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) (*ingredient.Ingredient, bool)
	Set(ctx context.Context, key string, ing *ingredient.Ingredient)
	Delete(ctx context.Context, keys ...string)
}

func nameKey(name string) string {
	return "ingredient:name:" + strings.ToLower(strings.TrimSpace(name))
}

func idKey(id uuid.UUID) string {
	return "ingredient:id:" + id.String()
}

// keysFor 回傳成分所有快取鍵
func keysFor(ing *ingredient.Ingredient) []string {
	return []string{nameKey(ing.Name), idKey(ing.ID)}
}

// MemoryCache 以 go-cache 實現的程序內快取
type MemoryCache struct {
	store *cache.Cache
}

// NewMemoryCache 創建程序內快取，cleanupInterval 為 0 時不啟動清理協程
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{store: cache.New(ttl, cleanupInterval)}
}

// Name 快取名稱
func (m *MemoryCache) Name() string { return "memory" }

// Get 取得快取的成分副本
func (m *MemoryCache) Get(_ context.Context, key string) (*ingredient.Ingredient, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	ing := v.(ingredient.Ingredient)
	return &ing, true
}

// Set 儲存成分副本
func (m *MemoryCache) Set(_ context.Context, key string, ing *ingredient.Ingredient) {
	m.store.SetDefault(key, *ing)
}

// Delete 刪除快取鍵
func (m *MemoryCache) Delete(_ context.Context, keys ...string) {
	for _, key := range keys {
		m.store.Delete(key)
	}
}

// Flush 清空快取
func (m *MemoryCache) Flush() {
	m.store.Flush()
}

// RedisCache 以 Redis 實現的共享快取，Redis 錯誤一律視為未命中
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache 連線 Redis 並創建快取
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, common.ErrServiceUnavailable.Wrap(err).WithMessage("failed to connect to Redis")
	}

	common.LogInfo("Redis 快取已連線", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	return &RedisCache{client: client, ttl: cfg.TTL}, nil
}

// Name 快取名稱
func (r *RedisCache) Name() string { return "redis" }

// Get 取得並解析快取
func (r *RedisCache) Get(ctx context.Context, key string) (*ingredient.Ingredient, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			common.LogWarn("讀取 Redis 快取失敗", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var ing ingredient.Ingredient
	if err := json.Unmarshal(data, &ing); err != nil {
		common.LogWarn("解析 Redis 快取失敗", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &ing, true
}

// Set 序列化並寫入快取
func (r *RedisCache) Set(ctx context.Context, key string, ing *ingredient.Ingredient) {
	data, err := json.Marshal(ing)
	if err != nil {
		common.LogWarn("序列化快取失敗", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		common.LogWarn("寫入 Redis 快取失敗", zap.String("key", key), zap.Error(err))
	}
}

// Delete 刪除快取鍵
func (r *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		common.LogWarn("刪除 Redis 快取失敗", zap.Strings("keys", keys), zap.Error(err))
	}
}

// Close 關閉 Redis 連線
func (r *RedisCache) Close() error {
	return r.client.Close()
}
