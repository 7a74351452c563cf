package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checkride/internal/cache"
	"checkride/internal/types"
)

// Cached memoizes geocode lookups per normalized address. Cache entries are
// derived data, so concurrent lookups for the same address may both write;
// last write wins.
type Cached struct {
	inner Geocoder
	store cacheStore
	log   *zap.Logger
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

func NewCached(inner Geocoder, store cacheStore, log *zap.Logger) *Cached {
	return &Cached{inner: inner, store: store, log: log}
}

func (c *Cached) Geocode(ctx context.Context, address string) (types.Point, bool, error) {
	normalized := NormalizeAddress(address)
	if normalized == "" {
		return types.Point{}, false, nil
	}
	key := "geocode:" + normalized

	if raw, ok := c.store.Get(ctx, key); ok {
		var pt types.Point
		if _, err := fmt.Sscanf(raw, "%f,%f", &pt.Lat, &pt.Lng); err == nil {
			return pt, true, nil
		}
	}

	pt, ok, err := c.inner.Geocode(ctx, address)
	if err != nil || !ok {
		return pt, ok, err
	}
	c.store.Set(ctx, key, fmt.Sprintf("%f,%f", pt.Lat, pt.Lng))
	return pt, true, nil
}

// RedisCacheStore keeps geocode results in Redis with a long expiry.
type RedisCacheStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisCacheStore(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCacheStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCacheStore{client: client, ttl: ttl, log: log}
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.log.Warn("geocode cache read failed", zap.Error(err))
		return "", false
	}
	return val, true
}

func (s *RedisCacheStore) Set(ctx context.Context, key, value string) {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		s.log.Warn("geocode cache write failed", zap.Error(err))
	}
}

// MemoryCacheStore is the redis-less variant built on the bounded TTL map.
type MemoryCacheStore struct {
	m *cache.TTLMap
}

func NewMemoryCacheStore(ttl time.Duration, maxSize int) *MemoryCacheStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryCacheStore{m: cache.NewTTLMap(ttl, maxSize)}
}

func (s *MemoryCacheStore) Get(_ context.Context, key string) (string, bool) {
	return s.m.Get(key)
}

func (s *MemoryCacheStore) Set(_ context.Context, key, value string) {
	s.m.Set(key, value)
}
