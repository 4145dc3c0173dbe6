package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheItem struct {
	data      any
	expiresAt time.Time
}

// TTLCache 带过期时间的 LRU 本地缓存
type TTLCache struct {
	lruCache *lru.Cache[string, cacheItem]
	now      func() time.Time
}

func NewTTLCache(size int) (*TTLCache, error) {
	l, err := lru.New[string, cacheItem](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache{lruCache: l, now: time.Now}, nil
}

// Set 设置缓存，TTL 为过期时间
func (c *TTLCache) Set(key string, data any, ttl time.Duration) {
	c.lruCache.Add(key, cacheItem{
		data:      data,
		expiresAt: c.now().Add(ttl),
	})
}

// Get 获取缓存，不存在或已过期时 ok 为 false
func (c *TTLCache) Get(key string) (any, bool) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(val.expiresAt) {
		c.lruCache.Remove(key)
		return nil, false
	}
	return val.data, true
}

func (c *TTLCache) Delete(key string) {
	c.lruCache.Remove(key)
}

// DeletePrefix 删除所有以 prefix 开头的键
func (c *TTLCache) DeletePrefix(prefix string) {
	for _, key := range c.lruCache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.lruCache.Remove(key)
		}
	}
}
