package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache 按实体ID缓存的通用TTL缓存
// ACL账号缓存与传感器限值缓存共用同一实现
type TTLCache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewTTL 创建TTL缓存
// maxEntries <= 0 表示不限制条目数
func NewTTL[V any](maxEntries int, ttl time.Duration) *TTLCache[V] {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &TTLCache[V]{
		lru: expirable.NewLRU[string, V](maxEntries, nil, ttl),
	}
}

// Get 读取缓存，过期条目视为不存在
func (c *TTLCache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set 写入缓存（整体替换该key的条目）
func (c *TTLCache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete 删除单个条目
func (c *TTLCache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Purge 清空全部条目（reload时使用）
func (c *TTLCache[V]) Purge() {
	c.lru.Purge()
}

// Len 当前条目数
func (c *TTLCache[V]) Len() int {
	return c.lru.Len()
}
