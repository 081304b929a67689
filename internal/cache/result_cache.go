// Package cache provides the Redis-backed optimization result cache.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/promptgate/optimizer"
	"github.com/BaSui01/promptgate/types"
)

// =============================================================================
// 💾 结果缓存
// =============================================================================

// Config 结果缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// Redis 条目过期时间
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 本地层开关
	EnableLocal bool `yaml:"enable_local" json:"enable_local"`

	// 本地层最大条目数
	LocalMaxSize int `yaml:"local_max_size" json:"local_max_size"`

	// 本地层过期时间
	LocalTTL time.Duration `yaml:"local_ttl" json:"local_ttl"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		TTL:                 time.Hour,
		EnableLocal:         true,
		LocalMaxSize:        512,
		LocalTTL:            5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

func (c *Config) normalize() {
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.LocalMaxSize <= 0 {
		c.LocalMaxSize = 512
	}
	if c.LocalTTL <= 0 {
		c.LocalTTL = 5 * time.Minute
	}
}

// ResultCache 两级优化结果缓存:本地 LRU 在前,Redis 在后。
// 键由调用方生成并自带命名空间前缀,本包不再二次加前缀。
type ResultCache struct {
	redis  *redis.Client
	local  *lruCache
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

var _ optimizer.ResultCache = (*ResultCache)(nil)

// NewResultCache 创建结果缓存并验证 Redis 连通性
func NewResultCache(config Config, logger *zap.Logger) (*ResultCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.normalize()

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var local *lruCache
	if config.EnableLocal {
		local = newLRUCache(config.LocalMaxSize, config.LocalTTL)
	}

	c := &ResultCache{
		redis:  client,
		local:  local,
		config: config,
		logger: logger.With(zap.String("component", "result_cache")),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	}

	logger.Info("result cache initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL),
		zap.Bool("local_tier", config.EnableLocal),
	)

	return c, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 按键查询优化结果。未命中返回 optimizer.ErrCacheMiss,
// 损坏条目当作未命中处理并顺手删除。
func (c *ResultCache) Get(ctx context.Context, key string) (*types.OptimizationResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("result cache is closed")
	}

	// 1. 查本地层
	if c.local != nil {
		if result, ok := c.local.Get(key); ok {
			c.logger.Debug("local cache hit", zap.String("key", key))
			return result, nil
		}
	}

	// 2. 查 Redis
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, optimizer.ErrCacheMiss
		}
		c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("result cache get failed: %w", err)
	}

	var result types.OptimizationResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("discarding corrupt cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		c.redis.Del(ctx, key)
		return nil, optimizer.ErrCacheMiss
	}

	// 回填本地层
	if c.local != nil {
		c.local.Set(key, &result)
	}
	c.logger.Debug("redis cache hit", zap.String("key", key))
	return &result, nil
}

// Set 写入优化结果,两层同时更新。nil 结果直接忽略。
func (c *ResultCache) Set(ctx context.Context, key string, result *types.OptimizationResult) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("result cache is closed")
	}
	if result == nil {
		return nil
	}

	if c.local != nil {
		c.local.Set(key, result)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal optimization result: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("result cache set failed: %w", err)
	}

	return nil
}

// Invalidate 删除指定键,两层同时清理。
func (c *ResultCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("result cache is closed")
	}
	if len(keys) == 0 {
		return nil
	}

	if c.local != nil {
		for _, key := range keys {
			c.local.Delete(key)
		}
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("redis delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("result cache invalidate failed: %w", err)
	}

	return nil
}

// Ping 检查 Redis 连接
func (c *ResultCache) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("result cache is closed")
	}

	return c.redis.Ping(ctx).Err()
}

// LocalStats 返回本地层当前条目数与容量。本地层未启用时返回零值。
func (c *ResultCache) LocalStats() (size int, capacity int) {
	if c.local == nil {
		return 0, 0
	}
	return c.local.Stats()
}

// Close 关闭结果缓存
func (c *ResultCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.local != nil {
		c.local.Clear()
	}
	c.logger.Info("closing result cache")

	return c.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环
func (c *ResultCache) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		c.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Ping(ctx); err != nil {
			c.logger.Error("cache health check failed", zap.Error(err))
		} else {
			c.logger.Debug("cache health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 🔧 本地 LRU 层(双向链表 O(1) 操作)
// =============================================================================

type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	head     *lruNode // 最近使用
	tail     *lruNode // 最久未使用
}

type lruNode struct {
	key       string
	result    types.OptimizationResult
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode),
	}
}

// Get 返回条目副本,过期条目当场淘汰。
func (c *lruCache) Get(key string) (*types.OptimizationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return nil, false
	}

	c.moveToHead(node)
	out := node.result
	return &out, true
}

func (c *lruCache) Set(key string, result *types.OptimizationResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.result = *result
		node.expiresAt = time.Now().Add(c.ttl)
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{
		key:       key,
		result:    *result,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.items[key] = node
	c.addToHead(node)
}

func (c *lruCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.removeNode(node)
		delete(c.items, key)
	}
}

func (c *lruCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*lruNode)
	c.head = nil
	c.tail = nil
}

func (c *lruCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), c.capacity
}

// addToHead 添加节点到头部 O(1)
func (c *lruCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// removeNode 从链表中移除节点 O(1)
func (c *lruCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

// moveToHead 移动节点到头部 O(1)
func (c *lruCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

// evictTail 淘汰尾部节点 O(1)
func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
