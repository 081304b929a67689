package tokenizer

import (
	"fmt"
	"sync"
)

// Counter是统一的代号计数界面.
type Counter interface {
	// Count 返回给定文本的 token 数.
	Count(text string) (int64, error)

	// Name 返回计数器的名称.
	Name() string
}

// 全局计数器注册表.
var (
	counters   = make(map[string]Counter)
	countersMu sync.RWMutex
)

// Register 为给定名称注册计数器.
func Register(name string, c Counter) {
	countersMu.Lock()
	defer countersMu.Unlock()
	counters[name] = c
}

// Get 返回以给定名称注册的计数器 。
// 它也尝试了前缀匹配(如"tiktoken"匹配"tiktoken[cl100k_base]").
func Get(name string) (Counter, error) {
	countersMu.RLock()
	defer countersMu.RUnlock()

	if c, ok := counters[name]; ok {
		return c, nil
	}

	// 尝试前缀匹配 。
	for prefix, c := range counters {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no token counter registered for name: %s", name)
}

// GetOrHeuristic 返回注册的计数器, 如果没有登记,则回到字符近似估计器。
func GetOrHeuristic(name string) Counter {
	c, err := Get(name)
	if err != nil {
		return NewHeuristicCounter(0)
	}
	return c
}
