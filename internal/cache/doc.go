// 版权所有 2024 PromptGate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的优化结果缓存，前置本地 LRU 层，
支持连接池、健康检查与优雅关闭。

# 概述

本包封装 go-redis 客户端，按请求指纹缓存序列化后的优化结果。
未命中返回 optimizer.ErrCacheMiss；Redis 故障只降低命中率，
不会阻塞或改变优化主路径的决策。

# 核心类型

  - ResultCache：两级结果缓存，本地 LRU 在前、Redis 在后，
    实现 optimizer.ResultCache 接口并额外提供 Invalidate。
  - Config：缓存配置，包含地址、密码、连接池大小、条目 TTL、
    本地层容量与健康检查间隔等参数。

# 主要能力

  - 结果存取：OptimizationResult 的 JSON 序列化读写。
  - 本地回填：Redis 命中后写入本地层，热键免网络往返。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 优雅关闭：Close 方法安全释放底层 Redis 连接。
*/
package cache
