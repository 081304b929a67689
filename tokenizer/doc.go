// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

/*
Package tokenizer 提供可注入的 Token 计数能力。

# 概述

默认实现是字符数近似（约每 4 个字符一个 token），显式不是真实分词器；
需要精确计数的调用方可注入基于 tiktoken 的计数器，或通过注册表按名称
选择实现。

# 核心类型

  - Counter          — 统一计数接口（Count + Name）
  - HeuristicCounter — 字符近似计数器（默认）
  - TiktokenCounter  — 基于 pkoukk/tiktoken-go 的精确计数器

# 主要能力

  - 注册表：Register / Get / GetOrHeuristic，按名称解析计数器
  - 懒加载：tiktoken 编码在首次使用时初始化
*/
package tokenizer
