// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

// Package optimizer 提供多策略的提示词优化引擎.
//
// 引擎围绕五种互斥策略组织: 规则压缩（compression）、模板渲染
// （template-based）、约束重构（context-aware）、按 Token 规模自适应
// （adaptive）以及预留给学习钩子的 ml-driven。策略由 StrategySelector
// 按固定规则顺序选取，调用方也可在请求中显式指定。
//
// 所有优化产物都经过质量评分（0-100）。低于请求阈值的结果标记为失败
// 并附带未优化的回退建议，优化过程中的任何 panic 都会被捕获并转换为
// 失败结果，不向调用方传播。
//
// 会话记忆按调用方提供的 session id 组织，仅保留有限历史；跨会话
// 学习通过 LearningHook 接口暴露，默认实现为空操作。
package optimizer
