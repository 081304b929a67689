// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

// Package gateway 将预算治理与提示词优化装配为单一门面 Governor.
//
// Governor 持有成本模型、账本、审批门、结算器、告警引擎与优化器，
// 并把持久化、指标与结果缓存作为旁路副作用挂接在各组件钩子上。
// 旁路失败只记日志，永远不会改变审批或结算的结果。
// 每个进程（或租户）建一个 Governor 实例，不存在包级单例。
package gateway
