// 版权所有 2024 PromptGate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 budget 实现滚动成本预算的记账、审批、对账与告警。

# 概述

本包是预算治理的核心：CostModel 将 Token 量换算为货币成本，Ledger 维护
日 / 月两个周期的用量账本，Gate 执行优先级感知的审批并登记在途预留，
Recorder 以实际用量对账并销毁预留，AlertEngine 在阈值越线时产生告警。

# 核心类型

  - CostModel   — (输入, 输出) Token → 成本的纯函数，负数快速失败
  - Ledger      — 日 / 月周期账本，边界整体滚动，查询返回快照
  - Gate        — 审批入口，拒绝时附替代方案，过期预留定时清扫
  - Recorder    — 估算 vs 实际的对账器，未知预留仅告警不报错
  - AlertEngine — 有界环形缓冲的告警引擎，不去重

# 并发模型

账本与预留表是共享可变状态，全部互斥保护；只读查询返回副本。
告警回调在独立 goroutine 中派发，清扫器随 Gate 的 Close 停止。
*/
package budget
