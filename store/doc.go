// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

/*
Package store 提供用量流水与告警历史的持久化层。

# 概述

核心引擎的全部决策都在内存中完成；本包只做事后落盘，
供账单核对与告警审计使用。持久化失败会被记录并返回给
store API 的调用方，但绝不会阻塞或改变审批、结算路径。

# 使用方法

	db := pool.DB()
	if err := store.InitSchema(db); err != nil {
	    return err
	}
	st := store.NewGormStore(db, logger)
	_ = st.SaveUsage(ctx, &store.UsageRecord{RequestID: "req-1", InputTokens: 500})

生产环境使用 PostgreSQL 驱动；测试使用纯 Go 的 glebarez/sqlite。
*/
package store
