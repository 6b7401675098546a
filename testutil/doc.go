// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentRoom 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel，
    支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: Mock 实现，包括 MockGenerator（文本生成器）与
    RecordingSink（事件广播），均支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供预置 Persona、话题与触发样例

# 使用示例

	ctx := testutil.TestContext(t)
	gen := mocks.NewMockGenerator().WithDialogue("hello")
	text, err := gen.DialogueTurn(ctx, fixtures.Alice(), "", nil)
	require.NoError(t, err)
*/
package testutil
