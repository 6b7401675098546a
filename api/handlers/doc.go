// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentRoom HTTP API 的请求处理器实现。

# 概述

handlers 包实现房间查询、运行触发、作用域删除、WebSocket 实时流
以及健康检查端点。所有 Handler 均遵循标准 net/http 接口，路由
由 Go 1.22 的模式路由注册（见 cmd/agentroom）。

# 核心类型

  - RoomHandler      — 房间列表与查询、触发运行（同步或异步）、删除作用域
  - StreamHandler    — 通过 WebSocket 推送广播事件，可按作用域过滤
  - HealthHandler    — 存活与就绪检查（/health, /ready）及版本信息
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、room_id、retryable
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，透传 Flush/Hijack

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - ErrorCode → HTTP 状态码映射：RUN_IN_PROGRESS → 409、ROOM_NOT_FOUND → 404、
    SHUTTING_DOWN → 503
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）
  - 可扩展就绪检查：RegisterCheck 注册数据库、Redis 等 PingCheck
*/
package handlers
