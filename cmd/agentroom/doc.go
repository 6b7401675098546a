// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentRoom 服务端程序入口。

# 概述

cmd/agentroom 是多人格对话编排服务的可执行入口，提供 HTTP/WebSocket 服务、
本地模拟、人格库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标、OpenTelemetry 追踪以及人格文件热重载。

# 核心类型

  - app         — 组件装配：房间存储、人格目录、生成器、编排器、广播中心、Redis 镜像
  - Server      — HTTP 服务，/metrics 与业务路由共用一个端口
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、simulate（本地运行并输出 JSON）、migrate、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、Metrics、CORS、RateLimiter（基于 IP，探针路径豁免）
  - 人格热重载：文件来源开启 watch 后变更即替换目录
  - 优雅关闭：信号 → 停止 HTTP → 关闭编排器并取消运行中的对话 → 等待异步触发
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
