// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、房间、编排运行与文本生成四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 同时实现 room.Observer 与 generation.CallObserver，
可直接挂到房间存储与生成包装器上。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 房间指标：存活房间数、按原因的移除计数、参与者状态分布。
  - 会话指标：发言轮次、按原因的主导权移交、按类型的成员变更。
  - 运行与生成指标：编排运行次数与耗时、生成调用结果与耗时。
*/
package metrics
