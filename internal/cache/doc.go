// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用于镜像房间快照，
供状态查询与 UI 读取。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭；所有键统一加上 KeyPrefix 前缀。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete、GetJSON/SetJSON
    以及 AddMember/RemoveMember/Members 集合操作。
  - Config：缓存配置，包含地址、密码、键前缀、默认 TTL、
    连接池大小与健康检查间隔等参数。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss / ErrClosed 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
