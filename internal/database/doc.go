// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开人格目录所用的数据库连接。

# 概述

Open 按驱动名（postgres、mysql、sqlite）选择 GORM 方言并建立连接，
随后由 PoolManager 统一配置连接池、执行后台健康检查并在关闭时
回收连接。sqlite 使用纯 Go 驱动，无需 cgo。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 与事务辅助方法。
  - PoolConfig：最大空闲连接数、最大打开连接数、连接生命周期与
    健康检查间隔。

# 主要能力

  - 事务：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、sqlite 锁冲突等瞬时错误做指数退避重试。
  - 健康检查：定时 PingContext，Close 时停止并等待退出。
*/
package database
