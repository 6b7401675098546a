/*
包 migration 管理 persona 存储的版本化 Schema，支持 PostgreSQL、
MySQL 与 SQLite 三种方言，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中。迁移器不自行
建立连接，而是复用 internal/database 打开的 *sql.DB，因此与服务
运行时使用同一套驱动与 DSN。

# 核心类型

  - Migrator：Up/Down/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：封装 golang-migrate 实例，取消 context 时在当前
    迁移完成后优雅停止，日志通过 zap 输出。
  - CLI：agentroom migrate 子命令使用的格式化输出层。

# 与 AutoMigrate 的关系

database.auto_migrate 开启时服务启动会执行 GORM AutoMigrate；生产
环境建议关闭它并通过 agentroom migrate up 管理 Schema。
*/
package migration
