// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 AgentRoom 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → AGENTROOM_* 环境变量 的顺序加载，
// 各子配置提供到运行时组件配置（room.Config、handover.Config、
// membership.Policy 等）的转换方法。FileWatcher 以轮询方式监听
// 文件变更，用于 Persona 种子文件的热重载。
package config
