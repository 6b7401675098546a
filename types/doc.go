// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentRoom 的全局共享错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。房间、编排、生成与 API 层
共用同一套结构化错误，API 层据错误码映射 HTTP 状态码。

# 核心类型

  - Error / ErrorCode — 结构化错误：错误码、消息、Cause、Retryable、RoomID

# 主要能力

  - 链式构造：NewError(code, msg).WithCause(err).WithRoom(id)
  - errors.Is 按错误码匹配：errors.Is(err, types.NewError(types.ErrRoomNotFound, ""))
  - 查询工具：GetErrorCode / IsRetryable / IsNotFound
*/
package types
