// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 orchestrator 驱动一次会话触发（新帖子或新消息）所引发的有限轮次对话。

# 运行流程

Run 获取或创建作用域对应的房间并更新话题，取得房间运行租约后随机
决定 3-5 轮。每一轮：

 1. speaker.Selector 选出发言者（房间尚无主导者时，首位发言者成为主导者）
 2. 生成 thinking 与对话文本（失败时使用兜底文本）
 3. room.Store.RecordTurn 记录发言
 4. handover.Manager 检查并应用主导权移交
 5. 追加到内存历史，停顿约 100ms

全部轮次结束后调用一次 membership.Manager 检查并执行成员变更，
返回产生的消息与事件。

# 取消

DeleteScope 与 Shutdown 只在轮次边界生效：当前轮次总会完整结束，
房间不会停留在半更新状态。同一房间同一时刻只允许一个运行，
重复触发返回 ErrRunInProgress。
*/
package orchestrator
