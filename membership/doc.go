// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 membership 决定并执行房间成员的加入与离开。

# 加入规则

房间内 active 与 joining 参与者少于 MaxParticipants（默认 6）时，
对每个不在房间中的已知 Persona 独立做一次伯努利试验（默认概率 0.5），
通过者各产生一个 join 事件。

# 离开规则

自主离开默认关闭（Policy.AutonomousLeave=false），成员减少只来自外部的
显式移除调用。显式开启后，非主导的 active 参与者按 LeaveProbability 离开。

# 执行

Execute 并发执行事件：join 先调用 AddParticipant 再生成自我介绍
（失败时使用通用问候语），leave 调用 RemoveParticipant。事件之间互不影响。
*/
package membership
