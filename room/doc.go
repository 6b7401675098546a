// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 room 管理会话房间的完整生命周期：创建、查询、参与者与轮次状态、
定时的参与者状态迁移以及空闲回收。

# 核心类型

  - Room：房间快照，包含参与者列表、当前/上一话题向量、主导者与轮次计数
  - Participant：参与者，状态为 joining / active / leaving
  - History：一次运行内的对话历史
  - Store：房间存储接口；MemoryStore 为进程内实现

# 并发模型

每个房间拥有独立互斥锁，不同房间的修改互不阻塞；读取通过原子发布的
快照完成，不持有房间锁。参与者的延迟移除（RemovalGrace）与 joining
自动转正（SettleDelay）由可取消的定时器驱动，房间删除时全部取消。

# 主导者自愈

每次修改后若主导者不再是 active 参与者，则清空主导者并重置
TurnsSinceDominantChange，保证主导者始终有效或为空。

# 镜像

RedisMirror 作为 Observer 将房间快照写入 Redis，供状态查询使用；
它不参与调度决策。
*/
package room
