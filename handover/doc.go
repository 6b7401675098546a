// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 handover 判断房间主导权是否应当转移。

按顺序检查两个触发条件，先命中者生效：

  - 话题漂移（topic_shift）：当前与上一话题向量均非空且余弦相似度低于阈值
    （默认 0.5）时，选取对当前话题亲和度最高的 active 参与者；
    若其不同于现任主导者则建议移交。
  - 轮次上限（turn_limit）：TurnsSinceDominantChange 达到上限（默认 7）时，
    在除主导者外的 active 参与者中选择历史发言最少者，平局按参与者顺序。

Manager 只给出建议，由调用方通过 room.Store.SetDominant 应用。
*/
package handover
