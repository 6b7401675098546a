// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 speaker 实现房间内下一位发言者的选择。

# 评分

对每个 active 参与者独立计算以下分量并相加，结果截断到 [0,1]：

  - 话题亲和度（0.4）：Σ affinity(persona, topic) × topicWeight
  - 新近度（0.2）：min(1, (历史长度 - 最近发言位置) / 10)，从未发言记 1
  - 主导加成（+0.2）：主导者且 TurnsSinceDominantChange < 5
  - 公平性（0.1）：发言占比低于平均时最多上浮 15%，高于平均时递减至 0
  - 内容匹配（0.1）：关键词重合、问句、长消息与情绪化消息加成
  - 重复发言惩罚（-0.15）

# 抽样

分数归一化后做温度锐化 p^(1/T)（默认 T=0.7），再按权重从注入的
rng.Source 抽样；总分为 0 时均匀随机。每次选择以 Info 级别记录前三名候选。
*/
package speaker
