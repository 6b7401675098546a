// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 topic 提供话题权重向量与余弦相似度计算。

# 概述

房间的话题上下文用有序的 (topic, weight) 序列表示。FromLabels 在没有
其他信号时为每个去重后的话题分配 1/N 的均匀权重；空输入映射为
权重 1.0 的 "general" 话题。

# 主要能力

  - FromLabels：标签 → 均匀权重向量
  - Cosine：在两侧标签并集上计算余弦相似度，结果对称且位于 [0,1]
  - Vector.Labels / Equal / Clone / Sum：向量辅助方法

handover 包使用 Cosine 检测话题漂移，speaker 包使用权重计算话题亲和度。
*/
package topic
