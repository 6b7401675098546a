// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persona 定义编排核心所消费的 Persona 目录边界。

# 核心类型

  - Descriptor：Persona 描述，包含名称、描述、五个性格滑块（Traits）、
    关键词、话题兴趣表以及是否"外向表达型"
  - Directory：List / Get 查询接口，未找到时返回 ErrNotFound
  - AffinityFunc：(persona, topic) → [0,1] 的话题亲和度扩展点

# 内置实现

  - MemoryDirectory：有序内存目录
  - GormDirectory：基于 GORM 的持久化目录（postgres / mysql / sqlite）
  - LoadFile / ParseYAML：从 YAML 种子文件加载 Persona

# 亲和度

UniformAffinity、RandomAffinity 与 InterestAffinity 三种实现可自由组合；
RandomAffinity 必须注入 rng.Source，保证测试可复现。
*/
package persona
