// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 generation 定义编排核心与外部文本生成服务之间的边界。

# 核心类型

  - Generator：Thinking / Introduction / DialogueTurn 三个生成调用
  - Resilient：为任意 Generator 增加限流、超时、有限重试与兜底文本，
    保证编排循环不会因生成失败而停滞
  - TemplateGenerator：无需外部服务的模板生成器，用于离线模拟与测试
  - FormatHistory：按 Token 预算截取最近的对话历史

# 兜底文本

生成失败或返回空文本时分别使用 FallbackThinking、FallbackIntroduction
与 FallbackDialogue，调用方始终得到可展示的内容。

OpenAI 适配器位于子包 generation/openai。
*/
package generation
