// =============================================================================
// 📦 测试数据工厂 - Persona 与触发样例
// =============================================================================
package fixtures

import "github.com/BaSui01/agentroom/persona"

// =============================================================================
// 🤖 Persona 工厂
// =============================================================================

// Alice 返回偏好旅行话题的 Persona
func Alice() persona.Descriptor {
	return persona.Descriptor{
		ID:          "alice",
		Name:        "Alice",
		Description: "A cheerful traveller who has been everywhere twice.",
		Traits:      persona.Traits{Empathy: 60, Humor: 80, Sociability: 90, Creativity: 70, Knowledge: 50},
		Keywords:    []string{"trip", "beach", "flight"},
		Interests:   map[string]float64{"travel": 0.9, "food": 0.6, "emotion": 0.1},
		Expressive:  true,
	}
}

// Bob 返回偏好情感话题的 Persona
func Bob() persona.Descriptor {
	return persona.Descriptor{
		ID:          "bob",
		Name:        "Bob",
		Description: "A calm listener who asks how everyone feels.",
		Traits:      persona.Traits{Empathy: 95, Humor: 30, Sociability: 50, Creativity: 40, Knowledge: 60},
		Keywords:    []string{"feel", "sad", "happy"},
		Interests:   map[string]float64{"travel": 0.2, "food": 0.3, "emotion": 0.9},
	}
}

// Carol 返回兴趣均衡的 Persona
func Carol() persona.Descriptor {
	return persona.Descriptor{
		ID:          "carol",
		Name:        "Carol",
		Description: "A curious generalist.",
		Traits:      persona.Traits{Empathy: 50, Humor: 50, Sociability: 50, Creativity: 90, Knowledge: 80},
		Keywords:    []string{"why", "idea"},
		Interests:   map[string]float64{"travel": 0.5, "food": 0.5, "emotion": 0.5},
	}
}

// Dave 返回一个尚未加入任何房间的候选 Persona
func Dave() persona.Descriptor {
	return persona.Descriptor{
		ID:          "dave",
		Name:        "Dave",
		Description: "A foodie who shows up whenever someone mentions lunch.",
		Traits:      persona.Traits{Empathy: 40, Humor: 70, Sociability: 60, Creativity: 50, Knowledge: 40},
		Keywords:    []string{"lunch", "recipe"},
		Interests:   map[string]float64{"food": 1.0},
	}
}

// Personas 返回全部预置 Persona，顺序稳定
func Personas() []persona.Descriptor {
	return []persona.Descriptor{Alice(), Bob(), Carol(), Dave()}
}

// Directory 返回包含全部预置 Persona 的内存目录
func Directory() *persona.MemoryDirectory {
	return persona.NewMemoryDirectory(Personas()...)
}

// =============================================================================
// 🏷️ 话题样例
// =============================================================================

var (
	// TravelTopics 旅行帖子的话题标签
	TravelTopics = []string{"travel", "food"}

	// EmotionTopics 情感帖子的话题标签
	EmotionTopics = []string{"emotion"}
)
