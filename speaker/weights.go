package speaker

// Weights 评分权重配置
type Weights struct {
	// 话题亲和度权重
	Affinity float64 `yaml:"affinity" json:"affinity"`

	// 新近度权重与窗口（轮）
	Recency       float64 `yaml:"recency" json:"recency"`
	RecencyWindow int     `yaml:"recency_window" json:"recency_window"`

	// 主导者加成与有效窗口（轮）
	DominanceBonus  float64 `yaml:"dominance_bonus" json:"dominance_bonus"`
	DominanceWindow int     `yaml:"dominance_window" json:"dominance_window"`

	// 公平性权重；FairnessBoost 为欠发言者的最大上浮比例，
	// FairnessFlat 为历史为空时的统一加成
	Fairness      float64 `yaml:"fairness" json:"fairness"`
	FairnessBoost float64 `yaml:"fairness_boost" json:"fairness_boost"`
	FairnessFlat  float64 `yaml:"fairness_flat" json:"fairness_flat"`

	// 内容匹配权重及各项固定加成
	Content          float64 `yaml:"content" json:"content"`
	QuestionBonus    float64 `yaml:"question_bonus" json:"question_bonus"`
	LongMessageBonus float64 `yaml:"long_message_bonus" json:"long_message_bonus"`
	LongMessageChars int     `yaml:"long_message_chars" json:"long_message_chars"`
	EmotionBonus     float64 `yaml:"emotion_bonus" json:"emotion_bonus"`

	// 上一位发言者的惩罚
	RepeatPenalty float64 `yaml:"repeat_penalty" json:"repeat_penalty"`
}

// DefaultWeights 返回默认评分权重
func DefaultWeights() Weights {
	return Weights{
		Affinity:         0.4,
		Recency:          0.2,
		RecencyWindow:    10,
		DominanceBonus:   0.2,
		DominanceWindow:  5,
		Fairness:         0.1,
		FairnessBoost:    0.15,
		FairnessFlat:     0.05,
		Content:          0.1,
		QuestionBonus:    0.05,
		LongMessageBonus: 0.03,
		LongMessageChars: 100,
		EmotionBonus:     0.05,
		RepeatPenalty:    0.15,
	}
}

// DefaultEmotionMarkers marks a message as emotional when any of them occurs
// in it, compared case-insensitively.
var DefaultEmotionMarkers = []string{
	"!", "ㅠ", "ㅜ", "😢", "😭", "😂", "🥰", "❤",
	"sad", "happy", "love", "angry", "miss", "lonely", "excited", "scared",
}
