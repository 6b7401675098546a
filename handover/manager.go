package handover

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/room"
	"github.com/BaSui01/agentroom/topic"
)

// Reason names the trigger behind a handover.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonTopicShift Reason = "topic_shift"
	ReasonTurnLimit  Reason = "turn_limit"
)

// Decision is the outcome of a check. NewDominant and Reason are set only
// when Handover is true.
type Decision struct {
	Handover    bool   `json:"handover"`
	NewDominant string `json:"new_dominant,omitempty"`
	Reason      Reason `json:"reason,omitempty"`
}

// Config 主导权移交配置
type Config struct {
	// 话题相似度低于该值视为话题漂移
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`

	// 主导者连续轮次上限
	TurnLimit int `yaml:"turn_limit" json:"turn_limit"`
}

// DefaultConfig 返回默认移交配置
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.5,
		TurnLimit:           7,
	}
}

// Manager evaluates handover triggers. It is stateless and safe for
// concurrent use.
type Manager struct {
	affinity persona.AffinityFunc
	cfg      Config
	logger   *zap.Logger
}

// NewManager creates a Manager. A nil affinity falls back to a uniform 0.5.
func NewManager(affinity persona.AffinityFunc, cfg Config, logger *zap.Logger) *Manager {
	if affinity == nil {
		affinity = persona.UniformAffinity(0.5)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		affinity: affinity,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "handover")),
	}
}

// Check evaluates the topic-shift trigger, then the turn-limit trigger.
func (m *Manager) Check(r room.Room, h room.History) Decision {
	if d, ok := m.topicShift(r); ok {
		m.log(r, d)
		return d
	}
	if d, ok := m.turnLimit(r, h); ok {
		m.log(r, d)
		return d
	}
	return Decision{}
}

func (m *Manager) topicShift(r room.Room) (Decision, bool) {
	if len(r.CurrentTopics) == 0 || len(r.PreviousTopics) == 0 {
		return Decision{}, false
	}
	similarity := topic.Cosine(r.CurrentTopics, r.PreviousTopics)
	if similarity >= m.cfg.SimilarityThreshold {
		return Decision{}, false
	}

	best, bestScore := "", -1.0
	for _, id := range r.ActiveIDs() {
		score := 0.0
		for _, w := range r.CurrentTopics {
			score += m.affinity(id, w.Topic) * w.Weight
		}
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	m.logger.Debug("topic shift detected",
		zap.String("room_id", r.ID),
		zap.Float64("similarity", similarity),
		zap.String("best_match", best),
	)
	if best == "" || best == r.Dominant {
		return Decision{}, false
	}
	return Decision{Handover: true, NewDominant: best, Reason: ReasonTopicShift}, true
}

func (m *Manager) turnLimit(r room.Room, h room.History) (Decision, bool) {
	if r.TurnsSinceDominantChange < m.cfg.TurnLimit {
		return Decision{}, false
	}

	counts := h.Counts()
	best, fewest := "", 0
	for _, id := range r.ActiveIDs() {
		if id == r.Dominant {
			continue
		}
		if best == "" || counts[id] < fewest {
			best, fewest = id, counts[id]
		}
	}
	if best == "" {
		return Decision{}, false
	}
	return Decision{Handover: true, NewDominant: best, Reason: ReasonTurnLimit}, true
}

func (m *Manager) log(r room.Room, d Decision) {
	m.logger.Info("handover recommended",
		zap.String("room_id", r.ID),
		zap.String("from", r.Dominant),
		zap.String("to", d.NewDominant),
		zap.String("reason", string(d.Reason)),
	)
}
