package speaker

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/persona"
	"github.com/BaSui01/agentroom/rng"
	"github.com/BaSui01/agentroom/room"
)

// DefaultTemperature sharpens the sampling distribution toward higher scores.
const DefaultTemperature = 0.7

// Breakdown is the per-term contribution to a candidate's score.
type Breakdown struct {
	Affinity  float64 `json:"affinity"`
	Recency   float64 `json:"recency"`
	Dominance float64 `json:"dominance"`
	Fairness  float64 `json:"fairness"`
	Content   float64 `json:"content"`
	Repeat    float64 `json:"repeat"`
}

func (b Breakdown) total() float64 {
	return b.Affinity + b.Recency + b.Dominance + b.Fairness + b.Content - b.Repeat
}

// Candidate is one eligible participant with its clamped score and the
// probability it is drawn with.
type Candidate struct {
	PersonaID   string    `json:"persona_id"`
	Score       float64   `json:"score"`
	Probability float64   `json:"probability"`
	Breakdown   Breakdown `json:"breakdown"`
}

// Selector picks the next speaker of a room. It holds no room state and is
// safe for concurrent use when its rng.Source is.
type Selector struct {
	affinity    persona.AffinityFunc
	profiles    persona.Lookup
	weights     Weights
	temperature float64
	markers     []string
	rand        rng.Source
	logger      *zap.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithWeights overrides the scoring weights.
func WithWeights(w Weights) Option {
	return func(s *Selector) { s.weights = w }
}

// WithTemperature sets the sampling temperature. Non-positive values keep the
// default.
func WithTemperature(t float64) Option {
	return func(s *Selector) {
		if t > 0 {
			s.temperature = t
		}
	}
}

// WithEmotionMarkers replaces DefaultEmotionMarkers.
func WithEmotionMarkers(markers []string) Option {
	return func(s *Selector) { s.markers = markers }
}

// WithRand sets the random source used for sampling.
func WithRand(src rng.Source) Option {
	return func(s *Selector) {
		if src != nil {
			s.rand = src
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSelector creates a Selector. A nil affinity falls back to a uniform 0.5;
// a nil profiles lookup disables keyword and expressiveness matching.
func NewSelector(affinity persona.AffinityFunc, profiles persona.Lookup, opts ...Option) *Selector {
	if affinity == nil {
		affinity = persona.UniformAffinity(0.5)
	}
	if profiles == nil {
		profiles = func(string) (persona.Descriptor, bool) { return persona.Descriptor{}, false }
	}
	s := &Selector{
		affinity:    affinity,
		profiles:    profiles,
		weights:     DefaultWeights(),
		temperature: DefaultTemperature,
		markers:     DefaultEmotionMarkers,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = rng.NewTimeSeeded()
	}
	s.logger = s.logger.With(zap.String("component", "speaker_selector"))
	return s
}

// Select returns the persona id of the next speaker. With no active
// participant it returns lastSpeakerID unchanged; with exactly one it returns
// that participant without scoring.
func (s *Selector) Select(r room.Room, lastMessage, lastSpeakerID string, h room.History) string {
	eligible := r.ActiveIDs()
	switch len(eligible) {
	case 0:
		s.logger.Debug("no eligible speaker", zap.String("room_id", r.ID))
		return lastSpeakerID
	case 1:
		return eligible[0]
	}

	candidates := s.Score(r, lastMessage, lastSpeakerID, h)

	var chosen string
	if !hasMass(candidates) {
		chosen = candidates[s.rand.IntN(len(candidates))].PersonaID
	} else {
		chosen = s.draw(candidates)
	}

	s.logger.Info("speaker selected",
		zap.String("room_id", r.ID),
		zap.String("persona_id", chosen),
		zap.Any("top_candidates", top(candidates, 3)),
	)
	return chosen
}

// Score computes every active participant's score and sampling probability,
// in room order.
func (s *Selector) Score(r room.Room, lastMessage, lastSpeakerID string, h room.History) []Candidate {
	eligible := r.ActiveIDs()
	if len(eligible) == 0 {
		return nil
	}

	counts := h.Counts()
	avg := 0.0
	for _, id := range eligible {
		avg += float64(counts[id])
	}
	avg /= float64(len(eligible))

	msg := analyze(lastMessage, s.weights.LongMessageChars, s.markers)

	candidates := make([]Candidate, len(eligible))
	for i, id := range eligible {
		b := Breakdown{
			Affinity:  s.weights.Affinity * s.topicAffinity(id, r),
			Recency:   s.weights.Recency * recency(h, id, s.weights.RecencyWindow),
			Dominance: s.dominance(r, id),
			Fairness:  s.fairness(len(h), counts[id], avg),
			Content:   s.content(id, msg),
		}
		if id == lastSpeakerID {
			b.Repeat = s.weights.RepeatPenalty
		}
		candidates[i] = Candidate{PersonaID: id, Score: clamp01(b.total()), Breakdown: b}
		s.logger.Debug("candidate scored",
			zap.String("room_id", r.ID),
			zap.String("persona_id", id),
			zap.Float64("score", candidates[i].Score),
			zap.Any("breakdown", b),
		)
	}

	s.assignProbabilities(candidates)
	return candidates
}

func (s *Selector) topicAffinity(personaID string, r room.Room) float64 {
	sum := 0.0
	for _, w := range r.CurrentTopics {
		sum += clamp01(s.affinity(personaID, w.Topic)) * w.Weight
	}
	return sum
}

// recency is 1 for a participant that never spoke and otherwise grows with
// the number of turns since its last one, saturating at window.
func recency(h room.History, personaID string, window int) float64 {
	last := h.LastIndexOf(personaID)
	if last < 0 || window <= 0 {
		return 1
	}
	return math.Min(1, float64(len(h)-last)/float64(window))
}

func (s *Selector) dominance(r room.Room, personaID string) float64 {
	if r.Dominant == personaID && r.TurnsSinceDominantChange < s.weights.DominanceWindow {
		return s.weights.DominanceBonus
	}
	return 0
}

// fairness compares a participant's turn count with the eligible average.
// ratio < 1 earns up to FairnessBoost extra; ratio >= 2 earns nothing.
func (s *Selector) fairness(historyLen, count int, avg float64) float64 {
	w := s.weights
	if historyLen == 0 {
		return w.FairnessFlat
	}
	ratio := 0.0
	if avg > 0 {
		ratio = float64(count) / avg
	}
	if ratio < 1 {
		return w.Fairness * (1 + w.FairnessBoost*(1-ratio))
	}
	return w.Fairness * math.Max(0, 1-(ratio-1))
}

type message struct {
	lower     string
	question  bool
	long      bool
	emotional bool
}

func analyze(text string, longChars int, markers []string) message {
	lower := strings.ToLower(text)
	m := message{
		lower:    lower,
		question: strings.ContainsAny(text, "?？"),
		long:     longChars > 0 && utf8.RuneCountInString(text) > longChars,
	}
	for _, mk := range markers {
		if mk != "" && strings.Contains(lower, strings.ToLower(mk)) {
			m.emotional = true
			break
		}
	}
	return m
}

func (s *Selector) content(personaID string, msg message) float64 {
	w := s.weights
	if msg.lower == "" {
		return 0
	}
	score := 0.0
	profile, ok := s.profiles(personaID)
	if ok && len(profile.Keywords) > 0 {
		matched := 0
		for _, kw := range profile.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(msg.lower, kw) {
				matched++
			}
		}
		score += w.Content * float64(matched) / float64(len(profile.Keywords))
	}
	if msg.question {
		score += w.QuestionBonus
	}
	if msg.long {
		score += w.LongMessageBonus
	}
	if msg.emotional && ok && profile.Expressive {
		score += w.EmotionBonus
	}
	return score
}

// assignProbabilities normalizes scores, applies temperature sharpening and
// renormalizes. A zero total yields a uniform distribution.
func (s *Selector) assignProbabilities(candidates []Candidate) {
	total := 0.0
	for _, c := range candidates {
		total += c.Score
	}
	if total <= 0 {
		for i := range candidates {
			candidates[i].Probability = 1 / float64(len(candidates))
		}
		return
	}

	exp := 1 / s.temperature
	sharpened := 0.0
	for i := range candidates {
		p := math.Pow(candidates[i].Score/total, exp)
		candidates[i].Probability = p
		sharpened += p
	}
	for i := range candidates {
		candidates[i].Probability /= sharpened
	}
}

func (s *Selector) draw(candidates []Candidate) string {
	u := s.rand.Float64()
	acc := 0.0
	for _, c := range candidates {
		acc += c.Probability
		if u < acc {
			return c.PersonaID
		}
	}
	// 浮点累计误差时落到最后一个有概率的候选
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i].Probability > 0 {
			return candidates[i].PersonaID
		}
	}
	return candidates[len(candidates)-1].PersonaID
}

func hasMass(candidates []Candidate) bool {
	for _, c := range candidates {
		if c.Score > 0 {
			return true
		}
	}
	return false
}

type ranked struct {
	PersonaID   string  `json:"persona_id"`
	Score       float64 `json:"score"`
	Probability float64 `json:"probability"`
}

func top(candidates []Candidate, n int) []ranked {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]ranked, len(sorted))
	for i, c := range sorted {
		out[i] = ranked{PersonaID: c.PersonaID, Score: c.Score, Probability: c.Probability}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
