package persona

import (
	"github.com/BaSui01/agentroom/rng"
)

// AffinityFunc returns a persona's interest in a topic, in [0,1].
//
// It is the extension point for a real persona-interest model; selection
// and handover outcomes depend on it directly.
type AffinityFunc func(personaID, topic string) float64

// UniformAffinity returns v for every persona and topic.
func UniformAffinity(v float64) AffinityFunc {
	v = clamp01(v)
	return func(string, string) float64 { return v }
}

// RandomAffinity draws a fresh value from src on every call.
func RandomAffinity(src rng.Source) AffinityFunc {
	return func(string, string) float64 { return src.Float64() }
}

// InterestAffinity reads Descriptor.Interests through lookup and defers to
// fallback for unknown personas or topics.
func InterestAffinity(lookup Lookup, fallback AffinityFunc) AffinityFunc {
	if fallback == nil {
		fallback = UniformAffinity(0.5)
	}
	if lookup == nil {
		return fallback
	}
	return func(personaID, topic string) float64 {
		if d, ok := lookup(personaID); ok {
			if v, ok := d.Interests[topic]; ok {
				return clamp01(v)
			}
		}
		return clamp01(fallback(personaID, topic))
	}
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
