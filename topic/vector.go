// Package topic represents conversational topics as weighted vectors.
package topic

import (
	"maps"
	"math"
	"slices"
)

// GeneralTopic is the synthetic label used when no topics are known.
const GeneralTopic = "general"

// Weight is a single topic label with its weight in [0,1].
type Weight struct {
	Topic  string  `json:"topic"`
	Weight float64 `json:"weight"`
}

// Vector is an ordered set of topic weights. Vectors are treated as
// immutable values; updates replace the whole vector.
type Vector []Weight

// FromLabels converts topic labels into a uniform weight vector.
// Duplicate labels are collapsed, keeping first-occurrence order.
func FromLabels(labels []string) Vector {
	seen := make(map[string]struct{}, len(labels))
	unique := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		unique = append(unique, l)
	}
	if len(unique) == 0 {
		return Vector{{Topic: GeneralTopic, Weight: 1.0}}
	}

	w := 1.0 / float64(len(unique))
	v := make(Vector, len(unique))
	for i, l := range unique {
		v[i] = Weight{Topic: l, Weight: w}
	}
	return v
}

// Cosine returns the cosine similarity of a and b over the union of their
// labels. Missing labels count as zero. The result is in [0,1] and is 0 when
// either vector is empty or has zero magnitude.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	am, bm := a.asMap(), b.asMap()

	// Sorted union order keeps the result independent of argument order.
	union := make(map[string]struct{}, len(am)+len(bm))
	for l := range am {
		union[l] = struct{}{}
	}
	for l := range bm {
		union[l] = struct{}{}
	}

	var dot, magA, magB float64
	for _, label := range slices.Sorted(maps.Keys(union)) {
		wa, wb := am[label], bm[label]
		dot += wa * wb
		magA += wa * wa
		magB += wb * wb
	}
	if magA == 0 || magB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

// Labels returns the topic labels in order.
func (v Vector) Labels() []string {
	out := make([]string, len(v))
	for i, w := range v {
		out[i] = w.Topic
	}
	return out
}

// Equal reports whether v and o hold the same labels with the same weights
// in the same order.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share backing storage with v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Sum returns the total weight.
func (v Vector) Sum() float64 {
	var s float64
	for _, w := range v {
		s += w.Weight
	}
	return s
}

// asMap sums weights per label; negative weights are treated as zero.
func (v Vector) asMap() map[string]float64 {
	m := make(map[string]float64, len(v))
	for _, w := range v {
		if w.Weight > 0 {
			m[w.Topic] += w.Weight
		}
	}
	return m
}
