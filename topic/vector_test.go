package topic

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFromLabels(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected Vector
	}{
		{
			name:     "nil input maps to general",
			input:    nil,
			expected: Vector{{Topic: GeneralTopic, Weight: 1.0}},
		},
		{
			name:     "empty input maps to general",
			input:    []string{},
			expected: Vector{{Topic: GeneralTopic, Weight: 1.0}},
		},
		{
			name:     "two labels split evenly",
			input:    []string{"a", "b"},
			expected: Vector{{Topic: "a", Weight: 0.5}, {Topic: "b", Weight: 0.5}},
		},
		{
			name:     "duplicates collapse",
			input:    []string{"tech", "tech", "music"},
			expected: Vector{{Topic: "tech", Weight: 0.5}, {Topic: "music", Weight: 0.5}},
		},
		{
			name:     "blank labels ignored",
			input:    []string{"", ""},
			expected: Vector{{Topic: GeneralTopic, Weight: 1.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromLabels(tt.input))
		})
	}
}

func TestCosine(t *testing.T) {
	travel := FromLabels([]string{"travel"})
	emotion := FromLabels([]string{"emotion"})
	mixed := FromLabels([]string{"travel", "emotion"})

	assert.Equal(t, 0.0, Cosine(travel, emotion), "disjoint labels")
	assert.InDelta(t, 1.0, Cosine(travel, travel), 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, Cosine(travel, mixed), 1e-12)
	assert.Equal(t, 0.0, Cosine(nil, travel))
	assert.Equal(t, 0.0, Cosine(travel, Vector{}))
	assert.Equal(t, 0.0, Cosine(Vector{{Topic: "x", Weight: 0}}, travel), "zero magnitude")
}

func TestVectorHelpers(t *testing.T) {
	v := FromLabels([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, v.Labels())
	assert.InDelta(t, 1.0, v.Sum(), 1e-12)

	c := v.Clone()
	require.True(t, v.Equal(c))
	c[0].Weight = 0.9
	assert.False(t, v.Equal(c), "clone must not share storage")
	assert.Nil(t, Vector(nil).Clone())
}

func genVector(rt *rapid.T, label string) Vector {
	n := rapid.IntRange(0, 6).Draw(rt, label+"_len")
	v := make(Vector, n)
	for i := range v {
		v[i] = Weight{
			Topic:  rapid.SampledFrom([]string{"tech", "travel", "music", "food", "emotion", "sports"}).Draw(rt, label+"_topic"),
			Weight: rapid.Float64Range(0, 1).Draw(rt, label+"_weight"),
		}
	}
	return v
}

func TestCosine_SymmetricAndBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := genVector(rt, "a")
		b := genVector(rt, "b")

		ab := Cosine(a, b)
		ba := Cosine(b, a)
		if ab != ba {
			rt.Fatalf("asymmetric: %v vs %v", ab, ba)
		}
		if ab < 0 || ab > 1 {
			rt.Fatalf("out of range: %v", ab)
		}
	})
}

func TestCosine_SelfSimilarity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		labels := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 8).Draw(rt, "labels")
		v := FromLabels(labels)
		if math.Abs(Cosine(v, v)-1.0) > 1e-9 {
			rt.Fatalf("self similarity %v", Cosine(v, v))
		}
	})
}

func TestProperty_FromLabelsWeightsSumToOne(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("weights are uniform and sum to one", prop.ForAll(
		func(labels []string) bool {
			v := FromLabels(labels)
			if len(v) == 0 {
				return false
			}
			if math.Abs(v.Sum()-1.0) > 1e-9 {
				return false
			}
			for _, w := range v {
				if math.Abs(w.Weight-v[0].Weight) > 1e-12 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
