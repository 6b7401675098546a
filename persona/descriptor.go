// Package persona defines the persona directory boundary consumed by the
// orchestration core, plus in-memory, GORM and YAML-backed directories.
package persona

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/agentroom/types"
)

// Traits are the named personality sliders used to parameterize generated
// text. Each slider is in [0,100].
type Traits struct {
	Empathy     int `json:"empathy" yaml:"empathy"`
	Humor       int `json:"humor" yaml:"humor"`
	Sociability int `json:"sociability" yaml:"sociability"`
	Creativity  int `json:"creativity" yaml:"creativity"`
	Knowledge   int `json:"knowledge" yaml:"knowledge"`
}

// Descriptor describes one AI persona.
type Descriptor struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Traits      Traits `json:"traits" yaml:"traits"`

	// Keywords feed the content-interest term of speaker selection.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Interests maps topic label to affinity in [0,1].
	Interests map[string]float64 `json:"interests,omitempty" yaml:"interests,omitempty"`

	// Expressive personas get a bonus on emotionally marked messages.
	Expressive bool `json:"expressive,omitempty" yaml:"expressive,omitempty"`
}

// DisplayName returns Name, falling back to ID.
func (d Descriptor) DisplayName() string {
	if strings.TrimSpace(d.Name) != "" {
		return d.Name
	}
	return d.ID
}

// Directory is the persona lookup boundary.
type Directory interface {
	// List returns every known persona in a stable order.
	List(ctx context.Context) ([]Descriptor, error)
	// Get returns the persona or an ErrNotFound-coded error.
	Get(ctx context.Context, id string) (*Descriptor, error)
}

// ErrNotFound is returned by Directory.Get for unknown ids.
var ErrNotFound = types.NewError(types.ErrPersonaNotFound, "persona not found")

// Lookup resolves a persona by id without I/O.
type Lookup func(id string) (Descriptor, bool)

// Index is an immutable id → descriptor map built once per run.
type Index map[string]Descriptor

// NewIndex indexes descriptors by id.
func NewIndex(descs []Descriptor) Index {
	idx := make(Index, len(descs))
	for _, d := range descs {
		idx[d.ID] = d
	}
	return idx
}

// Lookup returns the index as a Lookup function.
func (i Index) Lookup() Lookup {
	return func(id string) (Descriptor, bool) {
		d, ok := i[id]
		return d, ok
	}
}

// Resolve returns the indexed descriptor or a bare one carrying only id.
func (i Index) Resolve(id string) Descriptor {
	if d, ok := i[id]; ok {
		return d
	}
	return Descriptor{ID: id, Name: id}
}

// DirectoryLookup resolves through d on every call, bounded by timeout.
// Directory errors read as unknown personas.
func DirectoryLookup(d Directory, timeout time.Duration) Lookup {
	return func(id string) (Descriptor, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		desc, err := d.Get(ctx, id)
		if err != nil || desc == nil {
			return Descriptor{}, false
		}
		return *desc, true
	}
}

// IDs returns the persona ids in the order given.
func IDs(descs []Descriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.ID
	}
	return out
}
