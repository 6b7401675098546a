package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk persona seed format.
//
//	personas:
//	  - id: mika
//	    name: Mika
//	    traits: {empathy: 80, humor: 40}
//	    interests: {travel: 0.9}
type File struct {
	Personas []Descriptor `yaml:"personas"`
}

// LoadFile reads a YAML persona seed file.
func LoadFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a persona seed document and rejects blank or duplicate ids.
func ParseYAML(data []byte) ([]Descriptor, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse persona file: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Personas))
	for i, p := range f.Personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona #%d: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("persona %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return f.Personas, nil
}
