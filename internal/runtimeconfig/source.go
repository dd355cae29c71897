package runtimeconfig

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
)

// Source parses the separate runtime-config.toml document — distinct
// from the application manifest — and implements factors.RuntimeConfigSource
// so each factor's ConfigureApp can read its own top-level section
// (e.g. [key_value_store.default], [llm_compute.default]) by name.
type Source struct {
	sections map[string]any
}

// LoadSource parses raw TOML bytes into a Source. An empty document
// yields a Source with no sections, which is valid: every factor then
// sees RuntimeConfig return nil and falls back to its own defaults.
func LoadSource(data []byte) (*Source, error) {
	var raw map[string]any
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("runtimeconfig: parse runtime-config.toml: %w", err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &Source{sections: raw}, nil
}

// Keys lists every top-level table present in the document.
func (s *Source) Keys() []string {
	keys := make([]string, 0, len(s.sections))
	for k := range s.sections {
		keys = append(keys, k)
	}
	return keys
}

// Value returns the raw decoded value for key, or nil if absent.
func (s *Source) Value(key string) any {
	return s.sections[key]
}
