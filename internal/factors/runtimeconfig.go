package factors

import (
	"fmt"
	"sort"
)

// RuntimeConfigSource yields the parsed TOML value for a runtime-config
// section, keyed by factor name (e.g. "key_value_store", "sqlite_database").
type RuntimeConfigSource interface {
	// Keys lists every top-level section present in the runtime-config
	// document.
	Keys() []string
	// Value returns the raw decoded value for key.
	Value(key string) any
}

// RuntimeConfigTracker wraps a RuntimeConfigSource and records which keys
// were actually read, so Finalize can report unused sections as errors
// (strict mode) rather than silently ignoring a typo'd section name.
type RuntimeConfigTracker struct {
	source RuntimeConfigSource
	read   map[string]bool
}

// NewRuntimeConfigTracker wraps source for strict-mode tracking.
func NewRuntimeConfigTracker(source RuntimeConfigSource) *RuntimeConfigTracker {
	return &RuntimeConfigTracker{source: source, read: map[string]bool{}}
}

// RuntimeConfigError is fatal at configure time (spec.md §7); UnusedKeys names
// every section that was declared in the runtime-config document but
// never consumed by any factor.
type RuntimeConfigError struct {
	UnusedKeys []string
}

func (e *RuntimeConfigError) Error() string {
	return fmt.Sprintf("runtime config: unused keys: %v", e.UnusedKeys)
}

// Get reads key, marking it consumed. Reading the same key twice is an
// error (it can only happen from a bug in factor wiring, never from
// operator input); the second read returns that error instead of the
// section's value.
func (t *RuntimeConfigTracker) Get(key string) (any, error) {
	if t.read[key] {
		return nil, fmt.Errorf("factors: runtime config key %q read more than once", key)
	}
	t.read[key] = true
	return t.source.Value(key), nil
}

// Finalize returns a RuntimeConfigError listing any section present in
// the source but never read via Get.
func (t *RuntimeConfigTracker) Finalize() error {
	var unused []string
	for _, k := range t.source.Keys() {
		if !t.read[k] {
			unused = append(unused, k)
		}
	}
	if len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return &RuntimeConfigError{UnusedKeys: unused}
}
