// Package manifest defines the typed schema for application manifests,
// the validation that runs at parse time, and the v1-to-v2 upgrade path.
// Locking (the step that turns a validated manifest into a runtime-ready
// LockedApp) lives in internal/lockedapp.
package manifest

// SchemaVersion2 is the only version this package parses without an
// upgrade step.
const SchemaVersion2 = 2

// Manifest is the root of a parsed application manifest (spin_manifest_version = 2).
type Manifest struct {
	Version     int                  `toml:"spin_manifest_version"`
	Application Application          `toml:"application"`
	Variables   map[string]Variable  `toml:"variables"`
	Triggers    map[string][]Trigger `toml:"trigger"`
	Components  map[string]Component `toml:"component"`
}

// Application carries app-level metadata and global trigger configuration.
type Application struct {
	Name            string                    `toml:"name"`
	Version         string                    `toml:"version"`
	Description     string                    `toml:"description"`
	Authors         []string                  `toml:"authors"`
	TriggerDefaults map[string]map[string]any `toml:"trigger"`
}

// Variable is an app-level variable declaration. Exactly one of Default
// being set or Required being true must hold (enforced by parseVariables
// in parse.go).
type Variable struct {
	Default  *string `toml:"default"`
	Required bool    `toml:"required"`
	Secret   bool    `toml:"secret"`
}

// SourceKind distinguishes the three ways a component's Wasm binary can be
// located.
type SourceKind int

const (
	SourceLocalFile SourceKind = iota
	SourceRemoteURL
	SourceRegistry
)

// Source is a component's Wasm binary location: a local file path, a
// remote URL with a content digest, or a registry package reference.
// Exactly one of the three shapes is populated, selected by Kind.
type Source struct {
	Kind SourceKind

	// SourceLocalFile
	Path string

	// SourceRemoteURL
	URL    string
	Digest string

	// SourceRegistry
	Registry string
	Package  string
	Ref      string
}

// FileMount describes one entry of a component's `files` list: either a
// glob pattern relative to the app's base directory, or an explicit
// host-path/guest-path placement.
type FileMount struct {
	Pattern   string // set when this is a bare glob entry
	Source    string // host-side path or pattern, explicit form
	GuestPath string // guest-visible mount point, explicit form
}

// Component describes one sandboxed Wasm component and its capabilities.
type Component struct {
	Source              Source
	Description         string
	Variables            map[string]string `toml:"variables"`
	Environment          map[string]string `toml:"environment"`
	Files                []FileMount        `toml:"files"`
	ExcludeFiles         []string           `toml:"exclude_files"`
	AllowedOutboundHosts []string           `toml:"allowed_outbound_hosts"`
	KeyValueStores       []string           `toml:"key_value_stores"`
	SQLiteDatabases      []string           `toml:"sqlite_databases"`
	AIModels             []string           `toml:"ai_models"`
	Build                map[string]any     `toml:"build"` // ignored at runtime
}

// ComponentRef names either a single component (most trigger types) or a
// set of named components (e.g. a timer trigger firing several jobs).
type ComponentRef struct {
	Single string
	Named  map[string]string
}

// Trigger binds an event source to one or more components.
type Trigger struct {
	ID        string
	Type      string
	Component ComponentRef
	Config    map[string]any

	// InlineComponent holds a component table defined directly under the
	// trigger instead of referenced by id; the locking pipeline extracts
	// it into the top-level component map with a synthesized id.
	InlineComponent *Component
}
