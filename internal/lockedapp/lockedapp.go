// Package lockedapp turns a parsed, validated manifest into the
// content-addressed, immutable descriptor the rest of the runtime
// operates on: the LockedApp. Locking resolves inline trigger components,
// keeps the trigger ids manifest.Parse assigned (including the ones it
// synthesized for id-less entries), checks every cross-reference (trigger
// to component, allow-list label to component), and normalizes file
// mounts to host/guest path pairs. It does not resolve variable templates
// or expand outbound-host patterns into compiled matchers — those happen
// against the locked app, once variable providers are available.
package lockedapp

import (
	"fmt"
	"sort"

	"github.com/wasmfactors/runtime/pkg/manifest"
)

// ResolvedSource is a component's source after locking: either a local
// file path or a content digest naming a blob the loader has already
// fetched into local storage.
type ResolvedSource struct {
	LocalPath string
	Digest    string
}

// MountPair is a normalized host-path/guest-path file mount.
type MountPair struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

// Component is a locked, runtime-ready component descriptor.
type Component struct {
	ID                   string
	Description          string
	Source               ResolvedSource
	Variables            map[string]string
	Environment          map[string]string
	Files                []MountPair
	AllowedOutboundHosts []string
	KeyValueStores       []string
	SQLiteDatabases      []string
	AIModels             []string
}

// Trigger is a locked trigger descriptor: a type tag, a stable id, the
// resolved set of component ids it targets (keyed by name for
// multi-component triggers, or {"": id} for single-component triggers),
// and its type-specific config.
type Trigger struct {
	ID         string
	Type       string
	Components map[string]string
	Config     map[string]any
}

// App is the immutable, post-load descriptor used at runtime.
type App struct {
	Name        string
	Version     string
	Description string
	Variables   map[string]manifest.Variable
	Components  map[string]Component
	Triggers    []Trigger
}

// Load validates cross-references in m and produces a LockedApp. The
// resolve callback turns a manifest.Source into a ResolvedSource (e.g.
// copying a local path, or fetching+digesting a remote URL); it is
// supplied by the embedder since source resolution is out of core scope
// (spec.md §1).
func Load(m *manifest.Manifest, resolve func(manifest.Source) (ResolvedSource, error)) (*App, error) {
	app := &App{
		Name:        m.Application.Name,
		Version:     m.Application.Version,
		Description: m.Application.Description,
		Variables:   m.Variables,
		Components:  map[string]Component{},
	}

	components := map[string]manifest.Component{}
	for id, c := range m.Components {
		components[id] = c
	}

	var triggers []Trigger
	for _, typeTriggers := range m.Triggers {
		for _, t := range typeTriggers {
			locked, extraComponents, err := lockTrigger(t, components)
			if err != nil {
				return nil, err
			}
			for id, c := range extraComponents {
				if _, exists := components[id]; exists {
					return nil, &manifest.Error{Kind: manifest.DuplicateID, ID: id, Reason: "inline trigger component id collides with an existing component"}
				}
				components[id] = c
			}
			triggers = append(triggers, locked)
		}
	}
	// Stable order: sort by (type, id) so repeated locking of the same
	// manifest produces byte-identical JSON (§6 stability guarantee).
	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].Type != triggers[j].Type {
			return triggers[i].Type < triggers[j].Type
		}
		return triggers[i].ID < triggers[j].ID
	})
	app.Triggers = triggers

	for id, c := range components {
		lc, err := lockComponent(id, c, resolve)
		if err != nil {
			return nil, err
		}
		app.Components[id] = *lc
	}

	if err := checkReferences(app); err != nil {
		return nil, err
	}
	return app, nil
}

func lockTrigger(t manifest.Trigger, components map[string]manifest.Component) (Trigger, map[string]manifest.Component, error) {
	extra := map[string]manifest.Component{}
	lt := Trigger{ID: t.ID, Type: t.Type, Config: t.Config, Components: map[string]string{}}

	switch {
	case t.InlineComponent != nil:
		id := fmt.Sprintf("%s-inline-component0", t.ID)
		extra[id] = *t.InlineComponent
		lt.Components[""] = id
	case t.Component.Single != "":
		lt.Components[""] = t.Component.Single
	case len(t.Component.Named) > 0:
		for name, ref := range t.Component.Named {
			lt.Components[name] = ref
		}
	default:
		return Trigger{}, nil, &manifest.Error{Kind: manifest.Schema, ID: t.ID, Reason: "trigger has no component reference"}
	}
	_ = components
	return lt, extra, nil
}

func lockComponent(id string, c manifest.Component, resolve func(manifest.Source) (ResolvedSource, error)) (*Component, error) {
	src, err := resolve(c.Source)
	if err != nil {
		return nil, &manifest.Error{Kind: manifest.UnresolvableSource, ID: id, Reason: err.Error()}
	}
	lc := &Component{
		ID:                   id,
		Description:          c.Description,
		Source:               src,
		Variables:            c.Variables,
		Environment:          c.Environment,
		AllowedOutboundHosts: dedupe(c.AllowedOutboundHosts),
		KeyValueStores:       c.KeyValueStores,
		SQLiteDatabases:      c.SQLiteDatabases,
		AIModels:             c.AIModels,
	}
	for _, f := range c.Files {
		if f.Pattern != "" {
			lc.Files = append(lc.Files, MountPair{HostPath: f.Pattern, GuestPath: f.Pattern, ReadOnly: true})
			continue
		}
		lc.Files = append(lc.Files, MountPair{HostPath: f.Source, GuestPath: f.GuestPath, ReadOnly: true})
	}
	for _, label := range c.KeyValueStores {
		if err := manifest.ValidateID(label, manifest.SnakeCase); err != nil {
			return nil, &manifest.Error{Kind: manifest.InvalidIdentifier, ID: label, Reason: "key_value_stores label: " + err.Error()}
		}
	}
	for _, label := range c.SQLiteDatabases {
		if err := manifest.ValidateID(label, manifest.SnakeCase); err != nil {
			return nil, &manifest.Error{Kind: manifest.InvalidIdentifier, ID: label, Reason: "sqlite_databases label: " + err.Error()}
		}
	}
	return lc, nil
}

// dedupe removes repeated allowed_outbound_hosts patterns, implementing
// Open Question 3 (spec.md §9): duplicates are idempotent, not an error.
func dedupe(patterns []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func checkReferences(app *App) error {
	for _, t := range app.Triggers {
		for _, ref := range t.Components {
			if _, ok := app.Components[ref]; !ok {
				return &manifest.Error{Kind: manifest.UnknownComponentRef, ID: ref, Reason: fmt.Sprintf("trigger %q references unknown component", t.ID)}
			}
		}
	}
	return nil
}
