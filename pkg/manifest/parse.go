package manifest

import (
	"fmt"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
)

// knownApplicationKeys and friends enumerate every key this package
// understands for a given table; Parse rejects any table key outside
// this set the way the teacher's configvalidator parser runs in strict
// mode and fails closed on unrecognized fields, rather than silently
// dropping operator typos. Trigger tables are the exception: every key
// besides id, component and components is kept as that trigger's
// type-specific config.
var knownApplicationKeys = map[string]bool{
	"name": true, "version": true, "description": true, "authors": true, "trigger": true,
}

var knownVariableKeys = map[string]bool{
	"default": true, "required": true, "secret": true,
}

var knownComponentKeys = map[string]bool{
	"source": true, "description": true, "variables": true, "environment": true,
	"files": true, "exclude_files": true, "allowed_outbound_hosts": true,
	"key_value_stores": true, "sqlite_databases": true, "ai_models": true, "build": true,
}

// Parse decodes a TOML manifest document into a Manifest, running all
// parse-time validation: version check, table-shape checks, unknown-key
// rejection, and identifier shape checks. It does not resolve variable
// templates or expand allow-lists into an effective policy — those run
// later, against the locked app, after variables are resolvable.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errSchema("invalid TOML: %v", err)
	}

	version, _ := raw["spin_manifest_version"].(int64)
	switch version {
	case 1:
		v1, err := parseV1(raw)
		if err != nil {
			return nil, err
		}
		return upgradeV1(v1)
	case 2:
		return parseV2(raw)
	default:
		return nil, &Error{Kind: InvalidVersion, Reason: fmt.Sprintf("unsupported spin_manifest_version %v", raw["spin_manifest_version"])}
	}
}

func parseV2(raw map[string]any) (*Manifest, error) {
	m := &Manifest{Version: 2}

	appRaw, _ := raw["application"].(map[string]any)
	app, err := parseApplication(appRaw)
	if err != nil {
		return nil, err
	}
	m.Application = app

	varsRaw, _ := raw["variables"].(map[string]any)
	vars, err := parseVariables(varsRaw)
	if err != nil {
		return nil, err
	}
	m.Variables = vars

	compsRaw, _ := raw["component"].(map[string]any)
	comps, err := parseComponents(compsRaw)
	if err != nil {
		return nil, err
	}
	m.Components = comps

	trigRaw, _ := raw["trigger"].(map[string]any)
	triggers, err := parseTriggers(trigRaw)
	if err != nil {
		return nil, err
	}
	m.Triggers = triggers

	return m, nil
}

func parseApplication(raw map[string]any) (Application, error) {
	var app Application
	for k := range raw {
		if !knownApplicationKeys[k] {
			return app, errSchema("unknown key %q in [application]", k)
		}
	}
	app.Name, _ = raw["name"].(string)
	app.Version, _ = raw["version"].(string)
	app.Description, _ = raw["description"].(string)
	if authors, ok := raw["authors"].([]any); ok {
		for _, a := range authors {
			if s, ok := a.(string); ok {
				app.Authors = append(app.Authors, s)
			}
		}
	}
	if trig, ok := raw["trigger"].(map[string]any); ok {
		app.TriggerDefaults = map[string]map[string]any{}
		for typ, cfg := range trig {
			if m, ok := cfg.(map[string]any); ok {
				app.TriggerDefaults[typ] = m
			}
		}
	}
	if app.Name == "" {
		return app, errSchema("application.name is required")
	}
	return app, nil
}

func parseVariables(raw map[string]any) (map[string]Variable, error) {
	out := map[string]Variable{}
	names := sortedKeys(raw)
	for _, name := range names {
		if err := ValidateID(name, SnakeCase); err != nil {
			return nil, errInvalidID(name, err.Error())
		}
		tbl, ok := raw[name].(map[string]any)
		if !ok {
			return nil, errSchema("variables.%s must be a table", name)
		}
		for k := range tbl {
			if !knownVariableKeys[k] {
				return nil, errSchema("unknown key %q in variables.%s", k, name)
			}
		}
		v := Variable{}
		if d, ok := tbl["default"].(string); ok {
			v.Default = &d
		}
		v.Required, _ = tbl["required"].(bool)
		v.Secret, _ = tbl["secret"].(bool)
		if v.Required == (v.Default != nil) {
			return nil, errSchema("variables.%s must set exactly one of required=true or default", name)
		}
		out[name] = v
	}
	return out, nil
}

func parseComponents(raw map[string]any) (map[string]Component, error) {
	out := map[string]Component{}
	for _, id := range sortedKeys(raw) {
		if err := ValidateID(id, KebabCase); err != nil {
			return nil, errInvalidID(id, err.Error())
		}
		tbl, ok := raw[id].(map[string]any)
		if !ok {
			return nil, errSchema("component.%s must be a table", id)
		}
		c, err := parseComponentTable(id, tbl)
		if err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, nil
}

func parseComponentTable(id string, tbl map[string]any) (Component, error) {
	var c Component
	for k := range tbl {
		if !knownComponentKeys[k] {
			return c, errSchema("unknown key %q in component.%s", k, id)
		}
	}
	src, err := parseSource(id, tbl["source"])
	if err != nil {
		return c, err
	}
	c.Source = src
	c.Description, _ = tbl["description"].(string)
	c.Variables = stringMap(tbl["variables"])
	c.Environment = stringMap(tbl["environment"])
	c.ExcludeFiles = stringSlice(tbl["exclude_files"])
	c.AllowedOutboundHosts = stringSlice(tbl["allowed_outbound_hosts"])
	c.KeyValueStores = stringSlice(tbl["key_value_stores"])
	c.SQLiteDatabases = stringSlice(tbl["sqlite_databases"])
	c.AIModels = stringSlice(tbl["ai_models"])
	if b, ok := tbl["build"].(map[string]any); ok {
		c.Build = b
	}
	if files, ok := tbl["files"].([]any); ok {
		for _, f := range files {
			switch v := f.(type) {
			case string:
				c.Files = append(c.Files, FileMount{Pattern: v})
			case map[string]any:
				src, _ := v["source"].(string)
				guest, _ := v["path"].(string)
				c.Files = append(c.Files, FileMount{Source: src, GuestPath: guest})
			default:
				return c, errSchema("component.%s.files entries must be a string or table", id)
			}
		}
	}
	return c, nil
}

func parseSource(id string, raw any) (Source, error) {
	switch v := raw.(type) {
	case string:
		return Source{Kind: SourceLocalFile, Path: v}, nil
	case map[string]any:
		if url, ok := v["url"].(string); ok {
			digest, _ := v["digest"].(string)
			if digest == "" {
				return Source{}, &Error{Kind: UnresolvableSource, ID: id, Reason: "remote source requires a digest"}
			}
			return Source{Kind: SourceRemoteURL, URL: url, Digest: digest}, nil
		}
		if reg, ok := v["registry"].(string); ok {
			pkg, _ := v["package"].(string)
			ref, _ := v["version"].(string)
			return Source{Kind: SourceRegistry, Registry: reg, Package: pkg, Ref: ref}, nil
		}
		return Source{}, &Error{Kind: UnresolvableSource, ID: id, Reason: "source table must set url+digest or registry+package+version"}
	default:
		return Source{}, &Error{Kind: UnresolvableSource, ID: id, Reason: "source must be a path string or a table"}
	}
}

func parseTriggers(raw map[string]any) (map[string][]Trigger, error) {
	out := map[string][]Trigger{}
	seen := map[string]bool{}
	counters := map[string]int{}
	for _, typ := range sortedKeys(raw) {
		arr, ok := raw[typ].([]any)
		if !ok {
			return nil, errSchema("trigger.%s must be an array of tables", typ)
		}
		for _, item := range arr {
			tbl, ok := item.(map[string]any)
			if !ok {
				return nil, errSchema("trigger.%s entries must be tables", typ)
			}
			t := Trigger{Type: typ}
			t.ID, _ = tbl["id"].(string)
			if t.ID == "" {
				counters[typ]++
				t.ID = fmt.Sprintf("%s-%d", typ, counters[typ])
			}
			if seen[t.ID] {
				return nil, errDuplicateID(t.ID)
			}
			seen[t.ID] = true
			if err := ValidateID(t.ID, KebabCase); err != nil {
				return nil, errInvalidID(t.ID, err.Error())
			}
			if single, ok := tbl["component"].(string); ok {
				t.Component = ComponentRef{Single: single}
			} else if named, ok := tbl["components"].(map[string]any); ok {
				t.Component.Named = map[string]string{}
				for name, ref := range named {
					if s, ok := ref.(string); ok {
						t.Component.Named[name] = s
					}
				}
			} else if inline, ok := tbl["component"].(map[string]any); ok {
				c, err := parseComponentTable(t.ID+"-inline-component0", inline)
				if err != nil {
					return nil, err
				}
				t.InlineComponent = &c
			} else {
				return nil, errSchema("trigger.%s[%s] must set component or components", typ, t.ID)
			}
			cfg := map[string]any{}
			for k, v := range tbl {
				if k != "id" && k != "component" && k != "components" {
					cfg[k] = v
				}
			}
			t.Config = cfg
			out[typ] = append(out[typ], t)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringMap(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func stringSlice(raw any) []string {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
