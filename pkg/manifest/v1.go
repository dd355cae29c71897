package manifest

import "fmt"

// v1Manifest is the pre-v2 shape: a single global trigger type and
// exactly one trigger per component, expressed as a flat component list
// carrying its own trigger config inline.
type v1Manifest struct {
	Name        string
	Version     string
	Description string
	Authors     []string
	TriggerType string
	Variables   map[string]Variable
	Components  []v1Component
}

type v1Component struct {
	ID      string
	Source  any
	Trigger map[string]any
	Rest    map[string]any
}

func parseV1(raw map[string]any) (*v1Manifest, error) {
	v1 := &v1Manifest{}
	v1.Name, _ = raw["name"].(string)
	v1.Version, _ = raw["version"].(string)
	v1.Description, _ = raw["description"].(string)
	if v1.Name == "" {
		return nil, errSchema("v1 manifest requires top-level name")
	}
	trig, ok := raw["trigger"].(map[string]any)
	if !ok {
		return nil, errSchema("v1 manifest requires a top-level [trigger] table")
	}
	v1.TriggerType, _ = trig["type"].(string)
	if v1.TriggerType == "" {
		return nil, errSchema("v1 manifest [trigger] requires type")
	}

	varsRaw, _ := raw["variables"].(map[string]any)
	vars, err := parseVariables(varsRaw)
	if err != nil {
		return nil, err
	}
	v1.Variables = vars

	compsRaw, ok := raw["component"].([]any)
	if !ok {
		return nil, errSchema("v1 manifest requires an array of [[component]] tables")
	}
	for _, item := range compsRaw {
		tbl, ok := item.(map[string]any)
		if !ok {
			return nil, errSchema("v1 [[component]] entries must be tables")
		}
		id, _ := tbl["id"].(string)
		if id == "" {
			return nil, errSchema("v1 component missing id")
		}
		c := v1Component{ID: id, Source: tbl["source"], Rest: map[string]any{}}
		if t, ok := tbl["trigger"].(map[string]any); ok {
			c.Trigger = t
		}
		for k, v := range tbl {
			if k != "id" && k != "source" && k != "trigger" {
				c.Rest[k] = v
			}
		}
		v1.Components = append(v1.Components, c)
	}
	return v1, nil
}

// upgradeV1 is a pure function translating the single-trigger-type v1
// shape into v2: every v1 component becomes a v2 component plus a v2
// trigger of the manifest's global type referencing it by id.
func upgradeV1(v1 *v1Manifest) (*Manifest, error) {
	m := &Manifest{
		Version: 2,
		Application: Application{
			Name:        v1.Name,
			Version:     v1.Version,
			Description: v1.Description,
			Authors:     v1.Authors,
		},
		Variables:  v1.Variables,
		Components: map[string]Component{},
		Triggers:   map[string][]Trigger{},
	}
	for _, vc := range v1.Components {
		comp, err := parseComponentTable(vc.ID, rawComponentTable(vc))
		if err != nil {
			return nil, err
		}
		m.Components[vc.ID] = comp

		t := Trigger{
			ID:        fmt.Sprintf("%s-%s", v1.TriggerType, vc.ID),
			Type:      v1.TriggerType,
			Component: ComponentRef{Single: vc.ID},
			Config:    vc.Trigger,
		}
		m.Triggers[v1.TriggerType] = append(m.Triggers[v1.TriggerType], t)
	}
	return m, nil
}

func rawComponentTable(vc v1Component) map[string]any {
	tbl := map[string]any{"source": vc.Source}
	for k, v := range vc.Rest {
		tbl[k] = v
	}
	return tbl
}
