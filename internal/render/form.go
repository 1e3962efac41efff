package render

import (
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/uiconfig"
)

// Mode selects which page a form plan is built for.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Control is one input in a rendered form. Kind is derived purely from the
// field's widget type; relation-backed selects are flagged NeedsOptions and
// resolved separately through the OptionsResolver.
type Control struct {
	Field        schema.Field `json:"field"`
	Kind         string       `json:"kind"`
	Value        any          `json:"value,omitempty"`
	Visible      bool         `json:"visible"`
	Options      []string     `json:"options,omitempty"`
	NeedsOptions bool         `json:"needsOptions,omitempty"`
	Section      int          `json:"section"`
}

// FormPlan is the full description of a create or edit form: which controls
// to render, grouped into which sections, with what current values. It is a
// pure function of the resolved configuration, the mode and the in-progress
// values; rebuilding it after each edit keeps conditional visibility live.
type FormPlan struct {
	Definition *schema.EntityDefinition `json:"entityDefinition"`
	Mode       Mode                     `json:"mode"`
	Sections   []uiconfig.Section       `json:"sections,omitempty"`
	Controls   []Control                `json:"controls"`
}

// BuildFormPlan interprets the schema into a form description. Fields not
// enabled for the mode are omitted entirely; fields whose foreignKey
// condition is unmet against the current values are carried but hidden, so
// a value change can reveal them without a schema round trip.
func BuildFormPlan(res *uiconfig.Resolved, mode Mode, values map[string]any) *FormPlan {
	plan := &FormPlan{
		Definition: res.Definition,
		Mode:       mode,
		Sections:   res.UIConfig.Sections,
	}

	for _, f := range res.Fields.Sorted() {
		if !fieldInMode(f, mode) {
			continue
		}

		ctrl := Control{
			Field:   f,
			Kind:    controlKind(f.Type),
			Visible: ConditionMet(f, values),
			Options: f.Options,
			Section: f.SectionIndex,
		}

		if f.IsRelation() && (f.Type == "select" || f.Type == "multipleSelect") {
			ctrl.NeedsOptions = true
			ctrl.Options = nil
		}

		if v, ok := values[f.Name]; ok && v != nil {
			ctrl.Value = v
		} else if mode == ModeCreate {
			ctrl.Value = defaultValue(f)
		}

		plan.Controls = append(plan.Controls, ctrl)
	}

	return plan
}

// VisibleFields returns the names of controls currently shown.
func (p *FormPlan) VisibleFields() []string {
	var names []string
	for _, c := range p.Controls {
		if c.Visible {
			names = append(names, c.Field.Name)
		}
	}
	return names
}

func fieldInMode(f schema.Field, mode Mode) bool {
	if mode == ModeCreate {
		return f.ForCreatePage
	}
	return f.ForEditPage
}

func controlKind(fieldType string) string {
	switch fieldType {
	case "text":
		return "text"
	case "textarea":
		return "textarea"
	case "number":
		return "number"
	case "date":
		return "date"
	case "boolean":
		return "checkbox"
	case "radio":
		return "radio"
	case "select":
		return "select"
	case "multipleSelect":
		return "multiselect"
	default:
		return "text"
	}
}

// defaultValue picks the typed default matching the field's widget.
func defaultValue(f schema.Field) any {
	switch f.Type {
	case "number":
		if f.DefaultNumberValue != nil {
			return *f.DefaultNumberValue
		}
	case "boolean":
		if f.DefaultBooleanValue != nil {
			return *f.DefaultBooleanValue
		}
	case "date":
		if f.DefaultDateValue != "" {
			return f.DefaultDateValue
		}
	default:
		if f.DefaultStringValue != "" {
			return f.DefaultStringValue
		}
	}
	return nil
}
