package schema

import (
	"sort"
	"strings"
)

// Field describes one attribute of an EntityDefinition: how it is stored
// (DBType), how it is edited (Type), and how forms and lists treat it.
type Field struct {
	ID                 string `json:"id"`
	EntityDefinitionID string `json:"entityDefinitionId"`
	Name               string `json:"name"`  // storage key / column name
	Label              string `json:"label"` // display label
	Type               string `json:"type"`  // select, text, textarea, number, date, boolean, radio, multipleSelect
	DBType             string `json:"dbType"` // varchar, float, boolean, timestamptz, manyToOne, oneToMany, manyToMany, oneToOne

	// RelatedEntityDefinitionID is set iff DBType is a relation kind.
	RelatedEntityDefinitionID string `json:"relatedEntityDefinitionId,omitempty"`

	Required     bool   `json:"required,omitempty"`
	RequiredText string `json:"requiredText,omitempty"`

	ForCreatePage bool `json:"forCreatePage,omitempty"`
	ForEditPage   bool `json:"forEditPage,omitempty"`

	DisplayInTable     bool `json:"displayInTable,omitempty"`
	Searchable         bool `json:"searchable,omitempty"`
	IsOptionTitleField bool `json:"isOptionTitleField,omitempty"`

	SectionIndex int `json:"sectionIndex,omitempty"`
	Order        int `json:"order,omitempty"`

	DefaultStringValue  string   `json:"defaultStringValue,omitempty"`
	DefaultNumberValue  *float64 `json:"defaultNumberValue,omitempty"`
	DefaultBooleanValue *bool    `json:"defaultBooleanValue,omitempty"`
	DefaultDateValue    string   `json:"defaultDateValue,omitempty"`

	// ForeignKey names another field of the same definition; the field is
	// shown only while that field's current value is in ForeignKeyValue
	// (pipe-separated set, or the literal "any" for any non-empty value).
	ForeignKey      string `json:"foreignKey,omitempty"`
	ForeignKeyValue string `json:"foreignKeyValue,omitempty"`

	// Options backs non-relation select/radio/multipleSelect controls.
	Options []string `json:"options,omitempty"`

	// Response-shape visibility per audience (project admin vs super admin)
	// and response shape (single record vs list).
	IncludeInSinglePma bool `json:"includeInSinglePma,omitempty"`
	IncludeInListPma   bool `json:"includeInListPma,omitempty"`
	IncludeInSingleSa  bool `json:"includeInSingleSa,omitempty"`
	IncludeInListSa    bool `json:"includeInListSa,omitempty"`

	// ValidationRule is an optional expr expression evaluated against
	// {record, action} at submit time; it must return a bool.
	ValidationRule string `json:"validationRule,omitempty"`
}

// IsRelation reports whether the field references another entity definition.
func (f Field) IsRelation() bool {
	switch f.DBType {
	case "manyToOne", "oneToMany", "manyToMany", "oneToOne":
		return true
	}
	return false
}

// HasColumn reports whether the field is stored as a column on the entity's
// own table. oneToMany and manyToMany live on the other side or in a join
// table respectively.
func (f Field) HasColumn() bool {
	return f.DBType != "oneToMany" && f.DBType != "manyToMany"
}

// PostgresType returns the DDL column type for a column-backed field.
func (f Field) PostgresType() string {
	switch f.DBType {
	case "varchar":
		return "TEXT"
	case "float":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "timestamptz":
		return "TIMESTAMPTZ"
	case "manyToOne", "oneToOne":
		return "UUID"
	default:
		return "TEXT"
	}
}

// ForeignKeyValues returns the value set of the visibility condition.
// The second result is true for the "any non-empty value" wildcard.
func (f Field) ForeignKeyValues() ([]string, bool) {
	if f.ForeignKeyValue == "any" {
		return nil, true
	}
	parts := strings.Split(f.ForeignKeyValue, "|")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values, false
}

// FieldList is an entity definition's fields in storage order.
type FieldList []Field

// Sorted returns the fields ordered by SectionIndex, then declared Order.
func (fl FieldList) Sorted() FieldList {
	out := make(FieldList, len(fl))
	copy(out, fl)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SectionIndex != out[j].SectionIndex {
			return out[i].SectionIndex < out[j].SectionIndex
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// Get returns the field with the given name, or nil.
func (fl FieldList) Get(name string) *Field {
	for i := range fl {
		if fl[i].Name == name {
			return &fl[i]
		}
	}
	return nil
}

// Has reports whether a field with the given name exists.
func (fl FieldList) Has(name string) bool {
	return fl.Get(name) != nil
}

// TitleField picks the field whose value labels instances in option lists:
// the field marked isOptionTitleField, else the first field in schema order.
// Returns nil for an empty list; callers fall back to the raw id.
func (fl FieldList) TitleField() *Field {
	for i := range fl {
		if fl[i].IsOptionTitleField {
			return &fl[i]
		}
	}
	sorted := fl.Sorted()
	if len(sorted) == 0 {
		return nil
	}
	return fl.Get(sorted[0].Name)
}

// SearchableNames returns the names of searchable fields. When no field is
// marked searchable, a field literally named "name" is the fallback.
func (fl FieldList) SearchableNames() []string {
	var names []string
	for _, f := range fl {
		if f.Searchable {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 && fl.Has("name") {
		names = []string{"name"}
	}
	return names
}

// TableColumns returns the fields shown as list columns, in schema order.
func (fl FieldList) TableColumns() FieldList {
	var cols FieldList
	for _, f := range fl.Sorted() {
		if f.DisplayInTable {
			cols = append(cols, f)
		}
	}
	return cols
}

// ColumnNames returns the column names of all column-backed fields.
func (fl FieldList) ColumnNames() []string {
	var names []string
	for _, f := range fl {
		if f.HasColumn() {
			names = append(names, f.Name)
		}
	}
	return names
}
