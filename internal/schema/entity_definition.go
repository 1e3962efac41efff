package schema

import "errors"

// ErrNotFound is returned when an entity definition does not exist or is
// not owned by the stated project.
var ErrNotFound = errors.New("entity definition not found")

// EntityDefinition describes one kind of record within a project.
// ID and TableName form the immutable identity; Name and Description
// may be changed by an admin after creation.
type EntityDefinition struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	TableName   string `json:"tableName"`
	URL         string `json:"url"`
	Type        string `json:"type"` // primary, secondary, tertiary
	Description string `json:"description,omitempty"`
}

// Project is the tenant boundary. Every entity definition, field and
// instance belongs to exactly one project.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SystemColumns are present on every instance table regardless of the
// entity's field list.
var SystemColumns = []string{"id", "entity_definition_id", "project_id", "created_at", "updated_at"}

// IsSystemColumn reports whether name is one of the engine-managed columns.
func IsSystemColumn(name string) bool {
	for _, c := range SystemColumns {
		if c == name {
			return true
		}
	}
	return false
}
