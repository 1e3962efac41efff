package uiconfig

import (
	"fmt"

	"unipanel-backend/internal/schema"
)

// systemEntityDocs maps system entity URL slugs to their embedded
// configuration documents.
var systemEntityDocs = map[string]string{
	"admins":             "admins",
	"environments":       "environments",
	"entity-definitions": "entity-definitions",
}

// Resolved is the merged runtime configuration for one entity definition.
type Resolved struct {
	Definition *schema.EntityDefinition
	Fields     schema.FieldList
	UIConfig   *UIConfig
}

// Resolve produces {entityDefinition, fields, uiConfig} for the given
// project and definition. Pure read; callers may cache the result keyed
// by (projectID, entityDefinitionID).
func Resolve(reg *schema.Registry, projectID, definitionID string) (*Resolved, error) {
	def := reg.GetDefinition(definitionID)
	if def == nil || def.ProjectID != projectID {
		return nil, fmt.Errorf("%w: %s in project %s", schema.ErrNotFound, definitionID, projectID)
	}

	fields := reg.FieldsFor(def.ID)

	if docName, ok := systemEntityDocs[def.URL]; ok {
		doc, err := LoadDocument(docName)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			fields = doc.Fields.Sorted()
		}
		return &Resolved{Definition: def, Fields: fields, UIConfig: doc.Config()}, nil
	}

	return &Resolved{Definition: def, Fields: fields, UIConfig: Synthesize(def, fields)}, nil
}
