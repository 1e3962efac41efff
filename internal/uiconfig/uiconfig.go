package uiconfig

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"unipanel-backend/internal/schema"
)

//go:embed configs/*.json
var configFS embed.FS

// Section is one visual group of form controls, addressed by the fields'
// sectionIndex.
type Section struct {
	Index int    `json:"index"`
	Title string `json:"title"`
}

// Routing carries the URL templates a list renderer links through.
// Placeholders {projectId}, {entityDefinitionId} and {instanceId} are
// substituted by plain string replacement.
type Routing struct {
	CreateURLTemplate  string `json:"createUrlTemplate"`
	EditURLTemplate    string `json:"editUrlTemplate"`
	DetailsURLTemplate string `json:"detailsUrlTemplate"`
}

// UIConfig is the non-field part of an entity's configuration document.
type UIConfig struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections,omitempty"`
	Routing     Routing   `json:"routing"`
}

// Document is a full static configuration resource for a system entity.
// The UI config and the field list share this one source document; the
// UI config is the document with the fields key stripped.
type Document struct {
	UIConfig
	Fields schema.FieldList `json:"fields,omitempty"`
}

// LoadDocument reads the embedded static document for a system entity.
func LoadDocument(name string) (*Document, error) {
	data, err := configFS.ReadFile("configs/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("load ui config %s: %w", name, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ui config %s: %w", name, err)
	}
	return &doc, nil
}

// Config returns the document's UI config without the field list.
func (d *Document) Config() *UIConfig {
	cfg := d.UIConfig
	return &cfg
}

// DefaultRouting is the canonical route scheme.
var DefaultRouting = Routing{
	CreateURLTemplate:  "/projects/{projectId}/{entityDefinitionId}/create",
	EditURLTemplate:    "/projects/{projectId}/{entityDefinitionId}/{instanceId}/edit",
	DetailsURLTemplate: "/projects/{projectId}/{entityDefinitionId}/{instanceId}",
}

// Synthesize builds a UI config for a dynamic entity that has no static
// document: title from the definition, one section per distinct
// sectionIndex, canonical routing.
func Synthesize(def *schema.EntityDefinition, fields schema.FieldList) *UIConfig {
	cfg := &UIConfig{
		Title:       def.Name,
		Description: def.Description,
		Routing:     DefaultRouting,
	}

	seen := make(map[int]bool)
	for _, f := range fields {
		if !seen[f.SectionIndex] {
			seen[f.SectionIndex] = true
			cfg.Sections = append(cfg.Sections, Section{Index: f.SectionIndex})
		}
	}
	sort.Slice(cfg.Sections, func(i, j int) bool {
		return cfg.Sections[i].Index < cfg.Sections[j].Index
	})

	return cfg
}
