package render

import (
	"strings"

	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/uiconfig"
)

// Column is one visible list column. Relation columns carry the related
// definition id so the renderer fetches only relations it actually shows.
type Column struct {
	Field      schema.Field `json:"field"`
	IsRelation bool         `json:"isRelation,omitempty"`
	RelatedID  string       `json:"relatedEntityDefinitionId,omitempty"`
}

// ListPlan describes a paginated, searchable table for one entity
// definition. Routing is injected as URL templates so the plan stays
// agnostic to the concrete URL scheme.
type ListPlan struct {
	Definition   *schema.EntityDefinition `json:"entityDefinition"`
	Columns      []Column                 `json:"columns"`
	SearchFields []string                 `json:"searchFields,omitempty"`
	CreateURL    string                   `json:"createUrl"`
	EditURL      string                   `json:"editUrl"`
	DetailsURL   string                   `json:"detailsUrl"`
}

// BuildListPlan interprets the schema into a table description: columns
// with displayInTable in schema order, searchable field names, and the
// routing templates expanded for the definition (the {instanceId}
// placeholder survives for per-row expansion).
func BuildListPlan(res *uiconfig.Resolved) *ListPlan {
	def := res.Definition
	routing := res.UIConfig.Routing

	plan := &ListPlan{
		Definition:   def,
		SearchFields: res.Fields.SearchableNames(),
		CreateURL:    ExpandTemplate(routing.CreateURLTemplate, def.ProjectID, def.ID, ""),
		EditURL:      ExpandTemplate(routing.EditURLTemplate, def.ProjectID, def.ID, ""),
		DetailsURL:   ExpandTemplate(routing.DetailsURLTemplate, def.ProjectID, def.ID, ""),
	}

	for _, f := range res.Fields.TableColumns() {
		col := Column{Field: f}
		if f.IsRelation() {
			col.IsRelation = true
			col.RelatedID = f.RelatedEntityDefinitionID
		}
		plan.Columns = append(plan.Columns, col)
	}

	return plan
}

// RowEditURL expands the remaining {instanceId} placeholder for one row.
func (p *ListPlan) RowEditURL(instanceID string) string {
	return strings.ReplaceAll(p.EditURL, "{instanceId}", instanceID)
}

// RowDetailsURL expands the remaining {instanceId} placeholder for one row.
func (p *ListPlan) RowDetailsURL(instanceID string) string {
	return strings.ReplaceAll(p.DetailsURL, "{instanceId}", instanceID)
}

// ExpandTemplate substitutes the routing placeholders by plain string
// replacement. An empty instanceID leaves its placeholder in place.
func ExpandTemplate(template, projectID, entityDefinitionID, instanceID string) string {
	out := strings.ReplaceAll(template, "{projectId}", projectID)
	out = strings.ReplaceAll(out, "{entityDefinitionId}", entityDefinitionID)
	if instanceID != "" {
		out = strings.ReplaceAll(out, "{instanceId}", instanceID)
	}
	return out
}
