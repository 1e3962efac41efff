package engine

import "unipanel-backend/internal/schema"

// Audience selects which response-shape visibility flags apply: project
// member admins (pma) or super admins (sa).
type Audience string

const (
	AudiencePma Audience = "pma"
	AudienceSa  Audience = "sa"
)

// Shape selects between the single-record and list response shapes.
type Shape string

const (
	ShapeSingle Shape = "single"
	ShapeList   Shape = "list"
)

// ShapeInstance filters a record down to the fields flagged for the given
// audience and shape. System fields always pass through. When a definition
// carries no flags at all for the combination, everything passes — an
// unconfigured schema is not silently mute.
func ShapeInstance(fields schema.FieldList, record map[string]any, audience Audience, shape Shape) map[string]any {
	if !anyFlagSet(fields, audience, shape) {
		return record
	}

	out := make(map[string]any, len(record))
	for key, val := range record {
		if schema.IsSystemColumn(key) {
			out[key] = val
			continue
		}
		f := fields.Get(key)
		if f != nil && flagFor(*f, audience, shape) {
			out[key] = val
		}
	}
	return out
}

// ShapeInstances applies ShapeInstance to every row of a list response.
func ShapeInstances(fields schema.FieldList, records []map[string]any, audience Audience) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = ShapeInstance(fields, r, audience, ShapeList)
	}
	return out
}

func flagFor(f schema.Field, audience Audience, shape Shape) bool {
	switch {
	case audience == AudiencePma && shape == ShapeSingle:
		return f.IncludeInSinglePma
	case audience == AudiencePma && shape == ShapeList:
		return f.IncludeInListPma
	case audience == AudienceSa && shape == ShapeSingle:
		return f.IncludeInSingleSa
	default:
		return f.IncludeInListSa
	}
}

func anyFlagSet(fields schema.FieldList, audience Audience, shape Shape) bool {
	for _, f := range fields {
		if flagFor(f, audience, shape) {
			return true
		}
	}
	return false
}
