package engine

import (
	"reflect"
	"testing"

	"unipanel-backend/internal/schema"
)

func shapedFields() schema.FieldList {
	return schema.FieldList{
		{Name: "name", DBType: "varchar",
			IncludeInSinglePma: true, IncludeInListPma: true,
			IncludeInSingleSa: true, IncludeInListSa: true},
		{Name: "internal_cost", DBType: "float",
			IncludeInSingleSa: true, IncludeInListSa: true},
		{Name: "notes", DBType: "varchar",
			IncludeInSinglePma: true, IncludeInSingleSa: true},
	}
}

func record() map[string]any {
	return map[string]any{
		"id":                   "i1",
		"entity_definition_id": "d1",
		"project_id":           "p1",
		"name":                 "Widget",
		"internal_cost":        4.5,
		"notes":                "fragile",
	}
}

func TestShapeInstance_AudienceFiltering(t *testing.T) {
	fields := shapedFields()

	pma := ShapeInstance(fields, record(), AudiencePma, ShapeSingle)
	if _, ok := pma["internal_cost"]; ok {
		t.Fatal("internal_cost must be hidden from project admins")
	}
	if pma["name"] != "Widget" || pma["notes"] != "fragile" {
		t.Fatalf("expected pma single fields, got %v", pma)
	}

	sa := ShapeInstance(fields, record(), AudienceSa, ShapeSingle)
	if sa["internal_cost"] != 4.5 {
		t.Fatalf("super admin must see internal_cost, got %v", sa)
	}
}

func TestShapeInstance_ShapeFiltering(t *testing.T) {
	fields := shapedFields()

	// notes is single-only for both audiences.
	list := ShapeInstance(fields, record(), AudiencePma, ShapeList)
	if _, ok := list["notes"]; ok {
		t.Fatal("notes must be absent from list shape")
	}
	single := ShapeInstance(fields, record(), AudiencePma, ShapeSingle)
	if single["notes"] != "fragile" {
		t.Fatalf("notes must be present in single shape, got %v", single)
	}
}

func TestShapeInstance_SystemColumnsAlwaysPass(t *testing.T) {
	shaped := ShapeInstance(shapedFields(), record(), AudiencePma, ShapeList)
	for _, col := range schema.SystemColumns {
		if raw, ok := record()[col]; ok && shaped[col] != raw {
			t.Errorf("system column %s missing from shaped record", col)
		}
	}
}

// A schema with no inclusion flags for a combination passes everything
// through rather than returning empty records.
func TestShapeInstance_NoFlagsIncludesAll(t *testing.T) {
	fields := schema.FieldList{
		{Name: "name", DBType: "varchar"},
		{Name: "notes", DBType: "varchar"},
	}
	shaped := ShapeInstance(fields, record(), AudiencePma, ShapeList)
	if !reflect.DeepEqual(shaped, record()) {
		t.Fatalf("expected passthrough, got %v", shaped)
	}
}

func TestShapeInstances_AppliesListShapeToEveryRow(t *testing.T) {
	rows := []map[string]any{record(), record()}
	shaped := ShapeInstances(shapedFields(), rows, AudiencePma)
	if len(shaped) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(shaped))
	}
	for i, r := range shaped {
		if _, ok := r["notes"]; ok {
			t.Errorf("row %d: notes must be absent from list shape", i)
		}
	}
}
