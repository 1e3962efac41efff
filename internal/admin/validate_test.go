package admin

import (
	"strings"
	"testing"

	"unipanel-backend/internal/schema"
)

func regWith(defs ...*schema.EntityDefinition) *schema.Registry {
	reg := schema.NewRegistry()
	reg.Load([]*schema.Project{{ID: "p1"}, {ID: "p2"}}, defs, nil)
	return reg
}

func TestValidateDefinition(t *testing.T) {
	good := &schema.EntityDefinition{Name: "Article", TableName: "articles", URL: "articles"}
	if err := validateDefinition(good); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	cases := []struct {
		name string
		def  schema.EntityDefinition
	}{
		{"missing name", schema.EntityDefinition{TableName: "articles", URL: "articles"}},
		{"bad table name", schema.EntityDefinition{Name: "A", TableName: "my-table", URL: "a"}},
		{"sql in table name", schema.EntityDefinition{Name: "A", TableName: "x; DROP TABLE y", URL: "a"}},
		{"uppercase table", schema.EntityDefinition{Name: "A", TableName: "Articles", URL: "a"}},
		{"bad url", schema.EntityDefinition{Name: "A", TableName: "articles", URL: "my articles"}},
	}
	for _, tc := range cases {
		if err := validateDefinition(&tc.def); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestValidateField_Basics(t *testing.T) {
	reg := regWith(&schema.EntityDefinition{ID: "d1", ProjectID: "p1", TableName: "articles", URL: "articles"})
	def := reg.GetDefinition("d1")

	good := &schema.Field{Name: "title", Type: "text", DBType: "varchar"}
	if err := validateField(reg, def, nil, good); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	cases := []struct {
		name string
		f    schema.Field
	}{
		{"bad identifier", schema.Field{Name: "my field", Type: "text", DBType: "varchar"}},
		{"system column", schema.Field{Name: "created_at", Type: "date", DBType: "timestamptz"}},
		{"unknown type", schema.Field{Name: "f", Type: "slider", DBType: "varchar"}},
		{"unknown dbType", schema.Field{Name: "f", Type: "text", DBType: "jsonb"}},
		{"select without options", schema.Field{Name: "f", Type: "select", DBType: "varchar"}},
	}
	for _, tc := range cases {
		if err := validateField(reg, def, nil, &tc.f); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestValidateField_RelationTarget(t *testing.T) {
	reg := regWith(
		&schema.EntityDefinition{ID: "d1", ProjectID: "p1", TableName: "articles", URL: "articles"},
		&schema.EntityDefinition{ID: "d2", ProjectID: "p1", TableName: "categories", URL: "categories"},
		&schema.EntityDefinition{ID: "d3", ProjectID: "p2", TableName: "other", URL: "other"},
	)
	def := reg.GetDefinition("d1")

	good := &schema.Field{Name: "category", Type: "select", DBType: "manyToOne", RelatedEntityDefinitionID: "d2"}
	if err := validateField(reg, def, nil, good); err != nil {
		t.Fatalf("expected valid relation, got %v", err)
	}

	missing := &schema.Field{Name: "category", Type: "select", DBType: "manyToOne"}
	if err := validateField(reg, def, nil, missing); err == nil || !strings.Contains(err.Error(), "relatedEntityDefinitionId") {
		t.Fatalf("expected missing target error, got %v", err)
	}

	unknown := &schema.Field{Name: "category", Type: "select", DBType: "manyToOne", RelatedEntityDefinitionID: "nope"}
	if err := validateField(reg, def, nil, unknown); err == nil {
		t.Fatal("expected unknown target error")
	}

	crossProject := &schema.Field{Name: "category", Type: "select", DBType: "manyToOne", RelatedEntityDefinitionID: "d3"}
	if err := validateField(reg, def, nil, crossProject); err == nil {
		t.Fatal("expected cross-project relation to be rejected")
	}

	danglingTarget := &schema.Field{Name: "title", Type: "text", DBType: "varchar", RelatedEntityDefinitionID: "d2"}
	if err := validateField(reg, def, nil, danglingTarget); err == nil {
		t.Fatal("expected non-relation with target to be rejected")
	}
}

func TestValidateField_ForeignKeyCondition(t *testing.T) {
	reg := regWith(&schema.EntityDefinition{ID: "d1", ProjectID: "p1", TableName: "articles", URL: "articles"})
	def := reg.GetDefinition("d1")
	siblings := schema.FieldList{
		{Name: "status", Type: "select", DBType: "varchar", Options: []string{"draft"}},
	}

	good := &schema.Field{Name: "reason", Type: "text", DBType: "varchar",
		ForeignKey: "status", ForeignKeyValue: "draft"}
	if err := validateField(reg, def, siblings, good); err != nil {
		t.Fatalf("expected valid condition, got %v", err)
	}

	unknownRef := &schema.Field{Name: "reason", Type: "text", DBType: "varchar",
		ForeignKey: "nope", ForeignKeyValue: "x"}
	if err := validateField(reg, def, siblings, unknownRef); err == nil {
		t.Fatal("expected unknown foreignKey to be rejected")
	}

	selfRef := &schema.Field{Name: "reason", Type: "text", DBType: "varchar",
		ForeignKey: "reason", ForeignKeyValue: "x"}
	if err := validateField(reg, def, siblings, selfRef); err == nil {
		t.Fatal("expected self-reference to be rejected")
	}

	noValue := &schema.Field{Name: "reason", Type: "text", DBType: "varchar", ForeignKey: "status"}
	if err := validateField(reg, def, siblings, noValue); err == nil {
		t.Fatal("expected missing foreignKeyValue to be rejected")
	}

	valueOnly := &schema.Field{Name: "reason", Type: "text", DBType: "varchar", ForeignKeyValue: "x"}
	if err := validateField(reg, def, siblings, valueOnly); err == nil {
		t.Fatal("expected foreignKeyValue without foreignKey to be rejected")
	}
}

func TestValidateField_SingleTitleField(t *testing.T) {
	reg := regWith(&schema.EntityDefinition{ID: "d1", ProjectID: "p1", TableName: "articles", URL: "articles"})
	def := reg.GetDefinition("d1")
	siblings := schema.FieldList{
		{Name: "name", Type: "text", DBType: "varchar", IsOptionTitleField: true},
	}

	second := &schema.Field{Name: "title", Type: "text", DBType: "varchar", IsOptionTitleField: true}
	if err := validateField(reg, def, siblings, second); err == nil {
		t.Fatal("expected second title field to be rejected")
	}

	joinBacked := &schema.Field{Name: "tags", Type: "multipleSelect", DBType: "manyToMany",
		RelatedEntityDefinitionID: "d1", IsOptionTitleField: true}
	if err := validateField(reg, def, nil, joinBacked); err == nil {
		t.Fatal("expected join-backed title field to be rejected")
	}
}

func TestValidateField_ValidationRuleMustCompile(t *testing.T) {
	reg := regWith(&schema.EntityDefinition{ID: "d1", ProjectID: "p1", TableName: "articles", URL: "articles"})
	def := reg.GetDefinition("d1")

	good := &schema.Field{Name: "price", Type: "number", DBType: "float",
		ValidationRule: "record.price >= 0"}
	if err := validateField(reg, def, nil, good); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}

	bad := &schema.Field{Name: "price", Type: "number", DBType: "float",
		ValidationRule: "record.price >="}
	if err := validateField(reg, def, nil, bad); err == nil {
		t.Fatal("expected broken rule to be rejected")
	}
}
