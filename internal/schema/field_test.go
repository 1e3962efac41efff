package schema

import (
	"reflect"
	"testing"
)

func TestSorted_SectionThenOrder(t *testing.T) {
	fl := FieldList{
		{Name: "c", SectionIndex: 1, Order: 0},
		{Name: "b", SectionIndex: 0, Order: 2},
		{Name: "a", SectionIndex: 0, Order: 1},
	}

	var names []string
	for _, f := range fl.Sorted() {
		names = append(names, f.Name)
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Fatalf("expected [a b c], got %v", names)
	}
}

func TestTitleField_PrefersMarkedField(t *testing.T) {
	fl := FieldList{
		{Name: "id_like", Order: 0},
		{Name: "title", Order: 1, IsOptionTitleField: true},
	}
	if tf := fl.TitleField(); tf == nil || tf.Name != "title" {
		t.Fatalf("expected marked title field, got %v", tf)
	}
}

func TestTitleField_FallsBackToFirstInSchemaOrder(t *testing.T) {
	fl := FieldList{
		{Name: "second", Order: 2},
		{Name: "first", Order: 1},
	}
	if tf := fl.TitleField(); tf == nil || tf.Name != "first" {
		t.Fatalf("expected first field in schema order, got %v", tf)
	}

	var empty FieldList
	if tf := empty.TitleField(); tf != nil {
		t.Fatalf("expected nil for empty list, got %v", tf)
	}
}

func TestSearchableNames_FallbackToName(t *testing.T) {
	fl := FieldList{
		{Name: "name"},
		{Name: "status"},
	}
	if got := fl.SearchableNames(); !reflect.DeepEqual(got, []string{"name"}) {
		t.Fatalf(`expected fallback to "name", got %v`, got)
	}

	fl[1].Searchable = true
	if got := fl.SearchableNames(); !reflect.DeepEqual(got, []string{"status"}) {
		t.Fatalf("expected marked field only, got %v", got)
	}

	noName := FieldList{{Name: "status"}}
	if got := noName.SearchableNames(); got != nil {
		t.Fatalf("expected no searchable names, got %v", got)
	}
}

func TestHasColumn_RelationKinds(t *testing.T) {
	cases := map[string]bool{
		"varchar":     true,
		"float":       true,
		"boolean":     true,
		"timestamptz": true,
		"manyToOne":   true,
		"oneToOne":    true,
		"oneToMany":   false,
		"manyToMany":  false,
	}
	for dbType, want := range cases {
		f := Field{Name: "f", DBType: dbType}
		if got := f.HasColumn(); got != want {
			t.Errorf("HasColumn(%s) = %v, want %v", dbType, got, want)
		}
	}
}

func TestPostgresType(t *testing.T) {
	cases := map[string]string{
		"varchar":     "TEXT",
		"float":       "DOUBLE PRECISION",
		"boolean":     "BOOLEAN",
		"timestamptz": "TIMESTAMPTZ",
		"manyToOne":   "UUID",
		"oneToOne":    "UUID",
	}
	for dbType, want := range cases {
		f := Field{DBType: dbType}
		if got := f.PostgresType(); got != want {
			t.Errorf("PostgresType(%s) = %s, want %s", dbType, got, want)
		}
	}
}

func TestForeignKeyValues(t *testing.T) {
	f := Field{ForeignKeyValue: "draft|archived"}
	values, any := f.ForeignKeyValues()
	if any {
		t.Fatal("pipe set must not be the wildcard")
	}
	if !reflect.DeepEqual(values, []string{"draft", "archived"}) {
		t.Fatalf("expected [draft archived], got %v", values)
	}

	f = Field{ForeignKeyValue: "any"}
	if _, any := f.ForeignKeyValues(); !any {
		t.Fatal(`expected "any" to be the wildcard`)
	}

	f = Field{ForeignKeyValue: " a | |b "}
	values, _ = f.ForeignKeyValues()
	if !reflect.DeepEqual(values, []string{"a", "b"}) {
		t.Fatalf("expected trimmed non-empty values, got %v", values)
	}
}

func TestColumnNames_SkipsNonColumnFields(t *testing.T) {
	fl := FieldList{
		{Name: "title", DBType: "varchar"},
		{Name: "tags", DBType: "manyToMany"},
		{Name: "owner", DBType: "manyToOne"},
	}
	if got := fl.ColumnNames(); !reflect.DeepEqual(got, []string{"title", "owner"}) {
		t.Fatalf("expected [title owner], got %v", got)
	}
}

func TestIsSystemColumn(t *testing.T) {
	for _, name := range SystemColumns {
		if !IsSystemColumn(name) {
			t.Errorf("expected %s to be a system column", name)
		}
	}
	if IsSystemColumn("title") {
		t.Error("title must not be a system column")
	}
}
