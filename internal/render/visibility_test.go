package render

import (
	"testing"

	"unipanel-backend/internal/schema"
)

func TestConditionMet_NoCondition(t *testing.T) {
	f := schema.Field{Name: "title"}
	if !ConditionMet(f, map[string]any{}) {
		t.Fatal("field without foreignKey must always be visible")
	}
}

func TestConditionMet_PipeSet(t *testing.T) {
	f := schema.Field{Name: "archive_reason", ForeignKey: "status", ForeignKeyValue: "draft|archived"}

	cases := []struct {
		status any
		want   bool
	}{
		{"draft", true},
		{"archived", true},
		{"published", false},
		{"", false},
		{nil, false},
	}
	for _, tc := range cases {
		got := ConditionMet(f, map[string]any{"status": tc.status})
		if got != tc.want {
			t.Errorf("status=%v: got %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestConditionMet_AnyWildcard(t *testing.T) {
	f := schema.Field{Name: "detail", ForeignKey: "kind", ForeignKeyValue: "any"}

	if ConditionMet(f, map[string]any{}) {
		t.Fatal("missing referenced value must hide the field")
	}
	if ConditionMet(f, map[string]any{"kind": ""}) {
		t.Fatal("empty referenced value must hide the field")
	}
	if !ConditionMet(f, map[string]any{"kind": "anything"}) {
		t.Fatal("any non-empty value must show the field")
	}
}

// Non-string referenced values compare by their rendered form, so a
// boolean condition can be expressed as "true"/"false" in the schema.
func TestConditionMet_NonStringValues(t *testing.T) {
	f := schema.Field{Name: "reason", ForeignKey: "flag", ForeignKeyValue: "true"}
	if !ConditionMet(f, map[string]any{"flag": true}) {
		t.Fatal("boolean true must match foreignKeyValue \"true\"")
	}
	if ConditionMet(f, map[string]any{"flag": false}) {
		t.Fatal("boolean false must not match foreignKeyValue \"true\"")
	}

	f = schema.Field{Name: "bonus", ForeignKey: "level", ForeignKeyValue: "3"}
	if !ConditionMet(f, map[string]any{"level": float64(3)}) {
		t.Fatal("numeric 3 must match foreignKeyValue \"3\"")
	}
}
