package render

import (
	"fmt"

	"unipanel-backend/internal/schema"
)

// ConditionMet evaluates a field's foreignKey visibility condition against
// the current in-progress values. A field without a condition is always
// visible. With foreignKeyValue "any" the field shows whenever the
// referenced field holds any non-empty value; otherwise the referenced
// field's value must be in the pipe-separated set.
func ConditionMet(f schema.Field, values map[string]any) bool {
	if f.ForeignKey == "" {
		return true
	}

	current := stringValue(values[f.ForeignKey])

	wanted, anyValue := f.ForeignKeyValues()
	if anyValue {
		return current != ""
	}
	for _, w := range wanted {
		if current == w {
			return true
		}
	}
	return false
}

// stringValue renders a form value for condition comparison. nil and ""
// both count as empty.
func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
