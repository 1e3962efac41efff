package render

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/uiconfig"
)

// Issue is one field-scoped validation failure.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ruleCache holds compiled validation rule programs keyed by expression.
var ruleCache = struct {
	mu    sync.Mutex
	progs map[string]*vm.Program
}{progs: make(map[string]*vm.Program)}

// ValidateSubmit checks submitted values against the schema for the given
// mode. Required fields must hold a non-empty value; fields that are not on
// the mode's page, or whose visibility condition is unmet, are exempt.
// A field's optional validation rule runs only when the field is visible
// and holds a value.
func ValidateSubmit(res *uiconfig.Resolved, mode Mode, values map[string]any) []Issue {
	var issues []Issue

	for _, f := range res.Fields {
		if !fieldInMode(f, mode) {
			continue
		}
		if !ConditionMet(f, values) {
			continue
		}

		empty := isEmpty(values[f.Name])
		if f.Required && empty {
			issues = append(issues, Issue{
				Field:   f.Name,
				Rule:    "required",
				Message: requiredMessage(f),
			})
			continue
		}

		if f.ValidationRule != "" && !empty {
			if issue := evaluateRule(f, values, mode); issue != nil {
				issues = append(issues, *issue)
			}
		}
	}

	return issues
}

func requiredMessage(f schema.Field) string {
	if f.RequiredText != "" {
		return f.RequiredText
	}
	return "This field is required"
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

// evaluateRule runs the field's expr rule with {record, action} in scope.
// The rule must return a bool; false or an evaluation error both fail the
// field.
func evaluateRule(f schema.Field, values map[string]any, mode Mode) *Issue {
	prog, err := compileRule(f.ValidationRule)
	if err != nil {
		return &Issue{Field: f.Name, Rule: "rule", Message: fmt.Sprintf("Invalid validation rule: %v", err)}
	}

	env := map[string]any{
		"record": values,
		"action": string(mode),
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &Issue{Field: f.Name, Rule: "rule", Message: fmt.Sprintf("Validation rule failed: %v", err)}
	}

	if ok, _ := result.(bool); !ok {
		msg := f.RequiredText
		if msg == "" {
			msg = fmt.Sprintf("%s is invalid", labelOrName(f))
		}
		return &Issue{Field: f.Name, Rule: "rule", Message: msg}
	}
	return nil
}

func compileRule(expression string) (*vm.Program, error) {
	ruleCache.mu.Lock()
	defer ruleCache.mu.Unlock()

	if prog, ok := ruleCache.progs[expression]; ok {
		return prog, nil
	}
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, err
	}
	ruleCache.progs[expression] = prog
	return prog, nil
}

func labelOrName(f schema.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}
