package admin

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"unipanel-backend/internal/schema"
)

var identifierRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var fieldTypes = map[string]bool{
	"select": true, "text": true, "textarea": true, "number": true,
	"date": true, "boolean": true, "radio": true, "multipleSelect": true,
}

var dbTypes = map[string]bool{
	"varchar": true, "float": true, "boolean": true, "timestamptz": true,
	"manyToOne": true, "oneToMany": true, "manyToMany": true, "oneToOne": true,
}

func validateDefinition(def *schema.EntityDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !identifierRE.MatchString(def.TableName) {
		return fmt.Errorf("tableName %q is not a valid identifier", def.TableName)
	}
	if !identifierRE.MatchString(def.URL) {
		return fmt.Errorf("url %q is not a valid identifier", def.URL)
	}
	return nil
}

// validateField checks a field definition against its siblings. siblings
// must not contain the field itself when validating an update.
func validateField(reg *schema.Registry, def *schema.EntityDefinition, siblings schema.FieldList, f *schema.Field) error {
	if !identifierRE.MatchString(f.Name) {
		return fmt.Errorf("field name %q is not a valid identifier", f.Name)
	}
	if schema.IsSystemColumn(f.Name) {
		return fmt.Errorf("field name %q collides with a system column", f.Name)
	}
	if !fieldTypes[f.Type] {
		return fmt.Errorf("unknown field type %q", f.Type)
	}
	if !dbTypes[f.DBType] {
		return fmt.Errorf("unknown dbType %q", f.DBType)
	}

	if f.IsRelation() {
		if f.RelatedEntityDefinitionID == "" {
			return fmt.Errorf("relation field %q requires relatedEntityDefinitionId", f.Name)
		}
		related := reg.GetDefinition(f.RelatedEntityDefinitionID)
		if related == nil {
			return fmt.Errorf("relation field %q references unknown entity definition %q", f.Name, f.RelatedEntityDefinitionID)
		}
		if related.ProjectID != def.ProjectID {
			return fmt.Errorf("relation field %q references an entity definition in another project", f.Name)
		}
	} else if f.RelatedEntityDefinitionID != "" {
		return fmt.Errorf("field %q has relatedEntityDefinitionId but dbType %q is not a relation", f.Name, f.DBType)
	}

	if f.ForeignKey != "" {
		if f.ForeignKey == f.Name {
			return fmt.Errorf("field %q cannot depend on itself", f.Name)
		}
		if !siblings.Has(f.ForeignKey) {
			return fmt.Errorf("foreignKey %q names no field of this entity definition", f.ForeignKey)
		}
		if f.ForeignKeyValue == "" {
			return fmt.Errorf("field %q sets foreignKey without foreignKeyValue", f.Name)
		}
	} else if f.ForeignKeyValue != "" {
		return fmt.Errorf("field %q sets foreignKeyValue without foreignKey", f.Name)
	}

	if f.IsOptionTitleField {
		for _, s := range siblings {
			if s.IsOptionTitleField {
				return fmt.Errorf("entity definition already has an option title field (%q)", s.Name)
			}
		}
		if !f.HasColumn() {
			return fmt.Errorf("option title field %q must be column-backed", f.Name)
		}
	}

	switch f.Type {
	case "select", "radio", "multipleSelect":
		if !f.IsRelation() && len(f.Options) == 0 {
			return fmt.Errorf("field %q needs options or a relation to choose from", f.Name)
		}
	}

	if f.ValidationRule != "" {
		if _, err := expr.Compile(f.ValidationRule, expr.AsBool()); err != nil {
			return fmt.Errorf("validationRule of %q does not compile: %v", f.Name, err)
		}
	}
	return nil
}
