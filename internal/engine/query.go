package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"unipanel-backend/internal/schema"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 1000
)

// QueryPlan is a parsed instance list request for one entity definition.
type QueryPlan struct {
	Definition *schema.EntityDefinition
	Fields     schema.FieldList
	Filters    []WhereClause
	Search     string
	Sorts      []OrderClause
	Page       int
	Limit      int
}

type WhereClause struct {
	Field    string
	Operator string
	Value    any
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

type QueryResult struct {
	SQL    string
	Params []any
}

type paramBuilder struct {
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

// ParseQueryParams parses list query parameters into a QueryPlan.
func ParseQueryParams(c *fiber.Ctx, def *schema.EntityDefinition, fields schema.FieldList) (*QueryPlan, error) {
	plan := &QueryPlan{
		Definition: def,
		Fields:     fields,
		Page:       1,
		Limit:      DefaultPageSize,
	}

	// Filters: filter[field]=val or filter[field.op]=val
	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1]
		fieldName, op := parseFilterKey(inner)

		field := fields.Get(fieldName)
		if field == nil || !field.HasColumn() {
			return nil, &AppError{
				Code:    "UNKNOWN_FIELD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter field: %s", fieldName),
			}
		}

		coerced, err := coerceValue(field, val, op)
		if err != nil {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Invalid filter value for %s: %v", fieldName, err),
			}
		}

		plan.Filters = append(plan.Filters, WhereClause{Field: fieldName, Operator: op, Value: coerced})
	}

	plan.Search = strings.TrimSpace(c.Query("search"))

	// Sort: sort=-created_at,name
	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			dir := "ASC"
			fieldName := part
			if strings.HasPrefix(part, "-") {
				dir = "DESC"
				fieldName = part[1:]
			}
			if !schema.IsSystemColumn(fieldName) {
				field := fields.Get(fieldName)
				if field == nil || !field.HasColumn() {
					return nil, &AppError{
						Code:    "UNKNOWN_FIELD",
						Status:  400,
						Message: fmt.Sprintf("Unknown sort field: %s", fieldName),
					}
				}
			}
			plan.Sorts = append(plan.Sorts, OrderClause{Field: fieldName, Dir: dir})
		}
	}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			plan.Page = v
		}
	}
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			plan.Limit = v
			if plan.Limit > MaxPageSize {
				plan.Limit = MaxPageSize
			}
		}
	}

	return plan, nil
}

// BuildSelectSQL builds a parameterized SELECT statement from the query plan.
func BuildSelectSQL(plan *QueryPlan) QueryResult {
	pb := &paramBuilder{}

	columns := strings.Join(selectColumns(plan.Fields), ", ")
	sql := fmt.Sprintf("SELECT %s FROM %s", columns, plan.Definition.TableName)

	where := buildWhere(plan, pb)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	if len(plan.Sorts) > 0 {
		var orderParts []string
		for _, s := range plan.Sorts {
			orderParts = append(orderParts, fmt.Sprintf("%s %s", s.Field, s.Dir))
		}
		sql += " ORDER BY " + strings.Join(orderParts, ", ")
	} else {
		sql += " ORDER BY created_at DESC"
	}

	limit := pb.Add(plan.Limit)
	offset := pb.Add((plan.Page - 1) * plan.Limit)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return QueryResult{SQL: sql, Params: pb.params}
}

// BuildCountSQL builds a COUNT query with the same filters as the select,
// so the reported total is independent of the returned page.
func BuildCountSQL(plan *QueryPlan) QueryResult {
	pb := &paramBuilder{}

	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", plan.Definition.TableName)
	where := buildWhere(plan, pb)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	return QueryResult{SQL: sql, Params: pb.params}
}

func selectColumns(fields schema.FieldList) []string {
	columns := append([]string{}, schema.SystemColumns...)
	for _, name := range fields.ColumnNames() {
		if !schema.IsSystemColumn(name) {
			columns = append(columns, name)
		}
	}
	return columns
}

func buildWhere(plan *QueryPlan, pb *paramBuilder) []string {
	def := plan.Definition
	where := []string{
		fmt.Sprintf("project_id = %s", pb.Add(def.ProjectID)),
		fmt.Sprintf("entity_definition_id = %s", pb.Add(def.ID)),
	}

	for _, f := range plan.Filters {
		where = append(where, buildWhereClause(f, pb))
	}

	if plan.Search != "" {
		if clause := buildSearchClause(plan, pb); clause != "" {
			where = append(where, clause)
		}
	}

	return where
}

// buildSearchClause matches the query string case-insensitively as a
// substring against every searchable field.
func buildSearchClause(plan *QueryPlan, pb *paramBuilder) string {
	names := plan.Fields.SearchableNames()
	if len(names) == 0 {
		return ""
	}

	pattern := pb.Add("%" + escapeLike(plan.Search) + "%")
	var parts []string
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s::text ILIKE %s", name, pattern))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func buildWhereClause(f WhereClause, pb *paramBuilder) string {
	switch f.Operator {
	case "eq", "":
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value))
	case "neq":
		return fmt.Sprintf("%s != %s", f.Field, pb.Add(f.Value))
	case "gt":
		return fmt.Sprintf("%s > %s", f.Field, pb.Add(f.Value))
	case "gte":
		return fmt.Sprintf("%s >= %s", f.Field, pb.Add(f.Value))
	case "lt":
		return fmt.Sprintf("%s < %s", f.Field, pb.Add(f.Value))
	case "lte":
		return fmt.Sprintf("%s <= %s", f.Field, pb.Add(f.Value))
	case "in":
		return fmt.Sprintf("%s = ANY(%s)", f.Field, pb.Add(f.Value))
	case "not_in":
		return fmt.Sprintf("%s != ALL(%s)", f.Field, pb.Add(f.Value))
	case "like":
		return fmt.Sprintf("%s ILIKE %s", f.Field, pb.Add(f.Value))
	default:
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value))
	}
}

// parseFilterKey splits "total.gte" into ("total", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// coerceValue converts string query param values to Go types based on the
// field's storage type.
func coerceValue(field *schema.Field, val string, op string) (any, error) {
	if op == "in" || op == "not_in" {
		parts := strings.Split(val, ",")
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(field, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	}
	return coerceSingleValue(field, val)
}

func coerceSingleValue(field *schema.Field, val string) (any, error) {
	switch field.DBType {
	case "float":
		return strconv.ParseFloat(val, 64)
	case "boolean":
		return strconv.ParseBool(val)
	default:
		return val, nil
	}
}
