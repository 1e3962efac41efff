package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"unipanel-backend/internal/render"
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
	"unipanel-backend/internal/uiconfig"
)

// Instances is the CRUD service for entity instance rows. All mutations
// validate against the schema first; a validation failure never reaches
// the database.
type Instances struct {
	store    *store.Store
	registry *schema.Registry
}

func NewInstances(s *store.Store, reg *schema.Registry) *Instances {
	return &Instances{store: s, registry: reg}
}

// SplitBody separates scalar column values from the relation payload. The
// relation payload arrives under the "relations" key as field -> id list
// and covers manyToMany fields; manyToOne/oneToOne values travel as plain
// columns. Unknown keys are rejected.
func SplitBody(fields schema.FieldList, body map[string]any) (scalars map[string]any, relations map[string][]string, errs []ErrorDetail) {
	scalars = make(map[string]any)
	relations = make(map[string][]string)

	for key, val := range body {
		if key == "relations" {
			relMap, ok := val.(map[string]any)
			if !ok {
				errs = append(errs, ErrorDetail{Field: "relations", Rule: "invalid", Message: "relations must be an object of field -> id list"})
				continue
			}
			for relField, relVal := range relMap {
				f := fields.Get(relField)
				if f == nil || f.DBType != "manyToMany" {
					errs = append(errs, ErrorDetail{Field: relField, Rule: "unknown", Message: fmt.Sprintf("Unknown relation field: %s", relField)})
					continue
				}
				ids, err := toIDList(relVal)
				if err != nil {
					errs = append(errs, ErrorDetail{Field: relField, Rule: "invalid", Message: err.Error()})
					continue
				}
				relations[relField] = ids
			}
			continue
		}

		f := fields.Get(key)
		if f == nil || !f.HasColumn() {
			errs = append(errs, ErrorDetail{Field: key, Rule: "unknown", Message: fmt.Sprintf("Unknown field: %s", key)})
			continue
		}
		scalars[key] = val
	}

	return scalars, relations, errs
}

// Create inserts a new instance and its manyToMany join rows in one
// transaction, then returns the stored record with system fields populated.
func (s *Instances) Create(ctx context.Context, res *uiconfig.Resolved, body map[string]any) (map[string]any, error) {
	scalars, relations, splitErrs := SplitBody(res.Fields, body)
	if len(splitErrs) > 0 {
		return nil, ValidationError(splitErrs)
	}

	applyCreateDefaults(res.Fields, scalars)

	if issues := render.ValidateSubmit(res, render.ModeCreate, mergedValues(scalars, relations)); len(issues) > 0 {
		return nil, ValidationError(toDetails(issues))
	}

	def := res.Definition
	id := uuid.New().String()

	pb := &paramBuilder{}
	columns := []string{"id", "entity_definition_id", "project_id"}
	placeholders := []string{pb.Add(id), pb.Add(def.ID), pb.Add(def.ProjectID)}
	for _, name := range sortedKeys(scalars) {
		columns = append(columns, name)
		placeholders = append(placeholders, pb.Add(scalars[name]))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		def.TableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := store.Exec(ctx, tx, sql, pb.params...); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ConflictError("A record with this value already exists")
		}
		return nil, fmt.Errorf("insert %s: %w", def.Name, err)
	}

	if err := s.writeJoinRows(ctx, tx, def, relations, id); err != nil {
		return nil, err
	}

	record, err := fetchInstance(ctx, tx, def, res.Fields, id)
	if err != nil {
		return nil, fmt.Errorf("fetch created %s: %w", def.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	attachRelationIDs(record, relations)
	return record, nil
}

// Update applies the provided field map to an existing instance.
// Last write wins at the row level; there is no concurrency token.
func (s *Instances) Update(ctx context.Context, res *uiconfig.Resolved, id string, body map[string]any) (map[string]any, error) {
	def := res.Definition

	current, err := fetchInstance(ctx, s.store.Pool, def, res.Fields, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(def.Name, id)
		}
		return nil, fmt.Errorf("fetch %s/%s: %w", def.Name, id, err)
	}

	scalars, relations, splitErrs := SplitBody(res.Fields, body)
	if len(splitErrs) > 0 {
		return nil, ValidationError(splitErrs)
	}

	// Validate against the record as it will be after the update, so
	// required fields not present in a partial body still pass. The
	// column fetch above misses manyToMany fields; their existing join
	// rows count too when the body does not replace them.
	merged := make(map[string]any, len(current)+len(scalars))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range scalars {
		merged[k] = v
	}
	for _, f := range res.Fields {
		if f.DBType != "manyToMany" {
			continue
		}
		if _, ok := relations[f.Name]; ok {
			continue
		}
		ids, err := s.loadJoinIDs(ctx, def, f, id)
		if err != nil {
			return nil, err
		}
		merged[f.Name] = ids
	}
	if issues := render.ValidateSubmit(res, render.ModeEdit, mergedValues(merged, relations)); len(issues) > 0 {
		return nil, ValidationError(toDetails(issues))
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(scalars) > 0 {
		pb := &paramBuilder{}
		var sets []string
		for _, name := range sortedKeys(scalars) {
			sets = append(sets, fmt.Sprintf("%s = %s", name, pb.Add(scalars[name])))
		}
		sets = append(sets, "updated_at = NOW()")

		sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s AND project_id = %s",
			def.TableName, strings.Join(sets, ", "), pb.Add(id), pb.Add(def.ProjectID))

		affected, err := store.Exec(ctx, tx, sql, pb.params...)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return nil, ConflictError("A record with this value already exists")
			}
			return nil, fmt.Errorf("update %s/%s: %w", def.Name, id, err)
		}
		if affected == 0 {
			return nil, NotFoundError(def.Name, id)
		}
	}

	// Replace join rows for every manyToMany field present in the payload.
	for relField, ids := range relations {
		f := res.Fields.Get(relField)
		table := store.JoinTableName(def, *f)
		if _, err := store.Exec(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE source_id = $1", table), id); err != nil {
			return nil, fmt.Errorf("clear relation %s: %w", relField, err)
		}
		for _, targetID := range ids {
			if _, err := store.Exec(ctx, tx,
				fmt.Sprintf("INSERT INTO %s (source_id, target_id) VALUES ($1, $2)", table), id, targetID); err != nil {
				return nil, fmt.Errorf("write relation %s: %w", relField, err)
			}
		}
	}

	record, err := fetchInstance(ctx, tx, def, res.Fields, id)
	if err != nil {
		return nil, fmt.Errorf("fetch updated %s: %w", def.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return record, nil
}

// Delete removes an instance and its manyToMany join rows.
func (s *Instances) Delete(ctx context.Context, res *uiconfig.Resolved, id string) error {
	def := res.Definition

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, f := range res.Fields {
		if f.DBType != "manyToMany" {
			continue
		}
		table := store.JoinTableName(def, f)
		if _, err := store.Exec(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE source_id = $1", table), id); err != nil {
			return fmt.Errorf("clear relation %s: %w", f.Name, err)
		}
	}

	affected, err := store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND project_id = $2", def.TableName), id, def.ProjectID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", def.Name, id, err)
	}
	if affected == 0 {
		return NotFoundError(def.Name, id)
	}

	return tx.Commit(ctx)
}

// GetByID returns one instance with its manyToMany id lists attached.
func (s *Instances) GetByID(ctx context.Context, res *uiconfig.Resolved, id string) (map[string]any, error) {
	record, err := fetchInstance(ctx, s.store.Pool, res.Definition, res.Fields, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(res.Definition.Name, id)
		}
		return nil, fmt.Errorf("get %s/%s: %w", res.Definition.Name, id, err)
	}

	for _, f := range res.Fields {
		if f.DBType != "manyToMany" {
			continue
		}
		ids, err := s.loadJoinIDs(ctx, res.Definition, f, id)
		if err != nil {
			return nil, err
		}
		record[f.Name] = ids
	}

	return record, nil
}

func (s *Instances) writeJoinRows(ctx context.Context, q store.Querier, def *schema.EntityDefinition, relations map[string][]string, sourceID string) error {
	fl := s.registry.FieldsFor(def.ID)
	for relField, ids := range relations {
		f := fl.Get(relField)
		if f == nil {
			continue
		}
		table := store.JoinTableName(def, *f)
		for _, targetID := range ids {
			if _, err := store.Exec(ctx, q,
				fmt.Sprintf("INSERT INTO %s (source_id, target_id) VALUES ($1, $2)", table), sourceID, targetID); err != nil {
				return fmt.Errorf("write relation %s: %w", relField, err)
			}
		}
	}
	return nil
}

func (s *Instances) loadJoinIDs(ctx context.Context, def *schema.EntityDefinition, f schema.Field, sourceID string) ([]string, error) {
	table := store.JoinTableName(def, f)
	rows, err := store.QueryRows(ctx, s.store.Pool,
		fmt.Sprintf("SELECT target_id FROM %s WHERE source_id = $1", table), sourceID)
	if err != nil {
		return nil, fmt.Errorf("load relation %s: %w", f.Name, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, fmt.Sprintf("%v", row["target_id"]))
	}
	return ids, nil
}

func fetchInstance(ctx context.Context, q store.Querier, def *schema.EntityDefinition, fields schema.FieldList, id string) (map[string]any, error) {
	columns := strings.Join(selectColumns(fields), ", ")
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 AND project_id = $2", columns, def.TableName)
	return store.QueryRow(ctx, q, sql, id, def.ProjectID)
}

// applyCreateDefaults fills typed defaults for fields absent from a create
// payload, mirroring what the create form pre-fills.
func applyCreateDefaults(fields schema.FieldList, scalars map[string]any) {
	for _, f := range fields {
		if !f.ForCreatePage || !f.HasColumn() {
			continue
		}
		if _, ok := scalars[f.Name]; ok {
			continue
		}
		switch f.Type {
		case "number":
			if f.DefaultNumberValue != nil {
				scalars[f.Name] = *f.DefaultNumberValue
			}
		case "boolean":
			if f.DefaultBooleanValue != nil {
				scalars[f.Name] = *f.DefaultBooleanValue
			}
		case "date":
			if f.DefaultDateValue != "" {
				scalars[f.Name] = f.DefaultDateValue
			}
		default:
			if f.DefaultStringValue != "" {
				scalars[f.Name] = f.DefaultStringValue
			}
		}
	}
}

func mergedValues(scalars map[string]any, relations map[string][]string) map[string]any {
	values := make(map[string]any, len(scalars)+len(relations))
	for k, v := range scalars {
		values[k] = v
	}
	for k, ids := range relations {
		values[k] = ids
	}
	return values
}

func attachRelationIDs(record map[string]any, relations map[string][]string) {
	for k, ids := range relations {
		record[k] = ids
	}
}

func toDetails(issues []render.Issue) []ErrorDetail {
	details := make([]ErrorDetail, len(issues))
	for i, issue := range issues {
		details[i] = ErrorDetail{Field: issue.Field, Rule: issue.Rule, Message: issue.Message}
	}
	return details
}

func toIDList(v any) ([]string, error) {
	switch list := v.(type) {
	case []any:
		ids := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("relation ids must be strings")
			}
			ids = append(ids, s)
		}
		return ids, nil
	case []string:
		return list, nil
	default:
		return nil, fmt.Errorf("relation ids must be a list")
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
