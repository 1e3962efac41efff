package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoadAll reads all projects, entity definitions and fields from the
// database and replaces the registry contents.
func LoadAll(ctx context.Context, pool *pgxpool.Pool, reg *Registry) error {
	projects, err := loadProjects(ctx, pool)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	defs, err := loadDefinitions(ctx, pool)
	if err != nil {
		return fmt.Errorf("load entity definitions: %w", err)
	}

	fields, err := loadFields(ctx, pool)
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}

	reg.Load(projects, defs, fields)

	log.Printf("Loaded %d projects, %d entity definitions, %d fields into registry",
		len(projects), len(defs), len(fields))
	return nil
}

// Reload is an alias for LoadAll, called after admin mutations.
func Reload(ctx context.Context, pool *pgxpool.Pool, reg *Registry) error {
	return LoadAll(ctx, pool, reg)
}

func loadProjects(ctx context.Context, pool *pgxpool.Pool) ([]*Project, error) {
	rows, err := pool.Query(ctx, "SELECT id, name, COALESCE(description, '') FROM _projects ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func loadDefinitions(ctx context.Context, pool *pgxpool.Pool) ([]*EntityDefinition, error) {
	rows, err := pool.Query(ctx,
		"SELECT id, project_id, name, table_name, url, type, COALESCE(description, '') FROM _entity_definitions ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*EntityDefinition
	for rows.Next() {
		var d EntityDefinition
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Name, &d.TableName, &d.URL, &d.Type, &d.Description); err != nil {
			return nil, fmt.Errorf("scan definition row: %w", err)
		}
		defs = append(defs, &d)
	}
	return defs, rows.Err()
}

func loadFields(ctx context.Context, pool *pgxpool.Pool) ([]Field, error) {
	rows, err := pool.Query(ctx,
		"SELECT id, entity_definition_id, name, definition FROM _fields ORDER BY entity_definition_id, sort_order")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var id, defID, name string
		var defJSON []byte
		if err := rows.Scan(&id, &defID, &name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}

		var f Field
		if err := json.Unmarshal(defJSON, &f); err != nil {
			log.Printf("WARN: skipping field %s (invalid JSON): %v", name, err)
			continue
		}
		f.ID = id
		f.EntityDefinitionID = defID
		f.Name = name
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
