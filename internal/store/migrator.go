package store

import (
	"context"
	"fmt"
	"strings"

	"unipanel-backend/internal/schema"
)

// Migrator keeps one data table per entity definition in sync with the
// definition's field list. Columns are only ever added, never dropped or
// retyped; renames are treated as an add.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the instance table for the definition exists with a
// column per column-backed field, plus join tables for manyToMany fields.
func (m *Migrator) Migrate(ctx context.Context, def *schema.EntityDefinition, fields schema.FieldList) error {
	exists, err := m.tableExists(ctx, def.TableName)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		if err := m.createTable(ctx, def, fields); err != nil {
			return err
		}
	} else if err := m.alterTable(ctx, def, fields); err != nil {
		return err
	}

	for _, f := range fields {
		if f.DBType == "manyToMany" {
			if err := m.migrateJoinTable(ctx, def, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// JoinTableName returns the join table for a manyToMany field.
func JoinTableName(def *schema.EntityDefinition, f schema.Field) string {
	return def.TableName + "_" + f.Name
}

func (m *Migrator) tableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	err := m.store.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (m *Migrator) createTable(ctx context.Context, def *schema.EntityDefinition, fields schema.FieldList) error {
	cols := []string{
		"id UUID PRIMARY KEY DEFAULT gen_random_uuid()",
		"entity_definition_id UUID NOT NULL",
		"project_id UUID NOT NULL",
		"created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		"updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
	}
	for _, f := range fields {
		if !f.HasColumn() || schema.IsSystemColumn(f.Name) {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", f.Name, f.PostgresType()))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", def.TableName, strings.Join(cols, ",\n  "))
	if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", def.TableName, err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_project ON %s (project_id)",
		def.TableName, def.TableName)
	if _, err := m.store.Pool.Exec(ctx, indexSQL); err != nil {
		return fmt.Errorf("create index for %s: %w", def.TableName, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, def *schema.EntityDefinition, fields schema.FieldList) error {
	existing, err := m.columnNames(ctx, def.TableName)
	if err != nil {
		return fmt.Errorf("read columns of %s: %w", def.TableName, err)
	}

	for _, f := range fields {
		if !f.HasColumn() || schema.IsSystemColumn(f.Name) || existing[f.Name] {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", def.TableName, f.Name, f.PostgresType())
		if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", def.TableName, f.Name, err)
		}
	}
	return nil
}

func (m *Migrator) migrateJoinTable(ctx context.Context, def *schema.EntityDefinition, f schema.Field) error {
	table := JoinTableName(def, f)
	exists, err := m.tableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	sql := fmt.Sprintf(
		`CREATE TABLE %s (
			source_id UUID NOT NULL,
			target_id UUID NOT NULL,
			PRIMARY KEY (source_id, target_id)
		)`, table)
	if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", table, err)
	}
	return nil
}

func (m *Migrator) columnNames(ctx context.Context, tableName string) (map[string]bool, error) {
	rows, err := m.store.Pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
