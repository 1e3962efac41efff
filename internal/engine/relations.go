package engine

import (
	"context"
	"fmt"

	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
)

// LoadListRelations attaches manyToMany id lists to list rows, but only
// for relation fields that are actually shown as table columns — unused
// relation joins are never resolved.
func LoadListRelations(ctx context.Context, q store.Querier, def *schema.EntityDefinition, fields schema.FieldList, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	for _, f := range fields {
		if f.DBType != "manyToMany" || !f.DisplayInTable {
			continue
		}

		sourceIDs := make([]string, 0, len(rows))
		for _, row := range rows {
			sourceIDs = append(sourceIDs, fmt.Sprintf("%v", row["id"]))
		}

		table := store.JoinTableName(def, f)
		joinRows, err := store.QueryRows(ctx, q,
			fmt.Sprintf("SELECT source_id, target_id FROM %s WHERE source_id = ANY($1)", table), sourceIDs)
		if err != nil {
			return fmt.Errorf("load relation %s: %w", f.Name, err)
		}

		grouped := make(map[string][]string)
		for _, jr := range joinRows {
			src := fmt.Sprintf("%v", jr["source_id"])
			grouped[src] = append(grouped[src], fmt.Sprintf("%v", jr["target_id"]))
		}

		for _, row := range rows {
			id := fmt.Sprintf("%v", row["id"])
			ids := grouped[id]
			if ids == nil {
				ids = []string{}
			}
			row[f.Name] = ids
		}
	}

	return nil
}
